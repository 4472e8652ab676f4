package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/pulsedeck/internal/store"
	"github.com/HerbHall/pulsedeck/pkg/models"
)

// Store provides database access for webhooks, templates and rules.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store on db. Run Migrations first.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// -- Webhooks --

const webhookColumns = `id, name, provider_type, webhook_url, is_active, created_at, updated_at`

// CreateWebhook inserts w and fills its ID and timestamps.
func (s *Store) CreateWebhook(ctx context.Context, w *models.WebhookConfig) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_configs (name, provider_type, webhook_url, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.Name, string(w.ProviderType), w.WebhookURL, store.BoolInt(w.IsActive), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert webhook: %w", err)
	}
	if w.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert webhook id: %w", err)
	}
	w.CreatedAt, w.UpdatedAt = now, now
	return nil
}

// GetWebhook returns the webhook with id, or nil if none exists.
func (s *Store) GetWebhook(ctx context.Context, id int64) (*models.WebhookConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+webhookColumns+` FROM webhook_configs WHERE id = ?`, id)
	w, err := scanWebhook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook %d: %w", id, err)
	}
	return w, nil
}

// ListWebhooks returns every webhook, newest first.
func (s *Store) ListWebhooks(ctx context.Context) ([]models.WebhookConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+webhookColumns+` FROM webhook_configs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var out []models.WebhookConfig
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// UpdateWebhook writes the mutable fields of w.
func (s *Store) UpdateWebhook(ctx context.Context, w *models.WebhookConfig) error {
	w.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhook_configs SET name = ?, provider_type = ?, webhook_url = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		w.Name, string(w.ProviderType), w.WebhookURL, store.BoolInt(w.IsActive), w.UpdatedAt, w.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook %d: %w", w.ID, err)
	}
	return nil
}

// DeleteWebhook removes the webhook and, through the foreign key, every rule
// that references it.
func (s *Store) DeleteWebhook(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhook_configs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete webhook %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanWebhook(row rowScanner) (*models.WebhookConfig, error) {
	var (
		w        models.WebhookConfig
		provider string
		active   int
	)
	if err := row.Scan(&w.ID, &w.Name, &provider, &w.WebhookURL, &active, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.ProviderType = models.ProviderType(provider)
	w.IsActive = active == 1
	return &w, nil
}

// -- Templates --

const templateColumns = `id, name, title_template, message_template, is_default, is_active, created_at, updated_at`

// CreateTemplate inserts t. If t is the default, any previous default is
// cleared in the same transaction.
func (s *Store) CreateTemplate(ctx context.Context, t *models.NotificationTemplate) error {
	now := time.Now().UTC()
	return store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if t.IsDefault {
			if err := clearDefault(ctx, tx); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO notification_templates (name, title_template, message_template, is_default, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.Name, t.TitleTemplate, t.MessageTemplate, store.BoolInt(t.IsDefault), store.BoolInt(t.IsActive), now, now,
		)
		if err != nil {
			return fmt.Errorf("insert template: %w", err)
		}
		if t.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert template id: %w", err)
		}
		t.CreatedAt, t.UpdatedAt = now, now
		return nil
	})
}

// GetTemplate returns the template with id, or nil if none exists.
func (s *Store) GetTemplate(ctx context.Context, id int64) (*models.NotificationTemplate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM notification_templates WHERE id = ?`, id)
	return oneTemplate(row, fmt.Sprintf("get template %d", id))
}

// GetDefaultTemplate returns the active default template, or nil.
func (s *Store) GetDefaultTemplate(ctx context.Context) (*models.NotificationTemplate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM notification_templates WHERE is_default = 1 AND is_active = 1`)
	return oneTemplate(row, "get default template")
}

// ListTemplates returns every template, default first.
func (s *Store) ListTemplates(ctx context.Context) ([]models.NotificationTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM notification_templates ORDER BY is_default DESC, name, id`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []models.NotificationTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// UpdateTemplate writes the mutable fields of t, moving the default flag if
// t becomes the default.
func (s *Store) UpdateTemplate(ctx context.Context, t *models.NotificationTemplate) error {
	t.UpdatedAt = time.Now().UTC()
	return store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if t.IsDefault {
			if err := clearDefault(ctx, tx); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE notification_templates
			SET name = ?, title_template = ?, message_template = ?, is_default = ?, is_active = ?, updated_at = ?
			WHERE id = ?`,
			t.Name, t.TitleTemplate, t.MessageTemplate, store.BoolInt(t.IsDefault), store.BoolInt(t.IsActive), t.UpdatedAt, t.ID,
		)
		if err != nil {
			return fmt.Errorf("update template %d: %w", t.ID, err)
		}
		return nil
	})
}

// DeleteTemplate removes the template. Rules using it fall back to the
// default template.
func (s *Store) DeleteTemplate(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notification_templates WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete template %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CountActiveTemplates returns how many templates are active.
func (s *Store) CountActiveTemplates(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notification_templates WHERE is_active = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count templates: %w", err)
	}
	return n, nil
}

func clearDefault(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `UPDATE notification_templates SET is_default = 0 WHERE is_default = 1`); err != nil {
		return fmt.Errorf("clear default template: %w", err)
	}
	return nil
}

func oneTemplate(row *sql.Row, op string) (*models.NotificationTemplate, error) {
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

func scanTemplate(row rowScanner) (*models.NotificationTemplate, error) {
	var (
		t              models.NotificationTemplate
		isDefault, act int
	)
	if err := row.Scan(&t.ID, &t.Name, &t.TitleTemplate, &t.MessageTemplate, &isDefault, &act, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.IsDefault = isDefault == 1
	t.IsActive = act == 1
	return &t, nil
}

// -- Rules --

const ruleColumns = `id, name, webhook_id, target_type, target_id, metric_type, condition_type,
	operator, threshold, from_status, to_status, severity, cooldown_minutes, is_active,
	template_id, aggregation_enabled, aggregation_window_ms, created_at, updated_at`

// CreateRule inserts r and fills its ID and timestamps.
func (s *Store) CreateRule(ctx context.Context, r *models.NotificationRule) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_rules (
			name, webhook_id, target_type, target_id, metric_type, condition_type,
			operator, threshold, from_status, to_status, severity, cooldown_minutes, is_active,
			template_id, aggregation_enabled, aggregation_window_ms, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.WebhookID, string(r.TargetType), store.NullInt64(r.TargetID), r.MetricType, string(r.ConditionType),
		nullOperator(r.Operator), nullFloat(r.Threshold), nullString(r.FromStatus), nullString(r.ToStatus),
		string(r.Severity), r.CooldownMinutes, store.BoolInt(r.IsActive),
		store.NullInt64(r.TemplateID), store.BoolInt(r.AggregationEnabled), r.AggregationWindowMs, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert rule id: %w", err)
	}
	r.CreatedAt, r.UpdatedAt = now, now
	return nil
}

// GetRule returns the rule with id, or nil if none exists.
func (s *Store) GetRule(ctx context.Context, id int64) (*models.NotificationRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM notification_rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %d: %w", id, err)
	}
	return r, nil
}

// ListRules returns every rule, newest first.
func (s *Store) ListRules(ctx context.Context) ([]models.NotificationRule, error) {
	return s.listRules(ctx, `SELECT `+ruleColumns+` FROM notification_rules ORDER BY created_at DESC, id DESC`)
}

// ListActiveRules returns active rules in id order.
func (s *Store) ListActiveRules(ctx context.Context) ([]models.NotificationRule, error) {
	return s.listRules(ctx, `SELECT `+ruleColumns+` FROM notification_rules WHERE is_active = 1 ORDER BY id`)
}

func (s *Store) listRules(ctx context.Context, query string) ([]models.NotificationRule, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []models.NotificationRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateRule writes every mutable field of r.
func (s *Store) UpdateRule(ctx context.Context, r *models.NotificationRule) error {
	r.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE notification_rules SET
			name = ?, webhook_id = ?, target_type = ?, target_id = ?, metric_type = ?, condition_type = ?,
			operator = ?, threshold = ?, from_status = ?, to_status = ?, severity = ?, cooldown_minutes = ?,
			is_active = ?, template_id = ?, aggregation_enabled = ?, aggregation_window_ms = ?, updated_at = ?
		WHERE id = ?`,
		r.Name, r.WebhookID, string(r.TargetType), store.NullInt64(r.TargetID), r.MetricType, string(r.ConditionType),
		nullOperator(r.Operator), nullFloat(r.Threshold), nullString(r.FromStatus), nullString(r.ToStatus),
		string(r.Severity), r.CooldownMinutes, store.BoolInt(r.IsActive),
		store.NullInt64(r.TemplateID), store.BoolInt(r.AggregationEnabled), r.AggregationWindowMs, r.UpdatedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update rule %d: %w", r.ID, err)
	}
	return nil
}

// DeleteRule removes the rule.
func (s *Store) DeleteRule(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notification_rules WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete rule %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanRule(row rowScanner) (*models.NotificationRule, error) {
	var (
		r                    models.NotificationRule
		targetType, condType string
		severity             string
		targetID, templateID sql.NullInt64
		operator, from, to   sql.NullString
		threshold            sql.NullFloat64
		active, aggEnabled   int
	)
	err := row.Scan(&r.ID, &r.Name, &r.WebhookID, &targetType, &targetID, &r.MetricType, &condType,
		&operator, &threshold, &from, &to, &severity, &r.CooldownMinutes, &active,
		&templateID, &aggEnabled, &r.AggregationWindowMs, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.TargetType = models.TargetType(targetType)
	r.ConditionType = models.ConditionType(condType)
	r.Severity = models.Severity(severity)
	r.TargetID = store.Int64Ptr(targetID)
	r.TemplateID = store.Int64Ptr(templateID)
	r.IsActive = active == 1
	r.AggregationEnabled = aggEnabled == 1
	if operator.Valid {
		op := models.Operator(operator.String)
		r.Operator = &op
	}
	if threshold.Valid {
		v := threshold.Float64
		r.Threshold = &v
	}
	if from.Valid {
		v := from.String
		r.FromStatus = &v
	}
	if to.Valid {
		v := to.String
		r.ToStatus = &v
	}
	return &r, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullOperator(p *models.Operator) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*p), Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
