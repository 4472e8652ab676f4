package monitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/pulsedeck/internal/store"
	"github.com/HerbHall/pulsedeck/pkg/models"
)

// Store provides database access for integrations and the card projection.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store on db. Run Migrations first.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// -- Integrations --

const integrationColumns = `id, service_name, service_type, credentials, poll_interval_ms,
	is_active, last_poll_at, last_status, created_at, updated_at`

// CreateIntegration inserts in and fills its ID and timestamps.
func (s *Store) CreateIntegration(ctx context.Context, in *models.Integration) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO integrations (service_name, service_type, credentials, poll_interval_ms, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.ServiceName, string(in.ServiceType), in.Credentials, in.PollIntervalMs,
		store.BoolInt(in.IsActive), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert integration: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert integration id: %w", err)
	}
	in.ID = id
	in.CreatedAt = now
	in.UpdatedAt = now
	return nil
}

// GetIntegration returns the integration with id, or nil if none exists.
func (s *Store) GetIntegration(ctx context.Context, id int64) (*models.Integration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+integrationColumns+` FROM integrations WHERE id = ?`, id)
	in, err := scanIntegration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get integration %d: %w", id, err)
	}
	return in, nil
}

// ListIntegrations returns every integration, newest first.
func (s *Store) ListIntegrations(ctx context.Context) ([]models.Integration, error) {
	return s.list(ctx, `SELECT `+integrationColumns+` FROM integrations ORDER BY created_at DESC, id DESC`)
}

// ListActiveIntegrations returns integrations flagged active.
func (s *Store) ListActiveIntegrations(ctx context.Context) ([]models.Integration, error) {
	return s.list(ctx, `SELECT `+integrationColumns+` FROM integrations WHERE is_active = 1 ORDER BY id`)
}

func (s *Store) list(ctx context.Context, query string) ([]models.Integration, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	var out []models.Integration
	for rows.Next() {
		in, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

// UpdateIntegration writes the mutable fields of in.
func (s *Store) UpdateIntegration(ctx context.Context, in *models.Integration) error {
	in.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE integrations
		SET service_name = ?, credentials = ?, poll_interval_ms = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		in.ServiceName, in.Credentials, in.PollIntervalMs, store.BoolInt(in.IsActive), in.UpdatedAt, in.ID,
	)
	if err != nil {
		return fmt.Errorf("update integration %d: %w", in.ID, err)
	}
	return nil
}

// DeleteIntegration removes the integration. It reports whether a row was
// deleted.
func (s *Store) DeleteIntegration(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM integrations WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete integration %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RecordPoll stores the outcome of a poll or connection test.
func (s *Store) RecordPoll(ctx context.Context, id int64, status models.LastStatus, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE integrations SET last_poll_at = ?, last_status = ?, updated_at = ? WHERE id = ?`,
		at, string(status), at, id,
	)
	if err != nil {
		return fmt.Errorf("record poll %d: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntegration(row rowScanner) (*models.Integration, error) {
	var (
		in         models.Integration
		serviceTyp string
		active     int
		lastPoll   sql.NullTime
		lastStatus sql.NullString
	)
	err := row.Scan(&in.ID, &in.ServiceName, &serviceTyp, &in.Credentials, &in.PollIntervalMs,
		&active, &lastPoll, &lastStatus, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, err
	}
	in.ServiceType = models.ServiceType(serviceTyp)
	in.IsActive = active == 1
	if lastPoll.Valid {
		t := lastPoll.Time
		in.LastPollAt = &t
	}
	in.LastStatus = models.LastStatus(lastStatus.String)
	return &in, nil
}

// -- Cards --

// GetCard returns the card with id, or nil if none exists.
func (s *Store) GetCard(ctx context.Context, id int64) (*models.Card, error) {
	var (
		c     models.Card
		integ sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, integration_id FROM cards WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &integ)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get card %d: %w", id, err)
	}
	c.IntegrationID = store.Int64Ptr(integ)
	return &c, nil
}

// InsertCard adds a card. Card management lives outside this service; the
// method exists for seeding and tests.
func (s *Store) InsertCard(ctx context.Context, c *models.Card) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO cards (name, integration_id) VALUES (?, ?)`,
		c.Name, store.NullInt64(c.IntegrationID))
	if err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return err
}
