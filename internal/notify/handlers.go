package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/HerbHall/pulsedeck/internal/server"
	"github.com/HerbHall/pulsedeck/pkg/models"
	"go.uber.org/zap"
)

const maxNameLen = 100

// References resolves the integrations and cards a rule may target.
type References interface {
	GetIntegration(ctx context.Context, id int64) (*models.Integration, error)
	GetCard(ctx context.Context, id int64) (*models.Card, error)
}

// Handler serves the notification admin API: rules, webhooks and templates.
type Handler struct {
	store      *Store
	dispatcher *Dispatcher
	evaluator  *Evaluator
	refs       References
	logger     *zap.Logger
}

// NewHandler creates the notification API handler.
func NewHandler(store *Store, dispatcher *Dispatcher, evaluator *Evaluator, refs References, logger *zap.Logger) *Handler {
	return &Handler{
		store:      store,
		dispatcher: dispatcher,
		evaluator:  evaluator,
		refs:       refs,
		logger:     logger,
	}
}

// RegisterRoutes mounts the notification routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/notification-rules", h.handleListRules)
	mux.HandleFunc("POST /api/v1/notification-rules", h.handleCreateRule)
	mux.HandleFunc("GET /api/v1/notification-rules/{id}", h.handleGetRule)
	mux.HandleFunc("PATCH /api/v1/notification-rules/{id}", h.handleUpdateRule)
	mux.HandleFunc("DELETE /api/v1/notification-rules/{id}", h.handleDeleteRule)
	mux.HandleFunc("POST /api/v1/notification-rules/{id}/test", h.handleTestRule)

	mux.HandleFunc("GET /api/v1/webhooks", h.handleListWebhooks)
	mux.HandleFunc("POST /api/v1/webhooks", h.handleCreateWebhook)
	mux.HandleFunc("GET /api/v1/webhooks/{id}", h.handleGetWebhook)
	mux.HandleFunc("PATCH /api/v1/webhooks/{id}", h.handleUpdateWebhook)
	mux.HandleFunc("DELETE /api/v1/webhooks/{id}", h.handleDeleteWebhook)
	mux.HandleFunc("POST /api/v1/webhooks/{id}/test", h.handleTestWebhook)

	mux.HandleFunc("GET /api/v1/notification-templates", h.handleListTemplates)
	mux.HandleFunc("POST /api/v1/notification-templates", h.handleCreateTemplate)
	mux.HandleFunc("PATCH /api/v1/notification-templates/{id}", h.handleUpdateTemplate)
	mux.HandleFunc("DELETE /api/v1/notification-templates/{id}", h.handleDeleteTemplate)
}

// RuleRequest is the body of POST and PATCH /notification-rules. On PATCH
// omitted fields are left unchanged; template_id 0 clears the template.
type RuleRequest struct {
	Name                *string               `json:"name,omitempty" example:"CPU hot"`
	WebhookID           *int64                `json:"webhook_id,omitempty" example:"1"`
	TargetType          *models.TargetType    `json:"target_type,omitempty" example:"integration"`
	TargetID            *int64                `json:"target_id,omitempty" example:"3"`
	MetricType          *string               `json:"metric_type,omitempty" example:"cpu_usage"`
	ConditionType       *models.ConditionType `json:"condition_type,omitempty" example:"threshold"`
	Operator            *models.Operator      `json:"operator,omitempty" example:"gt"`
	Threshold           *float64              `json:"threshold,omitempty" example:"80"`
	FromStatus          *string               `json:"from_status,omitempty"`
	ToStatus            *string               `json:"to_status,omitempty" example:"offline"`
	Severity            *models.Severity      `json:"severity,omitempty" example:"warning"`
	CooldownMinutes     *int                  `json:"cooldown_minutes,omitempty" example:"30"`
	IsActive            *bool                 `json:"is_active,omitempty"`
	TemplateID          *int64                `json:"template_id,omitempty"`
	AggregationEnabled  *bool                 `json:"aggregation_enabled,omitempty"`
	AggregationWindowMs *int64                `json:"aggregation_window_ms,omitempty"`
}

// apply copies the set fields of req onto r. Switching condition kinds
// drops the fields of the previous kind.
func (req *RuleRequest) apply(r *models.NotificationRule) {
	if req.Name != nil {
		r.Name = strings.TrimSpace(*req.Name)
	}
	if req.WebhookID != nil {
		r.WebhookID = *req.WebhookID
	}
	if req.TargetType != nil {
		r.TargetType = *req.TargetType
	}
	if req.TargetID != nil {
		r.TargetID = req.TargetID
	}
	if r.TargetType == models.TargetAll {
		r.TargetID = nil
	}
	if req.MetricType != nil {
		r.MetricType = strings.TrimSpace(*req.MetricType)
	}
	if req.ConditionType != nil && *req.ConditionType != r.ConditionType {
		r.ConditionType = *req.ConditionType
		r.Operator, r.Threshold, r.FromStatus, r.ToStatus = nil, nil, nil, nil
	}
	if req.Operator != nil {
		r.Operator = req.Operator
	}
	if req.Threshold != nil {
		r.Threshold = req.Threshold
	}
	if req.FromStatus != nil {
		r.FromStatus = emptyToNil(*req.FromStatus)
	}
	if req.ToStatus != nil {
		r.ToStatus = emptyToNil(*req.ToStatus)
	}
	if req.Severity != nil {
		r.Severity = *req.Severity
	}
	if req.CooldownMinutes != nil {
		r.CooldownMinutes = *req.CooldownMinutes
	}
	if req.IsActive != nil {
		r.IsActive = *req.IsActive
	}
	if req.TemplateID != nil {
		if *req.TemplateID == 0 {
			r.TemplateID = nil
		} else {
			r.TemplateID = req.TemplateID
		}
	}
	if req.AggregationEnabled != nil {
		r.AggregationEnabled = *req.AggregationEnabled
	}
	if req.AggregationWindowMs != nil {
		r.AggregationWindowMs = *req.AggregationWindowMs
	}
}

func emptyToNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// handleListRules returns every rule.
//
//	@Summary		List notification rules
//	@Tags			notifications
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{array}		models.NotificationRule
//	@Failure		500	{object}	server.Problem
//	@Router			/notification-rules [get]
func (h *Handler) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListRules(r.Context())
	if err != nil {
		h.logger.Error("failed to list rules", zap.Error(err))
		server.InternalError(w, "failed to list notification rules", r.URL.Path)
		return
	}
	if rules == nil {
		rules = []models.NotificationRule{}
	}
	server.WriteJSON(w, http.StatusOK, rules)
}

// handleCreateRule validates and stores a rule.
//
//	@Summary		Create notification rule
//	@Tags			notifications
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		RuleRequest	true	"Rule"
//	@Success		201		{object}	models.NotificationRule
//	@Failure		400		{object}	server.Problem
//	@Failure		404		{object}	server.Problem
//	@Router			/notification-rules [post]
func (h *Handler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}

	rule := models.NotificationRule{
		TargetType:      models.TargetAll,
		Severity:        models.DefaultSeverity,
		CooldownMinutes: models.DefaultCooldownMinutes,
		IsActive:        true,
	}
	req.apply(&rule)
	if !h.checkRule(w, r, &rule) {
		return
	}

	if err := h.store.CreateRule(r.Context(), &rule); err != nil {
		h.logger.Error("failed to create rule", zap.Error(err))
		server.InternalError(w, "failed to create notification rule", r.URL.Path)
		return
	}
	h.logger.Info("notification rule created",
		zap.Int64("rule_id", rule.ID),
		zap.String("condition_type", string(rule.ConditionType)),
	)
	server.WriteJSON(w, http.StatusCreated, rule)
}

// handleGetRule returns one rule.
//
//	@Summary		Get notification rule
//	@Tags			notifications
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"Rule ID"
//	@Success		200	{object}	models.NotificationRule
//	@Failure		404	{object}	server.Problem
//	@Router			/notification-rules/{id} [get]
func (h *Handler) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.loadRule(w, r)
	if !ok {
		return
	}
	server.WriteJSON(w, http.StatusOK, rule)
}

// handleUpdateRule applies a partial update and resets the rule's
// evaluation state.
//
//	@Summary		Update notification rule
//	@Tags			notifications
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		int			true	"Rule ID"
//	@Param			request	body		RuleRequest	true	"Fields to change"
//	@Success		200		{object}	models.NotificationRule
//	@Failure		400		{object}	server.Problem
//	@Failure		404		{object}	server.Problem
//	@Router			/notification-rules/{id} [patch]
func (h *Handler) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.loadRule(w, r)
	if !ok {
		return
	}
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}
	req.apply(rule)
	if !h.checkRule(w, r, rule) {
		return
	}

	if err := h.store.UpdateRule(r.Context(), rule); err != nil {
		h.logger.Error("failed to update rule", zap.Int64("rule_id", rule.ID), zap.Error(err))
		server.InternalError(w, "failed to update notification rule", r.URL.Path)
		return
	}
	h.evaluator.ResetRule(rule.ID)
	server.WriteJSON(w, http.StatusOK, rule)
}

// handleDeleteRule removes a rule.
//
//	@Summary		Delete notification rule
//	@Tags			notifications
//	@Security		BearerAuth
//	@Param			id	path	int	true	"Rule ID"
//	@Success		204
//	@Failure		404	{object}	server.Problem
//	@Router			/notification-rules/{id} [delete]
func (h *Handler) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := server.PathID(r)
	if !ok {
		server.BadRequest(w, "invalid rule id", r.URL.Path)
		return
	}
	deleted, err := h.store.DeleteRule(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to delete rule", zap.Int64("rule_id", id), zap.Error(err))
		server.InternalError(w, "failed to delete notification rule", r.URL.Path)
		return
	}
	if !deleted {
		server.NotFound(w, "notification rule not found", r.URL.Path)
		return
	}
	h.evaluator.ResetRule(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleTestRule sends the rule's notification with sample values.
//
//	@Summary		Test notification rule
//	@Tags			notifications
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"Rule ID"
//	@Success		200	{object}	models.DeliveryResult
//	@Failure		404	{object}	server.Problem
//	@Router			/notification-rules/{id}/test [post]
func (h *Handler) handleTestRule(w http.ResponseWriter, r *http.Request) {
	id, ok := server.PathID(r)
	if !ok {
		server.BadRequest(w, "invalid rule id", r.URL.Path)
		return
	}
	res, err := h.evaluator.TestRule(r.Context(), id)
	if errors.Is(err, ErrRuleNotFound) {
		server.NotFound(w, "notification rule not found", r.URL.Path)
		return
	}
	if err != nil {
		h.logger.Error("failed to test rule", zap.Int64("rule_id", id), zap.Error(err))
		server.InternalError(w, "failed to test notification rule", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) loadRule(w http.ResponseWriter, r *http.Request) (*models.NotificationRule, bool) {
	id, ok := server.PathID(r)
	if !ok {
		server.BadRequest(w, "invalid rule id", r.URL.Path)
		return nil, false
	}
	rule, err := h.store.GetRule(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get rule", zap.Int64("rule_id", id), zap.Error(err))
		server.InternalError(w, "failed to get notification rule", r.URL.Path)
		return nil, false
	}
	if rule == nil {
		server.NotFound(w, "notification rule not found", r.URL.Path)
		return nil, false
	}
	return rule, true
}

// checkRule validates the rule's shape (400) and then the existence of
// everything it references (404). It writes the response on failure.
func (h *Handler) checkRule(w http.ResponseWriter, r *http.Request, rule *models.NotificationRule) bool {
	if err := validateRule(rule); err != nil {
		server.BadRequest(w, models.Detail(err), r.URL.Path)
		return false
	}
	missing, err := h.missingReference(r.Context(), rule)
	if err != nil {
		h.logger.Error("failed to resolve rule references", zap.Error(err))
		server.InternalError(w, "failed to validate notification rule", r.URL.Path)
		return false
	}
	if missing != "" {
		server.NotFound(w, missing, r.URL.Path)
		return false
	}
	return true
}

// missingReference returns a message naming the first referenced entity
// that does not exist, or "".
func (h *Handler) missingReference(ctx context.Context, rule *models.NotificationRule) (string, error) {
	wh, err := h.store.GetWebhook(ctx, rule.WebhookID)
	if err != nil {
		return "", err
	}
	if wh == nil {
		return "webhook not found", nil
	}

	if rule.TemplateID != nil {
		t, err := h.store.GetTemplate(ctx, *rule.TemplateID)
		if err != nil {
			return "", err
		}
		if t == nil {
			return "notification template not found", nil
		}
	}

	switch rule.TargetType {
	case models.TargetIntegration:
		in, err := h.refs.GetIntegration(ctx, *rule.TargetID)
		if err != nil {
			return "", err
		}
		if in == nil {
			return "integration not found", nil
		}
	case models.TargetCard:
		c, err := h.refs.GetCard(ctx, *rule.TargetID)
		if err != nil {
			return "", err
		}
		if c == nil {
			return "card not found", nil
		}
	}
	return "", nil
}

// validateRule checks the rule after defaults and request fields are
// applied.
func validateRule(r *models.NotificationRule) error {
	if r.Name == "" || len(r.Name) > maxNameLen {
		return models.NewConfigurationError("name must be 1-%d characters", maxNameLen)
	}
	if r.WebhookID <= 0 {
		return models.NewConfigurationError("webhook_id is required")
	}
	switch r.TargetType {
	case models.TargetAll:
	case models.TargetCard, models.TargetIntegration:
		if r.TargetID == nil || *r.TargetID <= 0 {
			return models.NewConfigurationError("target_id is required for target_type %q", r.TargetType)
		}
	default:
		return models.NewConfigurationError("target_type must be one of all, card, integration")
	}
	if r.MetricType == "" {
		return models.NewConfigurationError("metric_type is required")
	}
	switch r.ConditionType {
	case models.ConditionThreshold:
		if r.Operator == nil || !r.Operator.Valid() {
			return models.NewConfigurationError("operator must be one of gt, lt, gte, lte, eq")
		}
		if r.Threshold == nil {
			return models.NewConfigurationError("threshold is required for threshold rules")
		}
		if r.FromStatus != nil || r.ToStatus != nil {
			return models.NewConfigurationError("from_status and to_status apply only to status_change rules")
		}
	case models.ConditionStatusChange:
		if r.FromStatus == nil && r.ToStatus == nil {
			return models.NewConfigurationError("status_change rules need from_status or to_status")
		}
		if r.Operator != nil || r.Threshold != nil {
			return models.NewConfigurationError("operator and threshold apply only to threshold rules")
		}
	default:
		return models.NewConfigurationError("condition_type must be threshold or status_change")
	}
	if !r.Severity.Valid() {
		return models.NewConfigurationError("severity must be one of info, warning, critical")
	}
	if r.CooldownMinutes < 0 {
		return models.NewConfigurationError("cooldown_minutes must not be negative")
	}
	if r.AggregationWindowMs < 0 {
		return models.NewConfigurationError("aggregation_window_ms must not be negative")
	}
	if r.AggregationEnabled && r.AggregationWindowMs == 0 {
		return models.NewConfigurationError("aggregation_window_ms is required when aggregation is enabled")
	}
	return nil
}
