package notify

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/HerbHall/pulsedeck/internal/server"
	"github.com/HerbHall/pulsedeck/pkg/models"
	"go.uber.org/zap"
)

// WebhookRequest is the body of POST and PATCH /webhooks.
type WebhookRequest struct {
	Name         *string              `json:"name,omitempty" example:"Ops channel"`
	ProviderType *models.ProviderType `json:"provider_type,omitempty" example:"discord"`
	WebhookURL   *string              `json:"webhook_url,omitempty"`
	IsActive     *bool                `json:"is_active,omitempty"`
}

func (req *WebhookRequest) apply(wh *models.WebhookConfig) {
	if req.Name != nil {
		wh.Name = strings.TrimSpace(*req.Name)
	}
	if req.ProviderType != nil {
		wh.ProviderType = *req.ProviderType
	}
	if req.WebhookURL != nil {
		wh.WebhookURL = strings.TrimSpace(*req.WebhookURL)
	}
	if req.IsActive != nil {
		wh.IsActive = *req.IsActive
	}
}

func (h *Handler) validateWebhook(wh *models.WebhookConfig) error {
	if wh.Name == "" || len(wh.Name) > maxNameLen {
		return models.NewConfigurationError("name must be 1-%d characters", maxNameLen)
	}
	if wh.WebhookURL == "" {
		return models.NewConfigurationError("webhook_url is required")
	}
	return h.dispatcher.Validate(wh.ProviderType, wh.WebhookURL)
}

// handleListWebhooks returns every webhook.
//
//	@Summary		List webhooks
//	@Tags			notifications
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{array}		models.WebhookConfig
//	@Router			/webhooks [get]
func (h *Handler) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListWebhooks(r.Context())
	if err != nil {
		h.logger.Error("failed to list webhooks", zap.Error(err))
		server.InternalError(w, "failed to list webhooks", r.URL.Path)
		return
	}
	if list == nil {
		list = []models.WebhookConfig{}
	}
	server.WriteJSON(w, http.StatusOK, list)
}

// handleCreateWebhook validates the destination for its provider and
// stores it.
//
//	@Summary		Create webhook
//	@Tags			notifications
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		WebhookRequest	true	"Webhook"
//	@Success		201		{object}	models.WebhookConfig
//	@Failure		400		{object}	server.Problem
//	@Router			/webhooks [post]
func (h *Handler) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}
	wh := models.WebhookConfig{IsActive: true}
	req.apply(&wh)
	if err := h.validateWebhook(&wh); err != nil {
		server.BadRequest(w, models.Detail(err), r.URL.Path)
		return
	}
	if err := h.store.CreateWebhook(r.Context(), &wh); err != nil {
		h.logger.Error("failed to create webhook", zap.Error(err))
		server.InternalError(w, "failed to create webhook", r.URL.Path)
		return
	}
	h.logger.Info("webhook created",
		zap.Int64("webhook_id", wh.ID),
		zap.String("provider", string(wh.ProviderType)),
	)
	server.WriteJSON(w, http.StatusCreated, wh)
}

// handleGetWebhook returns one webhook.
//
//	@Summary		Get webhook
//	@Tags			notifications
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"Webhook ID"
//	@Success		200	{object}	models.WebhookConfig
//	@Failure		404	{object}	server.Problem
//	@Router			/webhooks/{id} [get]
func (h *Handler) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	wh, ok := h.loadWebhook(w, r)
	if !ok {
		return
	}
	server.WriteJSON(w, http.StatusOK, wh)
}

// handleUpdateWebhook applies a partial update.
//
//	@Summary		Update webhook
//	@Tags			notifications
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		int				true	"Webhook ID"
//	@Param			request	body		WebhookRequest	true	"Fields to change"
//	@Success		200		{object}	models.WebhookConfig
//	@Failure		400		{object}	server.Problem
//	@Failure		404		{object}	server.Problem
//	@Router			/webhooks/{id} [patch]
func (h *Handler) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	wh, ok := h.loadWebhook(w, r)
	if !ok {
		return
	}
	var req WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}
	req.apply(wh)
	if err := h.validateWebhook(wh); err != nil {
		server.BadRequest(w, models.Detail(err), r.URL.Path)
		return
	}
	if err := h.store.UpdateWebhook(r.Context(), wh); err != nil {
		h.logger.Error("failed to update webhook", zap.Int64("webhook_id", wh.ID), zap.Error(err))
		server.InternalError(w, "failed to update webhook", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, wh)
}

// handleDeleteWebhook removes a webhook and, through the foreign key, every
// rule that delivers to it.
//
//	@Summary		Delete webhook
//	@Tags			notifications
//	@Security		BearerAuth
//	@Param			id	path	int	true	"Webhook ID"
//	@Success		204
//	@Failure		404	{object}	server.Problem
//	@Router			/webhooks/{id} [delete]
func (h *Handler) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := server.PathID(r)
	if !ok {
		server.BadRequest(w, "invalid webhook id", r.URL.Path)
		return
	}
	deleted, err := h.store.DeleteWebhook(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to delete webhook", zap.Int64("webhook_id", id), zap.Error(err))
		server.InternalError(w, "failed to delete webhook", r.URL.Path)
		return
	}
	if !deleted {
		server.NotFound(w, "webhook not found", r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTestWebhook sends a synthetic notification.
//
//	@Summary		Test webhook
//	@Tags			notifications
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"Webhook ID"
//	@Success		200	{object}	models.DeliveryResult
//	@Failure		404	{object}	server.Problem
//	@Router			/webhooks/{id}/test [post]
func (h *Handler) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	wh, ok := h.loadWebhook(w, r)
	if !ok {
		return
	}
	server.WriteJSON(w, http.StatusOK, h.dispatcher.Test(r.Context(), wh.ID))
}

func (h *Handler) loadWebhook(w http.ResponseWriter, r *http.Request) (*models.WebhookConfig, bool) {
	id, ok := server.PathID(r)
	if !ok {
		server.BadRequest(w, "invalid webhook id", r.URL.Path)
		return nil, false
	}
	wh, err := h.store.GetWebhook(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get webhook", zap.Int64("webhook_id", id), zap.Error(err))
		server.InternalError(w, "failed to get webhook", r.URL.Path)
		return nil, false
	}
	if wh == nil {
		server.NotFound(w, "webhook not found", r.URL.Path)
		return nil, false
	}
	return wh, true
}

// TemplateRequest is the body of POST and PATCH /notification-templates.
type TemplateRequest struct {
	Name            *string `json:"name,omitempty" example:"Pager"`
	TitleTemplate   *string `json:"title_template,omitempty" example:"{{severity}}: {{ruleName}}"`
	MessageTemplate *string `json:"message_template,omitempty" example:"{{integrationName}} {{metricValue}}{{unit}}"`
	IsDefault       *bool   `json:"is_default,omitempty"`
	IsActive        *bool   `json:"is_active,omitempty"`
}

func (req *TemplateRequest) apply(t *models.NotificationTemplate) {
	if req.Name != nil {
		t.Name = strings.TrimSpace(*req.Name)
	}
	if req.TitleTemplate != nil {
		t.TitleTemplate = *req.TitleTemplate
	}
	if req.MessageTemplate != nil {
		t.MessageTemplate = *req.MessageTemplate
	}
	if req.IsDefault != nil {
		t.IsDefault = *req.IsDefault
	}
	if req.IsActive != nil {
		t.IsActive = *req.IsActive
	}
}

func validateTemplate(t *models.NotificationTemplate) error {
	if t.Name == "" || len(t.Name) > maxNameLen {
		return models.NewConfigurationError("name must be 1-%d characters", maxNameLen)
	}
	if strings.TrimSpace(t.TitleTemplate) == "" {
		return models.NewConfigurationError("title_template is required")
	}
	if strings.TrimSpace(t.MessageTemplate) == "" {
		return models.NewConfigurationError("message_template is required")
	}
	return nil
}

// handleListTemplates returns every template, default first.
//
//	@Summary		List notification templates
//	@Tags			notifications
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{array}	models.NotificationTemplate
//	@Router			/notification-templates [get]
func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListTemplates(r.Context())
	if err != nil {
		h.logger.Error("failed to list templates", zap.Error(err))
		server.InternalError(w, "failed to list notification templates", r.URL.Path)
		return
	}
	if list == nil {
		list = []models.NotificationTemplate{}
	}
	server.WriteJSON(w, http.StatusOK, list)
}

// handleCreateTemplate stores a template. Marking it default clears the
// previous default.
//
//	@Summary		Create notification template
//	@Tags			notifications
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		TemplateRequest	true	"Template"
//	@Success		201		{object}	models.NotificationTemplate
//	@Failure		400		{object}	server.Problem
//	@Router			/notification-templates [post]
func (h *Handler) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}
	t := models.NotificationTemplate{IsActive: true}
	req.apply(&t)
	if err := validateTemplate(&t); err != nil {
		server.BadRequest(w, models.Detail(err), r.URL.Path)
		return
	}
	if err := h.store.CreateTemplate(r.Context(), &t); err != nil {
		h.logger.Error("failed to create template", zap.Error(err))
		server.InternalError(w, "failed to create notification template", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusCreated, t)
}

// handleUpdateTemplate applies a partial update.
//
//	@Summary		Update notification template
//	@Tags			notifications
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		int				true	"Template ID"
//	@Param			request	body		TemplateRequest	true	"Fields to change"
//	@Success		200		{object}	models.NotificationTemplate
//	@Failure		400		{object}	server.Problem
//	@Failure		404		{object}	server.Problem
//	@Router			/notification-templates/{id} [patch]
func (h *Handler) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := server.PathID(r)
	if !ok {
		server.BadRequest(w, "invalid template id", r.URL.Path)
		return
	}
	t, err := h.store.GetTemplate(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get template", zap.Int64("template_id", id), zap.Error(err))
		server.InternalError(w, "failed to get notification template", r.URL.Path)
		return
	}
	if t == nil {
		server.NotFound(w, "notification template not found", r.URL.Path)
		return
	}
	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}
	req.apply(t)
	if err := validateTemplate(t); err != nil {
		server.BadRequest(w, models.Detail(err), r.URL.Path)
		return
	}
	if err := h.store.UpdateTemplate(r.Context(), t); err != nil {
		h.logger.Error("failed to update template", zap.Int64("template_id", id), zap.Error(err))
		server.InternalError(w, "failed to update notification template", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, t)
}

// handleDeleteTemplate removes a template. Rules that used it fall back to
// the default.
//
//	@Summary		Delete notification template
//	@Tags			notifications
//	@Security		BearerAuth
//	@Param			id	path	int	true	"Template ID"
//	@Success		204
//	@Failure		404	{object}	server.Problem
//	@Router			/notification-templates/{id} [delete]
func (h *Handler) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := server.PathID(r)
	if !ok {
		server.BadRequest(w, "invalid template id", r.URL.Path)
		return
	}
	deleted, err := h.store.DeleteTemplate(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to delete template", zap.Int64("template_id", id), zap.Error(err))
		server.InternalError(w, "failed to delete notification template", r.URL.Path)
		return
	}
	if !deleted {
		server.NotFound(w, "notification template not found", r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
