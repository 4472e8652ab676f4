package monitor

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/HerbHall/pulsedeck/internal/server"
	"github.com/HerbHall/pulsedeck/pkg/models"
	"go.uber.org/zap"
)

const maxServiceNameLen = 100

// CredentialSealer encrypts credentials for storage.
type CredentialSealer interface {
	Seal(creds models.Credentials) (string, error)
}

// Handler serves the integration admin API.
type Handler struct {
	store  *Store
	poller *Poller
	sealer CredentialSealer
	logger *zap.Logger
}

// NewHandler creates the integration API handler.
func NewHandler(store *Store, poller *Poller, sealer CredentialSealer, logger *zap.Logger) *Handler {
	return &Handler{store: store, poller: poller, sealer: sealer, logger: logger}
}

// RegisterRoutes mounts the integration and monitor routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/integrations", h.handleList)
	mux.HandleFunc("POST /api/v1/integrations", h.handleCreate)
	mux.HandleFunc("GET /api/v1/integrations/{id}", h.handleGet)
	mux.HandleFunc("PATCH /api/v1/integrations/{id}", h.handleUpdate)
	mux.HandleFunc("DELETE /api/v1/integrations/{id}", h.handleDelete)
	mux.HandleFunc("POST /api/v1/integrations/{id}/test", h.handleTest)
	mux.HandleFunc("POST /api/v1/integrations/{id}/poll", h.handlePoll)
	mux.HandleFunc("GET /api/v1/integrations/{id}/capabilities", h.handleCapabilities)
	mux.HandleFunc("GET /api/v1/monitor/status", h.handleStatus)
}

// CreateIntegrationRequest is the body of POST /integrations.
type CreateIntegrationRequest struct {
	ServiceName    string              `json:"service_name" example:"Home NAS"`
	ServiceType    models.ServiceType  `json:"service_type" example:"unraid"`
	Credentials    *models.Credentials `json:"credentials"`
	PollIntervalMs *int                `json:"poll_interval_ms,omitempty" example:"30000"`
	IsActive       *bool               `json:"is_active,omitempty"`
}

// UpdateIntegrationRequest is the body of PATCH /integrations/{id}. Omitted
// fields are left unchanged.
type UpdateIntegrationRequest struct {
	ServiceName    *string             `json:"service_name,omitempty"`
	Credentials    *models.Credentials `json:"credentials,omitempty"`
	PollIntervalMs *int                `json:"poll_interval_ms,omitempty"`
	IsActive       *bool               `json:"is_active,omitempty"`
}

// CapabilitiesResponse lists what an integration can report.
type CapabilitiesResponse struct {
	IntegrationID int64                     `json:"integration_id"`
	Capabilities  []models.MetricCapability `json:"capabilities"`
}

// handleList returns every integration without credentials.
//
//	@Summary		List integrations
//	@Tags			integrations
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{array}		models.Integration
//	@Failure		500	{object}	server.Problem
//	@Router			/integrations [get]
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListIntegrations(r.Context())
	if err != nil {
		h.logger.Error("failed to list integrations", zap.Error(err))
		server.InternalError(w, "failed to list integrations", r.URL.Path)
		return
	}
	if list == nil {
		list = []models.Integration{}
	}
	server.WriteJSON(w, http.StatusOK, list)
}

// handleCreate validates and stores a new integration.
//
//	@Summary		Create integration
//	@Tags			integrations
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		CreateIntegrationRequest	true	"Integration"
//	@Success		201		{object}	models.Integration
//	@Failure		400		{object}	server.Problem
//	@Router			/integrations [post]
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateIntegrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}

	in := models.Integration{
		ServiceName:    strings.TrimSpace(req.ServiceName),
		ServiceType:    req.ServiceType,
		PollIntervalMs: models.DefaultPollIntervalMs,
		IsActive:       true,
	}
	if req.PollIntervalMs != nil {
		in.PollIntervalMs = *req.PollIntervalMs
	}
	if req.IsActive != nil {
		in.IsActive = *req.IsActive
	}
	if err := validateIntegration(&in, req.Credentials, true); err != nil {
		server.BadRequest(w, models.Detail(err), r.URL.Path)
		return
	}

	blob, err := h.sealer.Seal(*req.Credentials)
	if err != nil {
		h.logger.Error("failed to encrypt credentials", zap.Error(err))
		server.InternalError(w, "failed to encrypt credentials", r.URL.Path)
		return
	}
	in.Credentials = blob

	if err := h.store.CreateIntegration(r.Context(), &in); err != nil {
		h.logger.Error("failed to create integration", zap.Error(err))
		server.InternalError(w, "failed to create integration", r.URL.Path)
		return
	}
	h.logger.Info("integration created",
		zap.Int64("integration_id", in.ID),
		zap.String("service_type", string(in.ServiceType)),
	)
	server.WriteJSON(w, http.StatusCreated, in)
}

// handleGet returns one integration.
//
//	@Summary		Get integration
//	@Tags			integrations
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"Integration ID"
//	@Success		200	{object}	models.Integration
//	@Failure		404	{object}	server.Problem
//	@Router			/integrations/{id} [get]
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	in, ok := h.load(w, r)
	if !ok {
		return
	}
	server.WriteJSON(w, http.StatusOK, in)
}

// handleUpdate applies a partial update. New credentials are re-encrypted.
//
//	@Summary		Update integration
//	@Tags			integrations
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		int							true	"Integration ID"
//	@Param			request	body		UpdateIntegrationRequest	true	"Fields to change"
//	@Success		200		{object}	models.Integration
//	@Failure		400		{object}	server.Problem
//	@Failure		404		{object}	server.Problem
//	@Router			/integrations/{id} [patch]
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	in, ok := h.load(w, r)
	if !ok {
		return
	}
	var req UpdateIntegrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}

	if req.ServiceName != nil {
		in.ServiceName = strings.TrimSpace(*req.ServiceName)
	}
	if req.PollIntervalMs != nil {
		in.PollIntervalMs = *req.PollIntervalMs
	}
	if req.IsActive != nil {
		in.IsActive = *req.IsActive
	}
	if err := validateIntegration(in, req.Credentials, false); err != nil {
		server.BadRequest(w, models.Detail(err), r.URL.Path)
		return
	}
	if req.Credentials != nil {
		blob, err := h.sealer.Seal(*req.Credentials)
		if err != nil {
			h.logger.Error("failed to encrypt credentials", zap.Error(err))
			server.InternalError(w, "failed to encrypt credentials", r.URL.Path)
			return
		}
		in.Credentials = blob
	}

	if err := h.store.UpdateIntegration(r.Context(), in); err != nil {
		h.logger.Error("failed to update integration", zap.Int64("integration_id", in.ID), zap.Error(err))
		server.InternalError(w, "failed to update integration", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, in)
}

// handleDelete removes an integration.
//
//	@Summary		Delete integration
//	@Tags			integrations
//	@Security		BearerAuth
//	@Param			id	path	int	true	"Integration ID"
//	@Success		204
//	@Failure		404	{object}	server.Problem
//	@Router			/integrations/{id} [delete]
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := server.PathID(r)
	if !ok {
		server.BadRequest(w, "invalid integration id", r.URL.Path)
		return
	}
	deleted, err := h.store.DeleteIntegration(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to delete integration", zap.Int64("integration_id", id), zap.Error(err))
		server.InternalError(w, "failed to delete integration", r.URL.Path)
		return
	}
	if !deleted {
		server.NotFound(w, "integration not found", r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTest runs the driver connection test and records the outcome.
//
//	@Summary		Test integration connection
//	@Tags			integrations
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"Integration ID"
//	@Success		200	{object}	driver.TestResult
//	@Failure		404	{object}	server.Problem
//	@Router			/integrations/{id}/test [post]
func (h *Handler) handleTest(w http.ResponseWriter, r *http.Request) {
	id, ok := server.PathID(r)
	if !ok {
		server.BadRequest(w, "invalid integration id", r.URL.Path)
		return
	}
	res, err := h.poller.TestIntegration(r.Context(), id)
	if err != nil {
		h.writePollerError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, res)
}

// handlePoll polls one integration immediately and returns its snapshot.
//
//	@Summary		Poll integration now
//	@Tags			integrations
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"Integration ID"
//	@Success		200	{object}	models.MetricSnapshot
//	@Failure		404	{object}	server.Problem
//	@Failure		502	{object}	server.Problem
//	@Router			/integrations/{id}/poll [post]
func (h *Handler) handlePoll(w http.ResponseWriter, r *http.Request) {
	id, ok := server.PathID(r)
	if !ok {
		server.BadRequest(w, "invalid integration id", r.URL.Path)
		return
	}
	snap, err := h.poller.PollIntegration(r.Context(), id)
	if snap != nil {
		server.WriteJSON(w, http.StatusOK, snap)
		return
	}
	h.writePollerError(w, r, err)
}

// handleCapabilities lists the metrics an integration can report.
//
//	@Summary		Integration capabilities
//	@Tags			integrations
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"Integration ID"
//	@Success		200	{object}	CapabilitiesResponse
//	@Failure		404	{object}	server.Problem
//	@Failure		502	{object}	server.Problem
//	@Router			/integrations/{id}/capabilities [get]
func (h *Handler) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	id, ok := server.PathID(r)
	if !ok {
		server.BadRequest(w, "invalid integration id", r.URL.Path)
		return
	}
	caps, err := h.poller.Capabilities(r.Context(), id)
	if err != nil {
		h.writePollerError(w, r, err)
		return
	}
	if caps == nil {
		caps = []models.MetricCapability{}
	}
	server.WriteJSON(w, http.StatusOK, CapabilitiesResponse{IntegrationID: id, Capabilities: caps})
}

// handleStatus reports the poller state.
//
//	@Summary		Poller status
//	@Tags			monitor
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	Status
//	@Router			/monitor/status [get]
func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	server.WriteJSON(w, http.StatusOK, h.poller.Status())
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*models.Integration, bool) {
	id, ok := server.PathID(r)
	if !ok {
		server.BadRequest(w, "invalid integration id", r.URL.Path)
		return nil, false
	}
	in, err := h.store.GetIntegration(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get integration", zap.Int64("integration_id", id), zap.Error(err))
		server.InternalError(w, "failed to get integration", r.URL.Path)
		return nil, false
	}
	if in == nil {
		server.NotFound(w, "integration not found", r.URL.Path)
		return nil, false
	}
	return in, true
}

func (h *Handler) writePollerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrIntegrationNotFound):
		server.NotFound(w, "integration not found", r.URL.Path)
	case models.IsConfiguration(err):
		server.BadRequest(w, models.Detail(err), r.URL.Path)
	case models.IsConnection(err):
		server.WriteError(w, r, http.StatusBadGateway, models.Detail(err))
	default:
		h.logger.Warn("integration request failed", zap.String("path", r.URL.Path), zap.Error(err))
		server.WriteError(w, r, http.StatusBadGateway, models.Detail(err))
	}
}

// validateIntegration checks in after defaults and request fields are
// applied. Credentials are required on create and optional on update.
func validateIntegration(in *models.Integration, creds *models.Credentials, create bool) error {
	if in.ServiceName == "" || len(in.ServiceName) > maxServiceNameLen {
		return models.NewConfigurationError("service_name must be 1-%d characters", maxServiceNameLen)
	}
	if !in.ServiceType.Valid() {
		return models.NewConfigurationError("service_type must be one of %v", models.ServiceTypes())
	}
	if in.PollIntervalMs < models.MinPollIntervalMs {
		return models.NewConfigurationError("poll_interval_ms must be at least %d", models.MinPollIntervalMs)
	}
	if creds == nil {
		if create {
			return models.NewConfigurationError("credentials are required")
		}
		return nil
	}
	if strings.TrimSpace(creds.URL) == "" {
		return models.NewConfigurationError("credentials.url is required")
	}
	return nil
}
