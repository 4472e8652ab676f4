package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/HerbHall/pulsedeck/pkg/models"
	"go.uber.org/zap"
)

// Provider delivers notifications in one provider's wire format.
type Provider interface {
	Type() models.ProviderType
	// Validate checks a destination string before it is stored.
	Validate(dest string) error
	Send(ctx context.Context, dest string, n models.Notification) error
}

// WebhookSource looks up delivery destinations.
type WebhookSource interface {
	GetWebhook(ctx context.Context, id int64) (*models.WebhookConfig, error)
}

// Dispatcher resolves a webhook and hands the notification to its provider.
type Dispatcher struct {
	webhooks  WebhookSource
	providers map[models.ProviderType]Provider
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewDispatcher creates a dispatcher with the built-in providers.
func NewDispatcher(webhooks WebhookSource, cfg Config, client *http.Client, logger *zap.Logger) *Dispatcher {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.PushoverURL == "" {
		cfg.PushoverURL = DefaultPushoverURL
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultConfig().DispatchTimeout
	}
	d := &Dispatcher{
		webhooks:  webhooks,
		providers: make(map[models.ProviderType]Provider),
		timeout:   cfg.DispatchTimeout,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, p := range []Provider{
		newDiscord(client),
		newTelegram(),
		newPushover(client, cfg.PushoverURL),
	} {
		d.providers[p.Type()] = p
	}
	return d
}

// providerFor resolves the provider for t.
func (d *Dispatcher) providerFor(t models.ProviderType) (Provider, error) {
	p, ok := d.providers[t]
	if !ok {
		return nil, models.NewConfigurationError("unsupported provider type %q", t)
	}
	return p, nil
}

// Validate checks dest for provider t.
func (d *Dispatcher) Validate(t models.ProviderType, dest string) error {
	p, err := d.providerFor(t)
	if err != nil {
		return err
	}
	return p.Validate(dest)
}

// Dispatch sends n to the webhook. It never returns an error; failures,
// including a webhook that vanished mid-evaluation, are reported in the
// result.
func (d *Dispatcher) Dispatch(ctx context.Context, webhookID int64, n models.Notification) models.DeliveryResult {
	log := d.logger.With(zap.Int64("webhook_id", webhookID))

	w, err := d.webhooks.GetWebhook(ctx, webhookID)
	if err != nil {
		log.Error("failed to load webhook", zap.Error(err))
		return models.DeliveryResult{Success: false, Message: "failed to load webhook"}
	}
	if w == nil {
		log.Warn("dispatch skipped: webhook not found")
		return models.DeliveryResult{Success: false, Message: "webhook not found"}
	}
	if !w.IsActive {
		log.Debug("dispatch skipped: webhook inactive")
		return models.DeliveryResult{Success: false, Message: "webhook is inactive"}
	}

	p, err := d.providerFor(w.ProviderType)
	if err != nil {
		log.Error("dispatch failed", zap.Error(err))
		return models.DeliveryResult{Success: false, Message: models.Detail(err)}
	}

	sctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := p.Send(sctx, w.WebhookURL, n); err != nil {
		notificationsTotal.WithLabelValues(string(w.ProviderType), "failed").Inc()
		log.Warn("notification delivery failed",
			zap.String("provider", string(w.ProviderType)),
			zap.Error(err),
		)
		return models.DeliveryResult{Success: false, Message: models.Detail(err)}
	}

	notificationsTotal.WithLabelValues(string(w.ProviderType), "sent").Inc()
	log.Info("notification sent",
		zap.String("provider", string(w.ProviderType)),
		zap.String("severity", string(n.Severity)),
	)
	return models.DeliveryResult{Success: true, Message: fmt.Sprintf("notification sent via %s", w.ProviderType)}
}

// Test sends a synthetic notification to the webhook.
func (d *Dispatcher) Test(ctx context.Context, webhookID int64) models.DeliveryResult {
	return d.Dispatch(ctx, webhookID, models.Notification{
		Title:     "PulseDeck test notification",
		Message:   "If you can read this, the webhook is configured correctly.",
		Severity:  models.SeverityInfo,
		Timestamp: d.now(),
	})
}
