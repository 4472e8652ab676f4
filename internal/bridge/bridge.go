// Package bridge republishes metric snapshots from the in-process bus onto
// NATS so other systems can consume them.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/HerbHall/pulsedeck/pkg/models"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// DefaultSubject is the subject prefix snapshots are published under.
const DefaultSubject = "pulsedeck.metrics"

// Config holds NATS bridge settings, decoded from "bridge.nats". An empty
// URL disables the bridge.
type Config struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// DefaultConfig returns a disabled bridge config.
func DefaultConfig() Config {
	return Config{Subject: DefaultSubject}
}

// Enabled reports whether a NATS URL is configured.
func (c Config) Enabled() bool { return c.URL != "" }

var publishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pulsedeck_bridge_published_total",
		Help: "Snapshots published to NATS by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(publishedTotal)
}

// Publisher is the subset of *nats.Conn the bridge needs.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// Connect dials NATS with reconnects enabled for the process lifetime.
func Connect(cfg Config, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("pulsedeck"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %q: %w", cfg.URL, err)
	}
	return nc, nil
}

// Bridge forwards snapshots to "<subject>.<integration id>".
type Bridge struct {
	pub     Publisher
	subject string
	logger  *zap.Logger
}

// New creates a bridge publishing under subject.
func New(pub Publisher, subject string, logger *zap.Logger) *Bridge {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Bridge{pub: pub, subject: subject, logger: logger}
}

// Subject returns the subject snapshots for integration id are sent to.
func (b *Bridge) Subject(id int64) string {
	return b.subject + "." + strconv.FormatInt(id, 10)
}

// HandleSnapshot is the event bus subscriber. The NATS client buffers
// outgoing messages, so publishing does not block the poller.
func (b *Bridge) HandleSnapshot(_ context.Context, snap models.MetricSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		publishedTotal.WithLabelValues("failed").Inc()
		b.logger.Error("failed to encode snapshot", zap.Int64("integration_id", snap.IntegrationID), zap.Error(err))
		return
	}

	msg := nats.NewMsg(b.Subject(snap.IntegrationID))
	msg.Data = data
	msg.Header.Set("Pulsedeck-Service-Type", string(snap.IntegrationType))
	msg.Header.Set("Pulsedeck-Timestamp", snap.Timestamp.UTC().Format(time.RFC3339Nano))

	if err := b.pub.PublishMsg(msg); err != nil {
		publishedTotal.WithLabelValues("failed").Inc()
		b.logger.Warn("failed to publish snapshot",
			zap.Int64("integration_id", snap.IntegrationID),
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
		return
	}
	publishedTotal.WithLabelValues("published").Inc()
}
