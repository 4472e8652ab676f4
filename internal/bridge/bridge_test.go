package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/pulsedeck/pkg/models"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*nats.Msg
	err  error
}

func (f *fakePublisher) PublishMsg(msg *nats.Msg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func testSnapshot() models.MetricSnapshot {
	in := &models.Integration{ID: 12, ServiceName: "kuma", ServiceType: models.ServiceUptimeKuma}
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return models.NewMetricSnapshot(in, ts, map[models.MetricCapability]models.MetricData{
		models.CapabilityUptime: {Timestamp: ts, Value: 99.5, Unit: "%"},
	})
}

func TestHandleSnapshot_publishes_json(t *testing.T) {
	pub := &fakePublisher{}
	b := New(pub, "", zap.NewNop())

	b.HandleSnapshot(context.Background(), testSnapshot())

	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, "pulsedeck.metrics.12", msg.Subject)
	assert.Equal(t, "uptime-kuma", msg.Header.Get("Pulsedeck-Service-Type"))

	var got models.MetricSnapshot
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, int64(12), got.IntegrationID)
	assert.Equal(t, "kuma", got.IntegrationName)
	assert.InDelta(t, 99.5, got.Data[models.CapabilityUptime].Value, 0.0001)
}

func TestHandleSnapshot_custom_subject(t *testing.T) {
	pub := &fakePublisher{}
	b := New(pub, "homelab.metrics", zap.NewNop())
	b.HandleSnapshot(context.Background(), testSnapshot())

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "homelab.metrics.12", pub.msgs[0].Subject)
}

func TestHandleSnapshot_publish_error_is_swallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	b := New(pub, "", zap.NewNop())

	assert.NotPanics(t, func() {
		b.HandleSnapshot(context.Background(), testSnapshot())
	})
	assert.Empty(t, pub.msgs)
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled())
	assert.Equal(t, DefaultSubject, cfg.Subject)

	cfg.URL = "nats://127.0.0.1:4222"
	assert.True(t, cfg.Enabled())
}
