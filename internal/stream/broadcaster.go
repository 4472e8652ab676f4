// Package stream fans metric snapshots out to live dashboard clients over
// Server-Sent Events and WebSocket.
package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/HerbHall/pulsedeck/pkg/models"
	"go.uber.org/zap"
)

// ErrClientNotFound is returned by SendToClient for unknown ids.
var ErrClientNotFound = errors.New("stream client not found")

// DemandHook is told when the first client connects and when the last one
// leaves. The poller implements it.
type DemandHook interface {
	Start()
	Stop()
}

// Broadcaster keeps the registry of connected clients.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string]Sink

	// hookMu orders demand transitions so Start and Stop calls match the
	// sequence of 0->1 and 1->0 changes.
	hookMu sync.Mutex
	hook   DemandHook

	logger *zap.Logger
}

// NewBroadcaster creates an empty broadcaster. hook may be nil.
func NewBroadcaster(hook DemandHook, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]Sink),
		hook:    hook,
		logger:  logger,
	}
}

// AddClient registers sink under id. Adding an id that is already present
// does nothing.
func (b *Broadcaster) AddClient(id string, sink Sink) {
	b.hookMu.Lock()
	defer b.hookMu.Unlock()

	b.mu.Lock()
	if _, ok := b.clients[id]; ok {
		b.mu.Unlock()
		return
	}
	b.clients[id] = sink
	n := len(b.clients)
	b.mu.Unlock()

	streamClients.Set(float64(n))
	b.logger.Debug("stream client connected", zap.String("client_id", id), zap.Int("clients", n))
	if n == 1 && b.hook != nil {
		b.hook.Start()
	}
}

// RemoveClient unregisters and closes the client. Unknown ids are ignored.
func (b *Broadcaster) RemoveClient(id string) {
	b.hookMu.Lock()
	defer b.hookMu.Unlock()

	b.mu.Lock()
	sink, ok := b.clients[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.clients, id)
	n := len(b.clients)
	b.mu.Unlock()

	sink.Close()
	streamClients.Set(float64(n))
	b.logger.Debug("stream client disconnected", zap.String("client_id", id), zap.Int("clients", n))
	if n == 0 && b.hook != nil {
		b.hook.Stop()
	}
}

// Broadcast encodes data once and offers it to every client. Clients whose
// sink fails are removed; delivery to the rest continues.
func (b *Broadcaster) Broadcast(event string, data any) error {
	f, err := NewFrame(event, data)
	if err != nil {
		return err
	}

	b.mu.RLock()
	targets := make(map[string]Sink, len(b.clients))
	for id, s := range b.clients {
		targets[id] = s
	}
	b.mu.RUnlock()

	var failed []string
	for id, s := range targets {
		if err := s.Send(f); err != nil {
			streamFramesTotal.WithLabelValues(event, "dropped").Inc()
			b.logger.Warn("dropping stream client", zap.String("client_id", id), zap.Error(err))
			failed = append(failed, id)
			continue
		}
		streamFramesTotal.WithLabelValues(event, "queued").Inc()
	}
	for _, id := range failed {
		b.RemoveClient(id)
	}
	return nil
}

// SendToClient offers one event to a single client.
func (b *Broadcaster) SendToClient(id, event string, data any) error {
	b.mu.RLock()
	sink, ok := b.clients[id]
	b.mu.RUnlock()
	if !ok {
		return ErrClientNotFound
	}

	f, err := NewFrame(event, data)
	if err != nil {
		return err
	}
	if err := sink.Send(f); err != nil {
		b.RemoveClient(id)
		return err
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// CloseAll disconnects every client. Used on shutdown.
func (b *Broadcaster) CloseAll() {
	b.hookMu.Lock()
	defer b.hookMu.Unlock()

	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[string]Sink)
	b.mu.Unlock()

	for _, s := range clients {
		s.Close()
	}
	streamClients.Set(0)
	if len(clients) > 0 && b.hook != nil {
		b.hook.Stop()
	}
}

// HandleSnapshot is the event bus subscriber that forwards snapshots as
// metrics events.
func (b *Broadcaster) HandleSnapshot(_ context.Context, snap models.MetricSnapshot) {
	if b.ClientCount() == 0 {
		return
	}
	if err := b.Broadcast(EventMetrics, snap); err != nil {
		b.logger.Error("failed to broadcast snapshot",
			zap.Int64("integration_id", snap.IntegrationID),
			zap.Error(err),
		)
	}
}
