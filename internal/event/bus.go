// Package event provides the in-process metrics bus that carries
// MetricSnapshots from the poller to its subscribers.
package event

import (
	"context"
	"sync"
	"time"

	"github.com/HerbHall/pulsedeck/pkg/models"
	"go.uber.org/zap"
)

// Handler receives one published snapshot. Handlers run on the publisher's
// goroutine and must not block; hand work off to a queue instead.
type Handler func(ctx context.Context, snap models.MetricSnapshot)

// Bus is a typed, synchronous publish/subscribe channel for metric
// snapshots. Delivery follows registration order and there is no replay:
// a handler subscribed after a Publish never sees that snapshot.
type Bus struct {
	mu       sync.RWMutex
	handlers []handlerEntry
	nextID   uint64
	slow     time.Duration
	logger   *zap.Logger
}

type handlerEntry struct {
	id      uint64
	name    string
	handler Handler
}

// NewBus creates an empty bus. Handlers that take longer than slow are
// logged; zero disables the check.
func NewBus(logger *zap.Logger, slow time.Duration) *Bus {
	return &Bus{
		slow:   slow,
		logger: logger,
	}
}

// Publish delivers snap to every subscriber. A panicking handler is logged
// and does not stop delivery to the rest.
func (b *Bus) Publish(ctx context.Context, snap models.MetricSnapshot) {
	b.mu.RLock()
	handlers := make([]handlerEntry, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.safeCall(ctx, h, snap)
	}
}

// Subscribe registers handler under name (used in logs). The returned func
// removes it and is safe to call more than once.
func (b *Bus) Subscribe(name string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers = append(b.handlers, handlerEntry{id: id, name: name, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, e := range b.handlers {
			if e.id == id {
				// New slice so in-flight Publish copies stay intact.
				next := make([]handlerEntry, 0, len(b.handlers)-1)
				next = append(next, b.handlers[:i]...)
				b.handlers = append(next, b.handlers[i+1:]...)
				return
			}
		}
	}
}

// SubscriberCount returns the number of registered handlers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

func (b *Bus) safeCall(ctx context.Context, h handlerEntry, snap models.MetricSnapshot) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("metrics handler panicked",
				zap.String("subscriber", h.name),
				zap.Int64("integration_id", snap.IntegrationID),
				zap.Any("panic", r),
			)
		}
		if b.slow > 0 {
			if d := time.Since(start); d > b.slow {
				b.logger.Warn("slow metrics handler",
					zap.String("subscriber", h.name),
					zap.Duration("duration", d),
				)
			}
		}
	}()
	h.handler(ctx, snap)
}
