package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/pulsedeck/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSink struct {
	mu     sync.Mutex
	frames []Frame
	err    error
	closed bool
}

func (s *fakeSink) Send(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSink) received() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

type fakeHook struct {
	mu      sync.Mutex
	running bool
	starts  int
	stops   int
}

func (h *fakeHook) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = true
	h.starts++
}

func (h *fakeHook) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
	h.stops++
}

func (h *fakeHook) state() (bool, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running, h.starts, h.stops
}

func TestAddRemoveClient_idempotent(t *testing.T) {
	b := NewBroadcaster(nil, zap.NewNop())
	s := &fakeSink{}

	b.AddClient("a", s)
	b.AddClient("a", &fakeSink{})
	assert.Equal(t, 1, b.ClientCount())

	b.RemoveClient("a")
	b.RemoveClient("a")
	b.RemoveClient("never-added")
	assert.Equal(t, 0, b.ClientCount())
	assert.True(t, s.closed, "removed sink should be closed")
}

func TestBroadcast_delivers_to_all(t *testing.T) {
	b := NewBroadcaster(nil, zap.NewNop())
	s1, s2 := &fakeSink{}, &fakeSink{}
	b.AddClient("1", s1)
	b.AddClient("2", s2)

	require.NoError(t, b.Broadcast(EventMetrics, map[string]int{"cpu": 42}))

	for _, s := range []*fakeSink{s1, s2} {
		got := s.received()
		require.Len(t, got, 1)
		assert.Equal(t, EventMetrics, got[0].Event)
		assert.JSONEq(t, `{"cpu":42}`, string(got[0].Data))
	}
}

func TestBroadcast_removes_failing_client(t *testing.T) {
	b := NewBroadcaster(nil, zap.NewNop())
	good1, bad, good2 := &fakeSink{}, &fakeSink{err: ErrSlowConsumer}, &fakeSink{}
	b.AddClient("good1", good1)
	b.AddClient("bad", bad)
	b.AddClient("good2", good2)

	require.NoError(t, b.Broadcast(EventMetrics, "x"))

	assert.Equal(t, 2, b.ClientCount())
	assert.True(t, bad.closed)
	assert.Len(t, good1.received(), 1)
	assert.Len(t, good2.received(), 1)

	require.NoError(t, b.Broadcast(EventMetrics, "y"))
	assert.Len(t, good1.received(), 2)
}

func TestBroadcast_unmarshalable(t *testing.T) {
	b := NewBroadcaster(nil, zap.NewNop())
	b.AddClient("a", &fakeSink{})
	assert.Error(t, b.Broadcast(EventMetrics, make(chan int)))
}

func TestSendToClient(t *testing.T) {
	b := NewBroadcaster(nil, zap.NewNop())
	s := &fakeSink{}
	b.AddClient("a", s)

	require.NoError(t, b.SendToClient("a", EventConnected, ConnectedData{ClientID: "a"}))
	assert.Len(t, s.received(), 1)

	assert.ErrorIs(t, b.SendToClient("missing", EventMetrics, 1), ErrClientNotFound)

	s.err = errors.New("gone")
	assert.Error(t, b.SendToClient("a", EventMetrics, 1))
	assert.Equal(t, 0, b.ClientCount())
}

func TestDemandHook_lifecycle(t *testing.T) {
	hook := &fakeHook{}
	b := NewBroadcaster(hook, zap.NewNop())

	running, _, _ := hook.state()
	assert.False(t, running, "no clients, hook should not be started")

	b.AddClient("a", &fakeSink{})
	running, starts, _ := hook.state()
	assert.True(t, running)
	assert.Equal(t, 1, starts)

	b.AddClient("b", &fakeSink{})
	b.RemoveClient("a")
	running, starts, stops := hook.state()
	assert.True(t, running, "one client left")
	assert.Equal(t, 1, starts)
	assert.Equal(t, 0, stops)

	b.RemoveClient("b")
	running, _, stops = hook.state()
	assert.False(t, running)
	assert.Equal(t, 1, stops)

	b.AddClient("c", &fakeSink{})
	running, starts, _ = hook.state()
	assert.True(t, running)
	assert.Equal(t, 2, starts)
}

func TestDemandHook_stops_when_last_client_dropped(t *testing.T) {
	hook := &fakeHook{}
	b := NewBroadcaster(hook, zap.NewNop())
	b.AddClient("slow", &fakeSink{err: ErrSlowConsumer})

	require.NoError(t, b.Broadcast(EventMetrics, 1))

	running, _, stops := hook.state()
	assert.False(t, running)
	assert.Equal(t, 1, stops)
}

func TestCloseAll(t *testing.T) {
	hook := &fakeHook{}
	b := NewBroadcaster(hook, zap.NewNop())
	s1, s2 := &fakeSink{}, &fakeSink{}
	b.AddClient("1", s1)
	b.AddClient("2", s2)

	b.CloseAll()

	assert.Equal(t, 0, b.ClientCount())
	assert.True(t, s1.closed)
	assert.True(t, s2.closed)
	running, _, stops := hook.state()
	assert.False(t, running)
	assert.Equal(t, 1, stops)

	b.CloseAll()
	_, _, stops = hook.state()
	assert.Equal(t, 1, stops, "CloseAll with no clients must not stop again")
}

func TestHandleSnapshot(t *testing.T) {
	b := NewBroadcaster(nil, zap.NewNop())
	s := &fakeSink{}
	b.AddClient("a", s)

	in := &models.Integration{ID: 3, ServiceName: "kuma", ServiceType: models.ServiceUptimeKuma}
	snap := models.NewMetricSnapshot(in, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), map[models.MetricCapability]models.MetricData{
		models.CapabilityUptime: {Value: true, Unit: "boolean"},
	})
	b.HandleSnapshot(context.Background(), snap)

	got := s.received()
	require.Len(t, got, 1)
	assert.Equal(t, EventMetrics, got[0].Event)

	var decoded models.MetricSnapshot
	require.NoError(t, json.Unmarshal(got[0].Data, &decoded))
	assert.Equal(t, int64(3), decoded.IntegrationID)
	assert.Contains(t, decoded.Data, models.CapabilityUptime)
}

func TestQueueSink(t *testing.T) {
	s := newQueueSink(1)
	require.NoError(t, s.Send(Frame{Event: "a"}))
	assert.ErrorIs(t, s.Send(Frame{Event: "b"}), ErrSlowConsumer)

	s.Close()
	s.Close()
	assert.ErrorIs(t, s.Send(Frame{Event: "c"}), ErrSinkClosed)
}

func TestFrameSSE(t *testing.T) {
	f, err := NewFrame(EventMetrics, map[string]any{"v": 1})
	require.NoError(t, err)
	assert.Equal(t, "event: metrics\ndata: {\"v\":1}\n\n", string(f.SSE()))
}

func TestConcurrentBroadcastAndRemove(t *testing.T) {
	b := NewBroadcaster(&fakeHook{}, zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		b.AddClient(id, &fakeSink{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = b.Broadcast(EventMetrics, i)
		}()
		go func() {
			defer wg.Done()
			b.RemoveClient(id)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.ClientCount())
}
