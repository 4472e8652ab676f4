package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStreamServer(t *testing.T, cfg Config) (*httptest.Server, *Broadcaster, *fakeHook) {
	t.Helper()
	hook := &fakeHook{}
	b := NewBroadcaster(hook, zap.NewNop())
	mux := http.NewServeMux()
	NewHandler(b, cfg, zap.NewNop()).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, b, hook
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

// readEvent reads one SSE event, skipping comment lines.
func readEvent(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestSSE_stream(t *testing.T) {
	srv, b, hook := newStreamServer(t, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/stream/metrics", http.NoBody)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache, no-transform", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	r := bufio.NewReader(resp.Body)
	event, data := readEvent(t, r)
	assert.Equal(t, EventConnected, event)
	var connected ConnectedData
	require.NoError(t, json.Unmarshal([]byte(data), &connected))
	assert.NotEmpty(t, connected.ClientID)

	eventually(t, func() bool { return b.ClientCount() == 1 })
	running, _, _ := hook.state()
	assert.True(t, running)

	require.NoError(t, b.Broadcast(EventMetrics, map[string]int{"integration_id": 5}))
	event, data = readEvent(t, r)
	assert.Equal(t, EventMetrics, event)
	assert.JSONEq(t, `{"integration_id":5}`, data)

	cancel()
	eventually(t, func() bool { return b.ClientCount() == 0 })
	eventually(t, func() bool { running, _, _ := hook.state(); return !running })
}

func TestSSE_keep_alive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeepAliveInterval = 20 * time.Millisecond
	srv, _, _ := newStreamServer(t, cfg)

	resp, err := http.Get(srv.URL + "/api/v1/stream/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	readEvent(t, r)
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if line == ":keep-alive\n" {
			return
		}
	}
}

func TestWebSocket_stream(t *testing.T) {
	srv, b, hook := newStreamServer(t, DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/metrics"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var msg struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, EventConnected, msg.Event)

	eventually(t, func() bool { return b.ClientCount() == 1 })
	running, _, _ := hook.state()
	assert.True(t, running)

	require.NoError(t, b.Broadcast(EventMetrics, []int{1, 2}))
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, EventMetrics, msg.Event)
	assert.JSONEq(t, `[1,2]`, string(msg.Data))

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	eventually(t, func() bool { return b.ClientCount() == 0 })
	eventually(t, func() bool { running, _, _ := hook.state(); return !running })
}
