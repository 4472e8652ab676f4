package stream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// Handler serves the SSE and WebSocket metrics streams.
type Handler struct {
	b      *Broadcaster
	cfg    Config
	logger *zap.Logger
}

// Compile-time check that Handler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates the stream handler.
func NewHandler(b *Broadcaster, cfg Config, logger *zap.Logger) *Handler {
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = DefaultConfig().KeepAliveInterval
	}
	return &Handler{b: b, cfg: cfg, logger: logger}
}

// RegisterRoutes registers the stream routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/stream/metrics", h.handleSSE)
	mux.HandleFunc("GET /api/v1/ws/metrics", h.handleWebSocket)
}

// connect registers a new client whose queue already holds the connected
// event, so it is always the first frame the client sees.
func (h *Handler) connect() (string, *queueSink, error) {
	id := uuid.NewString()
	sink := newQueueSink(h.cfg.ClientBuffer)
	f, err := NewFrame(EventConnected, ConnectedData{ClientID: id, Timestamp: time.Now().UTC()})
	if err != nil {
		return "", nil, err
	}
	if err := sink.Send(f); err != nil {
		return "", nil, err
	}
	h.b.AddClient(id, sink)
	return id, sink, nil
}

// handleSSE streams metrics as Server-Sent Events.
//
//	@Summary		Live metrics (SSE)
//	@Description	Streams a "connected" event, then one "metrics" event per integration poll.
//	@Tags			stream
//	@Produce		text/event-stream
//	@Success		200
//	@Router			/stream/metrics [get]
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Debug("failed to clear write deadline", zap.Error(err))
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache, no-transform")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	id, sink, err := h.connect()
	if err != nil {
		h.logger.Error("failed to open stream", zap.Error(err))
		return
	}
	defer h.b.RemoveClient(id)

	ticker := time.NewTicker(h.cfg.KeepAliveInterval)
	defer ticker.Stop()

	write := func(b []byte) bool {
		if _, err := w.Write(b); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sink.done:
			return
		case f := <-sink.frames:
			if !write(f.SSE()) {
				h.logger.Debug("sse write failed", zap.String("client_id", id))
				return
			}
		case <-ticker.C:
			if !write(keepAliveSSE) {
				return
			}
		}
	}
}

// handleWebSocket streams metrics as JSON WebSocket messages.
//
//	@Summary		Live metrics (WebSocket)
//	@Description	Sends {"event","data"} messages with the same events as the SSE stream.
//	@Tags			stream
//	@Success		101
//	@Router			/ws/metrics [get]
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// No client-to-server messages are expected; CloseRead drains them and
	// cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	id, sink, err := h.connect()
	if err != nil {
		h.logger.Error("failed to open stream", zap.Error(err))
		conn.Close(websocket.StatusInternalError, "stream unavailable")
		return
	}
	defer h.b.RemoveClient(id)

	ticker := time.NewTicker(h.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sink.done:
			conn.Close(websocket.StatusPolicyViolation, "client too slow")
			return
		case f := <-sink.frames:
			if err := writeJSON(ctx, conn, wsMessage{Event: f.Event, Data: f.Data}); err != nil {
				h.logger.Debug("websocket write failed", zap.String("client_id", id), zap.Error(err))
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
