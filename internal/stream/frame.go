package stream

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names sent on the metrics stream.
const (
	EventConnected = "connected"
	EventMetrics   = "metrics"
)

// Frame is one encoded event. Data is marshaled once per broadcast and shared
// by every client.
type Frame struct {
	Event string
	Data  json.RawMessage
}

// NewFrame marshals data into a frame.
func NewFrame(event string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s event: %w", event, err)
	}
	return Frame{Event: event, Data: raw}, nil
}

// SSE renders f in text/event-stream format.
func (f Frame) SSE() []byte {
	b := make([]byte, 0, len(f.Event)+len(f.Data)+16)
	b = append(b, "event: "...)
	b = append(b, f.Event...)
	b = append(b, "\ndata: "...)
	b = append(b, f.Data...)
	return append(b, "\n\n"...)
}

var keepAliveSSE = []byte(":keep-alive\n\n")

// wsMessage is the WebSocket envelope for a frame.
type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ConnectedData is the payload of the connected event.
type ConnectedData struct {
	ClientID  string    `json:"client_id"`
	Timestamp time.Time `json:"timestamp"`
}
