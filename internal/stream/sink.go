package stream

import (
	"errors"
	"sync"
)

var (
	// ErrSlowConsumer is returned when a client's frame queue is full.
	ErrSlowConsumer = errors.New("client frame queue full")
	// ErrSinkClosed is returned when sending to a closed sink.
	ErrSinkClosed = errors.New("client stream closed")
)

// Sink delivers frames to one client. Send must not block.
type Sink interface {
	Send(f Frame) error
	Close()
}

// queueSink buffers frames for a pump goroutine that owns the connection.
type queueSink struct {
	frames    chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func newQueueSink(size int) *queueSink {
	if size <= 0 {
		size = DefaultConfig().ClientBuffer
	}
	return &queueSink{
		frames: make(chan Frame, size),
		done:   make(chan struct{}),
	}
}

func (s *queueSink) Send(f Frame) error {
	select {
	case <-s.done:
		return ErrSinkClosed
	default:
	}
	select {
	case s.frames <- f:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close signals the pump to exit. The frames channel stays open so a
// concurrent Send never panics.
func (s *queueSink) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
