package bridge

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// SSEWriter frames events as Server-Sent Events: "event: <name>\ndata: <json>\n\n".
type SSEWriter struct {
	w      io.Writer
	flush  func()
	mu     sync.Mutex
	closed bool
}

// NewSSEWriter prepares w for streaming and returns a sink writing to it.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")

	var flushFn func()
	if f, ok := w.(http.Flusher); ok {
		flushFn = f.Flush
	}
	return &SSEWriter{w: w, flush: flushFn}
}

// NewSSEStream writes frames to an arbitrary writer.
func NewSSEStream(w io.Writer) *SSEWriter { return &SSEWriter{w: w} }

func (s *SSEWriter) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	body, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("bridge: marshal %s payload: %w", ev.Name, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Name, body); err != nil {
		return err
	}
	if s.flush != nil {
		s.flush()
	}
	if ev.Terminal() {
		s.closed = true
	}
	return nil
}
