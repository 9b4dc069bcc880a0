package ingress

import (
	"fmt"
	"net/http"
	"sync"
)

// sseSender implements types.Sender by writing Server-Sent Events
// frames to an http.Flusher. Writes are serialized because the
// underlying ResponseWriter is not safe for concurrent use.
type sseSender struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
	doClose func()
}

func newSSESender(w http.ResponseWriter, doClose func()) (*sseSender, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &sseSender{w: w, flusher: flusher, doClose: doClose}, true
}

// SendTextFrame writes data as a single `data: ...` SSE frame.
func (s *sseSender) SendTextFrame(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sse: connection closed")
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close marks the sender closed and runs the handler's teardown hook.
// SSE has no real socket-level close code; code/reason are accepted to
// satisfy types.Sender and are otherwise unused.
func (s *sseSender) Close(int, string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	if s.doClose != nil {
		s.doClose()
	}
	return nil
}
