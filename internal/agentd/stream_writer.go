package agentd

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"deepresearch/internal/research"
)

const sseKeepaliveInterval = 15 * time.Second

// sseWriter writes research.Part events as Server-Sent Events. It owns a
// keepalive ticker so idle stretches between loop stages (an in-flight LLM
// or fetch call) don't trip client/proxy read timeouts.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	sw := &sseWriter{w: w, flusher: flusher, stopCh: make(chan struct{})}
	go sw.keepalive()
	return sw, true
}

func (s *sseWriter) keepalive() {
	ticker := time.NewTicker(sseKeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			if !s.stopped {
				_, _ = s.w.Write([]byte(": keepalive\n\n"))
				s.flusher.Flush()
			}
			s.mu.Unlock()
		}
	}
}

// Write implements research.StreamWriter.
func (s *sseWriter) Write(part research.Part) error {
	b, err := json.Marshal(part)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) Close() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
	s.mu.Unlock()
}

var _ research.StreamWriter = (*sseWriter)(nil)

// aggregatingWriter wraps a research.StreamWriter and also accumulates the
// plain-text answer, so the handler can persist the final assistant message
// without re-deriving it from wire events.
type aggregatingWriter struct {
	inner research.StreamWriter
	mu    sync.Mutex
	text  []byte
}

func (a *aggregatingWriter) Write(part research.Part) error {
	switch part.Type {
	case research.PartTextDelta:
		a.mu.Lock()
		a.text = append(a.text, part.Text...)
		a.mu.Unlock()
	case research.PartClarification:
		a.mu.Lock()
		a.text = append(a.text, part.Reason...)
		a.mu.Unlock()
	}
	return a.inner.Write(part)
}

func (a *aggregatingWriter) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return string(a.text)
}

var _ research.StreamWriter = (*aggregatingWriter)(nil)

// ctxFromRequest derives a request-scoped context bounded by a global
// per-request deadline, propagating client disconnection.
func ctxFromRequest(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), timeout)
}
