// Package stream carries executor milestones to HTTP clients as
// Server-Sent Events. It is a pure consumer of the progress sink: framing,
// heartbeats and disconnect handling all live here, never in the scheduler.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/petrijr/agentflow/pkg/api"
)

// DefaultHeartbeat is the idle window after which a keepalive comment is
// written so a long-lived connection is not mistaken for dead.
const DefaultHeartbeat = 30 * time.Second

// Wire event names, per the streaming protocol. Everything that is not a
// terminal or a result milestone is "progress".
const (
	WireProgress = "progress"
	WireResult   = "result"
	WireDone     = "done"
	WireError    = "error"
)

// WireEventName maps an executor milestone to its wire event name.
func WireEventName(typ api.EventType) string {
	switch typ {
	case api.EventFlowCompleted:
		return WireDone
	case api.EventFlowFailed:
		return WireError
	case api.EventAgentResult:
		return WireResult
	default:
		return WireProgress
	}
}

// Config tunes an SSEWriter.
type Config struct {
	// Heartbeat is the idle interval between keepalive comments.
	// Defaults to DefaultHeartbeat.
	Heartbeat time.Duration
}

// SSEWriter frames milestones as Server-Sent Events over one HTTP response.
// It implements api.ProgressSink; writes are serialized internally so the
// heartbeat loop and the emitting goroutine never interleave frames.
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher

	heartbeat time.Duration
	lastWrite time.Time
}

var _ api.ProgressSink = (*SSEWriter)(nil)

// NewSSEWriter prepares the response for event streaming and returns a
// writer. Fails if the ResponseWriter cannot flush.
func NewSSEWriter(w http.ResponseWriter, cfg Config) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("stream: response writer does not support flushing")
	}
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")

	return &SSEWriter{
		w:         w,
		flusher:   flusher,
		heartbeat: heartbeat,
		lastWrite: time.Now(),
	}, nil
}

// Emit writes one "event: <name>" / "data: <json>" frame. A payload that
// cannot be serialized is reported as an error frame rather than dropped
// silently.
func (s *SSEWriter) Emit(ctx context.Context, ev api.Event) {
	name := WireEventName(ev.Type)
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		name = WireError
		data = []byte(fmt.Sprintf(`{"message":"serialize event: %s"}`, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data)
	s.flusher.Flush()
	s.lastWrite = time.Now()
}

// keepalive writes a comment frame if nothing has been written for the
// configured idle window.
func (s *SSEWriter) keepalive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastWrite) < s.heartbeat {
		return
	}
	fmt.Fprint(s.w, ": keepalive\n\n")
	s.flusher.Flush()
	s.lastWrite = time.Now()
}

// Run drives the heartbeat loop until ctx is cancelled. For an HTTP handler
// the request context does this naturally: it is cancelled when the client
// disconnects, which both stops the loop and tells the executor to abort.
func (s *SSEWriter) Run(ctx context.Context) {
	// Poll at a fraction of the heartbeat so an idle window is detected
	// promptly without busy-waiting.
	interval := s.heartbeat / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.keepalive()
		}
	}
}
