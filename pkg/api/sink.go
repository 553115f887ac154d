package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// EventType identifies an executor milestone.
type EventType string

const (
	EventFlowStarted    EventType = "flow.started"
	EventGroupStarted   EventType = "group.started"
	EventAgentStarted   EventType = "agent.started"
	EventAgentCompleted EventType = "agent.completed"
	EventAgentResult    EventType = "agent.result"
	EventFlowCompleted  EventType = "flow.completed"
	EventFlowFailed     EventType = "flow.failed"
)

// Event is one milestone emitted by the executor. The payload holds small,
// human-oriented details; large agent outputs belong in the durable store,
// not here.
type Event struct {
	Type    EventType      `json:"type"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ProgressSink receives executor milestones. Implementations should be fast
// and non-blocking; the executor calls Emit synchronously between
// scheduling decisions. Transport concerns (framing, heartbeats, disconnect
// polling) live entirely in the consumer.
type ProgressSink interface {
	Emit(ctx context.Context, ev Event)
}

// NoopSink discards all events. It is the default when no sink is
// configured.
type NoopSink struct{}

func (NoopSink) Emit(ctx context.Context, ev Event) {}

// CompositeSink fans out events to multiple sinks.
type CompositeSink struct {
	sinks []ProgressSink
}

// NewCompositeSink creates a ProgressSink that forwards every event to each
// non-nil sink.
func NewCompositeSink(sinks ...ProgressSink) ProgressSink {
	filtered := make([]ProgressSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		return NoopSink{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeSink{sinks: filtered}
}

func (c *CompositeSink) Emit(ctx context.Context, ev Event) {
	for _, s := range c.sinks {
		s.Emit(ctx, ev)
	}
}

// LoggingSink writes structured logs using log/slog.
type LoggingSink struct {
	Logger *slog.Logger
}

// NewLoggingSink creates a sink that logs milestones with the provided
// slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingSink(logger *slog.Logger) ProgressSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingSink{Logger: logger}
}

func (s *LoggingSink) Emit(ctx context.Context, ev Event) {
	level := slog.LevelDebug
	switch ev.Type {
	case EventFlowStarted, EventFlowCompleted:
		level = slog.LevelInfo
	case EventFlowFailed:
		level = slog.LevelError
	}
	attrs := make([]any, 0, 2*len(ev.Payload))
	for k, v := range ev.Payload {
		attrs = append(attrs, slog.Any(k, v))
	}
	s.Logger.Log(ctx, level, string(ev.Type), attrs...)
}

// MetricsSink counts flow and agent milestones. It can be combined with
// other sinks via NewCompositeSink.
type MetricsSink struct {
	flowsStarted    atomic.Int64
	flowsCompleted  atomic.Int64
	flowsFailed     atomic.Int64
	agentsCompleted atomic.Int64
}

// MetricsSnapshot is an immutable snapshot of a MetricsSink.
type MetricsSnapshot struct {
	FlowsStarted    int64
	FlowsCompleted  int64
	FlowsFailed     int64
	FlowsInFlight   int64
	AgentsCompleted int64
}

func (m *MetricsSink) Emit(ctx context.Context, ev Event) {
	switch ev.Type {
	case EventFlowStarted:
		m.flowsStarted.Add(1)
	case EventFlowCompleted:
		m.flowsCompleted.Add(1)
	case EventFlowFailed:
		m.flowsFailed.Add(1)
	case EventAgentCompleted:
		m.agentsCompleted.Add(1)
	}
}

// Snapshot returns the current counters.
func (m *MetricsSink) Snapshot() MetricsSnapshot {
	started := m.flowsStarted.Load()
	completed := m.flowsCompleted.Load()
	failed := m.flowsFailed.Load()
	return MetricsSnapshot{
		FlowsStarted:    started,
		FlowsCompleted:  completed,
		FlowsFailed:     failed,
		FlowsInFlight:   started - completed - failed,
		AgentsCompleted: m.agentsCompleted.Load(),
	}
}
