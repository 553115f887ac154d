// Package service exposes the runtime over HTTP. It is a thin boundary
// layer: it decodes requests, calls Runtime methods, and translates typed
// errors to status codes. No orchestration logic lives here.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/petrijr/agentflow"
	"github.com/petrijr/agentflow/pkg/api"
	"github.com/petrijr/agentflow/pkg/stream"
)

// Config describes how to construct a Service. Runtime is required.
type Config struct {
	Runtime *agentflow.Runtime

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Heartbeat is the SSE keepalive interval. Defaults to
	// stream.DefaultHeartbeat.
	Heartbeat time.Duration
}

// Service is the HTTP surface over a Runtime.
type Service struct {
	rt        *agentflow.Runtime
	logger    *slog.Logger
	heartbeat time.Duration
}

// New validates the configuration and returns a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Runtime == nil {
		return nil, errors.New("service: runtime is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = stream.DefaultHeartbeat
	}
	return &Service{rt: cfg.Runtime, logger: logger, heartbeat: heartbeat}, nil
}

// Handler returns the routed HTTP handler.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /flows/run", s.runFlow)
	mux.HandleFunc("POST /flows/run/stream", s.runFlowStream)

	mux.HandleFunc("POST /workflows", s.initWorkflow)
	mux.HandleFunc("GET /workflows", s.listWorkflows)
	mux.HandleFunc("POST /workflows/cleanup", s.cleanupWorkflows)
	mux.HandleFunc("GET /workflows/{id}", s.getWorkflowStatus)
	mux.HandleFunc("POST /workflows/{id}/reset", s.resetWorkflow)
	mux.HandleFunc("DELETE /workflows/{id}", s.deleteWorkflow)
	mux.HandleFunc("GET /workflows/{id}/history", s.queryHistory)

	mux.HandleFunc("GET /memory/stats", s.memoryStats)
	mux.HandleFunc("POST /memory/flush", s.memoryFlush)
	mux.HandleFunc("POST /memory/clear-cache", s.memoryClearCache)
	mux.HandleFunc("GET /memory/{scope}/{key}", s.getMemory)
	mux.HandleFunc("PUT /memory/{scope}/{key}", s.putMemory)

	mux.HandleFunc("GET /health", s.health)

	return mux
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError translates typed errors to HTTP status codes.
func (s *Service) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var valErr *api.ValidationError
	var depErr *api.DependencyError
	var cycleErr *api.CircularDependencyError
	switch {
	case errors.As(err, &valErr), errors.As(err, &cycleErr):
		status = http.StatusBadRequest
	case errors.As(err, &depErr):
		status = http.StatusConflict
	case errors.Is(err, agentflow.ErrWorkflowNotFound),
		errors.Is(err, agentflow.ErrKeyNotFound),
		errors.Is(err, agentflow.ErrFlowNotFound),
		errors.Is(err, agentflow.ErrAgentNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Service) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func intQuery(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}

func timeQuery(r *http.Request, name string) time.Time {
	t, err := time.Parse(time.RFC3339, r.URL.Query().Get(name))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *Service) runFlow(w http.ResponseWriter, r *http.Request) {
	var req agentflow.FlowRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.rt.RunFlow(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// terminalTracker remembers whether a terminal frame was already emitted so
// the handler does not duplicate the executor's own flow.failed milestone.
type terminalTracker struct {
	sink     api.ProgressSink
	terminal bool
}

func (t *terminalTracker) Emit(ctx context.Context, ev api.Event) {
	if ev.Type == api.EventFlowCompleted || ev.Type == api.EventFlowFailed {
		t.terminal = true
	}
	t.sink.Emit(ctx, ev)
}

func (s *Service) runFlowStream(w http.ResponseWriter, r *http.Request) {
	var req agentflow.FlowRequest
	if !s.decode(w, r, &req) {
		return
	}

	writer, err := stream.NewSSEWriter(w, stream.Config{Heartbeat: s.heartbeat})
	if err != nil {
		s.writeError(w, err)
		return
	}

	// The request context is cancelled on client disconnect, which stops
	// both the heartbeat loop and the run itself.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	heartbeatDone := make(chan struct{})
	go func() {
		writer.Run(ctx)
		close(heartbeatDone)
	}()

	tracker := &terminalTracker{sink: writer}
	if _, err := s.rt.RunFlowWithProgress(ctx, req, tracker); err != nil && !tracker.terminal {
		writer.Emit(ctx, api.Event{
			Type:    api.EventFlowFailed,
			At:      time.Now().UTC(),
			Payload: map[string]any{"message": err.Error()},
		})
	}

	cancel()
	<-heartbeatDone
}

func (s *Service) initWorkflow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkflowID string   `json:"workflow_id"`
		StoryID    string   `json:"story_id"`
		Agents     []string `json:"agents"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	st, err := s.rt.InitWorkflow(r.Context(), req.WorkflowID, req.StoryID, req.Agents)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, st)
}

func (s *Service) listWorkflows(w http.ResponseWriter, r *http.Request) {
	opts := agentflow.WorkflowListOptions{
		StoryID:    r.URL.Query().Get("story_id"),
		WorkflowID: r.URL.Query().Get("workflow_id"),
		Offset:     intQuery(r, "offset"),
		Limit:      intQuery(r, "limit"),
	}
	if r.URL.Query().Get("active") == "true" {
		active, err := s.rt.ListActiveWorkflows(r.Context(), opts)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"workflows": active})
		return
	}
	summaries, err := s.rt.ListWorkflows(r.Context(), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"workflows": summaries})
}

func (s *Service) cleanupWorkflows(w http.ResponseWriter, r *http.Request) {
	days := intQuery(r, "retention_days")
	removed, err := s.rt.CleanupWorkflows(r.Context(), days)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Service) getWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.rt.GetWorkflowStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Service) resetWorkflow(w http.ResponseWriter, r *http.Request) {
	st, err := s.rt.ResetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Service) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.DeleteWorkflow(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) queryHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.rt.QueryHistory(r.Context(), r.PathValue("id"), agentflow.HistoryQueryOptions{
		From:   timeQuery(r, "from"),
		To:     timeQuery(r, "to"),
		Offset: intQuery(r, "offset"),
		Limit:  intQuery(r, "limit"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (s *Service) getMemory(w http.ResponseWriter, r *http.Request) {
	scope, key := r.PathValue("scope"), r.PathValue("key")
	value, err := s.rt.GetMemory(r.Context(), scope, key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": value})
}

func (s *Service) putMemory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value any `json:"value"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	scope, key := r.PathValue("scope"), r.PathValue("key")
	if err := s.rt.SetMemory(r.Context(), scope, key, body.Value); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) memoryStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.rt.MemoryStats())
}

func (s *Service) memoryFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.FlushMemory(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) memoryClearCache(w http.ResponseWriter, r *http.Request) {
	s.rt.ClearMemoryCache()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) health(w http.ResponseWriter, r *http.Request) {
	h := s.rt.MemoryHealth(r.Context())
	status := http.StatusOK
	if h.State == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, h)
}
