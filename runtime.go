package agentflow

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/agentflow/internal/deps"
	"github.com/petrijr/agentflow/internal/executor"
	"github.com/petrijr/agentflow/internal/memory"
	"github.com/petrijr/agentflow/internal/worklog"
	"github.com/petrijr/agentflow/pkg/api"
)

// Sentinel errors surfaced by Runtime operations, re-exported so callers can
// errors.Is against them without importing internal packages.
var (
	ErrWorkflowNotFound = worklog.ErrWorkflowNotFound
	ErrKeyNotFound      = memory.ErrKeyNotFound
	ErrAgentNotFound    = api.ErrAgentNotFound
	ErrFlowNotFound     = api.ErrFlowNotFound
	ErrFlowAborted      = api.ErrFlowAborted
)

// RuntimeConfig describes how to construct a Runtime. BaseDir is required;
// everything else has working defaults.
type RuntimeConfig struct {
	// BaseDir is the root of all backing files. The runtime creates
	// memory/, status/ and history/ under it.
	BaseDir string

	// DocsDir holds the document artifacts checked by wait_for.docs.
	// Defaults to BaseDir/docs.
	DocsDir string

	// Metadata is the full registered agent set, in registration order. The
	// dependency graph over it is vetted for cycles at construction.
	Metadata []AgentMetadata

	// Flows are the named flow specifications available at startup. More can
	// be registered later with RegisterFlow.
	Flows map[string]FlowSpec

	// MissingDocPolicy defaults to MissingDocWait.
	MissingDocPolicy MissingDocPolicy

	// Sink receives milestones from every run. Defaults to a no-op sink.
	Sink ProgressSink

	// MemoryDB, when set, backs the durable store with SQLite instead of
	// JSONL files under BaseDir/memory.
	MemoryDB *sql.DB
}

// Runtime bundles the executor with its durable stores over one base
// directory. It is the embedding entry point; the HTTP service is a thin
// consumer of its methods.
type Runtime struct {
	exec     *executor.Executor
	registry *executor.Registry
	memory   memory.Store
	journal  *worklog.Journal
}

// NewRuntime wires stores and executor together.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	if cfg.BaseDir == "" {
		return nil, errors.New("agentflow: base directory is required")
	}
	docsDir := cfg.DocsDir
	if docsDir == "" {
		docsDir = filepath.Join(cfg.BaseDir, "docs")
	}

	var store memory.Store
	var err error
	if cfg.MemoryDB != nil {
		store, err = memory.NewSQLiteStore(cfg.MemoryDB)
	} else {
		store, err = memory.NewJSONLStore(filepath.Join(cfg.BaseDir, "memory"))
	}
	if err != nil {
		return nil, err
	}
	status, err := worklog.NewStatusStore(filepath.Join(cfg.BaseDir, "status"))
	if err != nil {
		return nil, err
	}
	history, err := worklog.NewHistoryStore(filepath.Join(cfg.BaseDir, "history"))
	if err != nil {
		return nil, err
	}
	journal := worklog.NewJournal(status, history)

	registry := executor.NewRegistry()
	exec, err := executor.New(executor.Config{
		Registry:         registry,
		Metadata:         cfg.Metadata,
		Flows:            cfg.Flows,
		Checker:          deps.NewChecker(docsDir),
		Memory:           store,
		Journal:          journal,
		Sink:             cfg.Sink,
		MissingDocPolicy: cfg.MissingDocPolicy,
	})
	if err != nil {
		return nil, err
	}

	return &Runtime{
		exec:     exec,
		registry: registry,
		memory:   store,
		journal:  journal,
	}, nil
}

// RegisterAgent associates an agent id with its constructor. Duplicate
// registrations fail.
func (rt *Runtime) RegisterAgent(id string, ctor AgentConstructor) error {
	return rt.registry.Register(id, ctor)
}

// RegisterFlow adds or replaces a named flow specification.
func (rt *Runtime) RegisterFlow(spec FlowSpec) error {
	return rt.exec.RegisterFlow(spec)
}

// Plan returns the execution groups a run of flow would use. An empty name
// plans from metadata parallel flags.
func (rt *Runtime) Plan(flow string) ([]ExecutionGroup, error) {
	return rt.exec.Plan(flow)
}

// RunFlow executes one flow synchronously. An empty WorkflowID is filled
// with a generated UUID.
func (rt *Runtime) RunFlow(ctx context.Context, req FlowRequest) (*FlowResult, error) {
	if req.WorkflowID == "" {
		req.WorkflowID = uuid.NewString()
	}
	return rt.exec.Execute(ctx, req)
}

// RunFlowWithProgress is RunFlow with an additional caller-supplied sink for
// this run's milestones.
func (rt *Runtime) RunFlowWithProgress(ctx context.Context, req FlowRequest, sink ProgressSink) (*FlowResult, error) {
	if req.WorkflowID == "" {
		req.WorkflowID = uuid.NewString()
	}
	return rt.exec.ExecuteWithProgress(ctx, req, sink)
}

// AgentLastExecution returns the most recent completion time of the agent
// across runs, or false if it has never completed.
func (rt *Runtime) AgentLastExecution(agentID string) (time.Time, bool) {
	return rt.exec.GetAgentLastExecution(agentID)
}

// WorkflowListOptions filters and paginates workflow listings.
type WorkflowListOptions struct {
	StoryID    string
	WorkflowID string
	Offset     int
	Limit      int
}

// HistoryQueryOptions filters and paginates history queries. Zero time
// bounds mean "no bound"; results are newest-first.
type HistoryQueryOptions struct {
	From   time.Time
	To     time.Time
	Offset int
	Limit  int
}

// InitWorkflow creates the durable status record for a workflow, all agents
// pending. Idempotent: an existing record is returned unchanged. An empty
// workflowID is filled with a generated UUID.
func (rt *Runtime) InitWorkflow(ctx context.Context, workflowID, storyID string, agents []string) (*WorkflowStatus, error) {
	if workflowID == "" {
		workflowID = uuid.NewString()
	}
	return rt.journal.Init(ctx, workflowID, storyID, agents)
}

// GetWorkflowStatus returns the current status snapshot of a workflow.
func (rt *Runtime) GetWorkflowStatus(ctx context.Context, workflowID string) (*WorkflowStatus, error) {
	return rt.journal.Status.Read(ctx, workflowID)
}

// ResetWorkflow returns every agent of the workflow to pending. History is
// untouched.
func (rt *Runtime) ResetWorkflow(ctx context.Context, workflowID string) (*WorkflowStatus, error) {
	return rt.journal.Reset(ctx, workflowID)
}

// DeleteWorkflow removes the workflow's status and history files.
func (rt *Runtime) DeleteWorkflow(ctx context.Context, workflowID string) error {
	return rt.journal.Delete(ctx, workflowID)
}

// ListWorkflows returns lightweight summaries, most recently updated first.
func (rt *Runtime) ListWorkflows(ctx context.Context, opts WorkflowListOptions) ([]WorkflowSummary, error) {
	return rt.journal.Status.List(ctx, worklog.ListOptions{
		StoryID:    opts.StoryID,
		WorkflowID: opts.WorkflowID,
		Offset:     opts.Offset,
		Limit:      opts.Limit,
	})
}

// ListActiveWorkflows returns full snapshots of workflows that still have
// pending or running agents.
func (rt *Runtime) ListActiveWorkflows(ctx context.Context, opts WorkflowListOptions) ([]*WorkflowStatus, error) {
	return rt.journal.Status.ListActive(ctx, worklog.ListOptions{
		StoryID:    opts.StoryID,
		WorkflowID: opts.WorkflowID,
		Offset:     opts.Offset,
		Limit:      opts.Limit,
	})
}

// CleanupWorkflows deletes status files older than retentionDays and returns
// the count removed. History files are kept.
func (rt *Runtime) CleanupWorkflows(ctx context.Context, retentionDays int) (int, error) {
	return rt.journal.Status.Cleanup(ctx, retentionDays)
}

// QueryHistory returns the workflow's execution history, newest-first.
func (rt *Runtime) QueryHistory(ctx context.Context, workflowID string, opts HistoryQueryOptions) ([]HistoryEntry, error) {
	return rt.journal.History.Query(ctx, workflowID, worklog.HistoryQuery{
		From:   opts.From,
		To:     opts.To,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	})
}

// GetMemory reads the current value for (scope, key) from the durable store.
// Scope is ScopeIsolated or ScopeShared.
func (rt *Runtime) GetMemory(ctx context.Context, scope, key string) (any, error) {
	return rt.memory.Get(ctx, memory.Scope(scope), key)
}

// SetMemory appends one record for (scope, key) and updates the cache.
func (rt *Runtime) SetMemory(ctx context.Context, scope, key string, value any) error {
	return rt.memory.Set(ctx, memory.Scope(scope), key, value)
}

// FlushMemory writes out any cache state that is not yet durable.
func (rt *Runtime) FlushMemory(ctx context.Context) error {
	return rt.memory.Flush(ctx)
}

// ClearMemoryCache drops cached entries; later reads reconstruct identical
// values by replay.
func (rt *Runtime) ClearMemoryCache() {
	rt.memory.ClearCache()
}

// MemoryStats is a read-only view of the durable store's cache.
type MemoryStats struct {
	CacheSize   int      `json:"cache_size"`
	LockCount   int      `json:"lock_count"`
	CacheKeys   []string `json:"cache_keys"`
	ApproxBytes int64    `json:"approx_bytes"`
}

// MemoryStats reports cache size, per-key lock count, and a rough footprint.
func (rt *Runtime) MemoryStats() MemoryStats {
	s := rt.memory.Stats()
	return MemoryStats{
		CacheSize:   s.CacheSize,
		LockCount:   s.LockCount,
		CacheKeys:   s.CacheKeys,
		ApproxBytes: s.ApproxBytes,
	}
}

// MemoryHealth is the tri-state verdict of the durable store's health check.
type MemoryHealth struct {
	State     string `json:"state"`
	CacheSize int    `json:"cache_size"`
	Detail    string `json:"detail,omitempty"`
}

// MemoryHealth runs the durable store's health check.
func (rt *Runtime) MemoryHealth(ctx context.Context) MemoryHealth {
	h := rt.memory.HealthCheck(ctx)
	return MemoryHealth{
		State:     string(h.State),
		CacheSize: h.CacheSize,
		Detail:    h.Detail,
	}
}
