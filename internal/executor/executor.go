// Package executor is the scheduler: it builds an execution plan from agent
// metadata or an explicit flow specification, runs groups strictly in order,
// runs members of a parallel group concurrently with failure isolation,
// gates every agent on its declared prerequisites, and emits progress
// milestones to a sink.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/petrijr/agentflow/internal/deps"
	"github.com/petrijr/agentflow/internal/memory"
	"github.com/petrijr/agentflow/internal/worklog"
	"github.com/petrijr/agentflow/pkg/api"
)

// Config describes how to construct an Executor. Registry, Checker, Memory
// and Journal are required; the rest have working defaults.
type Config struct {
	Registry *Registry
	Metadata []api.AgentMetadata
	Flows    map[string]api.FlowSpec
	Checker  *deps.Checker
	Memory   memory.Store
	Journal  *worklog.Journal

	// Sink receives milestones for every run. Defaults to api.NoopSink.
	Sink api.ProgressSink

	// MissingDocPolicy defaults to api.MissingDocWait.
	MissingDocPolicy api.MissingDocPolicy
}

// Executor runs flows. Construct with New; the zero value is not usable.
type Executor struct {
	registry *Registry
	metadata []api.AgentMetadata
	metaByID map[string]*api.AgentMetadata
	checker  *deps.Checker
	memory   memory.Store
	journal  *worklog.Journal
	sink     api.ProgressSink
	policy   api.MissingDocPolicy

	flowMu sync.RWMutex
	flows  map[string]api.FlowSpec

	mu            sync.Mutex
	lastExecution map[string]time.Time
}

// New validates the configuration and vets the dependency graph of the full
// metadata set. A cycle anywhere in the set fails construction; execution
// never re-checks for cycles.
func New(cfg Config) (*Executor, error) {
	if cfg.Registry == nil {
		return nil, errors.New("executor: registry is required")
	}
	if cfg.Checker == nil {
		return nil, errors.New("executor: dependency checker is required")
	}
	if cfg.Memory == nil {
		return nil, errors.New("executor: memory store is required")
	}
	if cfg.Journal == nil {
		return nil, errors.New("executor: journal is required")
	}
	if err := deps.DetectCircularDependencies(cfg.Metadata); err != nil {
		return nil, err
	}
	flows := make(map[string]api.FlowSpec, len(cfg.Flows))
	for name, spec := range cfg.Flows {
		spec.Name = name
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		flows[name] = spec
	}

	sink := cfg.Sink
	if sink == nil {
		sink = api.NoopSink{}
	}
	policy := cfg.MissingDocPolicy
	if policy == "" {
		policy = api.MissingDocWait
	}

	metaByID := make(map[string]*api.AgentMetadata, len(cfg.Metadata))
	for i := range cfg.Metadata {
		metaByID[cfg.Metadata[i].ID] = &cfg.Metadata[i]
	}

	return &Executor{
		registry:      cfg.Registry,
		metadata:      cfg.Metadata,
		metaByID:      metaByID,
		flows:         flows,
		checker:       cfg.Checker,
		memory:        cfg.Memory,
		journal:       cfg.Journal,
		sink:          sink,
		policy:        policy,
		lastExecution: make(map[string]time.Time),
	}, nil
}

// RegisterFlow adds or replaces a named flow specification. Intended for
// startup wiring; safe to call concurrently with runs.
func (e *Executor) RegisterFlow(spec api.FlowSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	e.flowMu.Lock()
	e.flows[spec.Name] = spec
	e.flowMu.Unlock()
	return nil
}

// Plan returns the execution groups for a run without executing anything.
// An empty flow name derives the plan from metadata parallel flags.
func (e *Executor) Plan(flow string) ([]api.ExecutionGroup, error) {
	var groups []api.ExecutionGroup
	if flow != "" {
		e.flowMu.RLock()
		spec, ok := e.flows[flow]
		e.flowMu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %s", api.ErrFlowNotFound, flow)
		}
		groups = PlanFromSpec(spec)
	} else {
		groups = IdentifyParallelGroups(e.metadata)
	}
	if err := validatePlan(groups, e.registry); err != nil {
		return nil, err
	}
	return groups, nil
}

// Execute runs one flow to completion using the configured sink.
func (e *Executor) Execute(ctx context.Context, req api.FlowRequest) (*api.FlowResult, error) {
	return e.run(ctx, req, e.sink)
}

// ExecuteWithProgress runs one flow, emitting milestones to both the
// configured sink and the caller-supplied one.
func (e *Executor) ExecuteWithProgress(ctx context.Context, req api.FlowRequest, sink api.ProgressSink) (*api.FlowResult, error) {
	return e.run(ctx, req, api.NewCompositeSink(e.sink, sink))
}

// flowContext is the per-run scratch state. Created at run start, discarded
// at run end; never persisted.
type flowContext struct {
	storyID   string
	results   map[string]any
	errors    []api.TaskError
	completed []string
}

func (e *Executor) run(ctx context.Context, req api.FlowRequest, sink api.ProgressSink) (*api.FlowResult, error) {
	if err := api.ValidateID("workflow_id", req.WorkflowID); err != nil {
		return nil, err
	}
	if err := api.ValidateID("story_id", req.StoryID); err != nil {
		return nil, err
	}

	groups, err := e.Plan(req.Flow)
	if err != nil {
		return nil, err
	}

	if _, err := e.journal.Init(ctx, req.WorkflowID, req.StoryID, planAgents(groups)); err != nil {
		return nil, err
	}

	fc := &flowContext{
		storyID: req.StoryID,
		results: make(map[string]any),
	}
	result := &api.FlowResult{
		WorkflowID: req.WorkflowID,
		StoryID:    req.StoryID,
		Results:    fc.results,
	}

	started := time.Now()
	emit(ctx, sink, api.EventFlowStarted, map[string]any{
		"workflow_id": req.WorkflowID,
		"story_id":    req.StoryID,
		"groups":      len(groups),
	})

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return nil, e.abort(ctx, sink, err)
		}

		pending, err := e.gateGroup(ctx, fc, group)
		if err != nil {
			emit(ctx, sink, api.EventFlowFailed, map[string]any{
				"workflow_id": req.WorkflowID,
				"message":     err.Error(),
			})
			return nil, err
		}
		if pending != nil {
			// Blocked on unmet prerequisites: stop without raising.
			result.PendingDocs = pending.MissingDocs
			result.PendingAgents = pending.MissingAgents
			result.Completed = fc.completed
			result.Errors = fc.errors
			result.Metrics.Duration = time.Since(started)
			emit(ctx, sink, api.EventFlowCompleted, map[string]any{
				"workflow_id":  req.WorkflowID,
				"pending_docs": pending.MissingDocs,
				"duration_ms":  time.Since(started).Milliseconds(),
			})
			return result, nil
		}

		if group.Parallel {
			groupResults, metrics, err := e.executeParallelGroup(ctx, req.WorkflowID, fc, group.AgentIDs, req.Input, sink)
			if err != nil {
				return nil, e.abort(ctx, sink, err)
			}
			for id, v := range groupResults {
				fc.results[id] = v
			}
			result.Metrics.ParallelGroups++
			result.Metrics.TotalParallelAgents += metrics.AgentCount
			result.Metrics.FailedAgents += metrics.Failed
			result.Metrics.TimeSavings += metrics.TimeSaved
		} else {
			id := group.AgentIDs[0]
			out, _, err := e.runAgent(ctx, req.WorkflowID, fc, id, req.Input, sink)
			if err != nil {
				// A sequential agent is load-bearing for what follows.
				taskErr := &api.TaskExecutionError{AgentID: id, Err: err}
				emit(ctx, sink, api.EventFlowFailed, map[string]any{
					"workflow_id": req.WorkflowID,
					"agent":       id,
					"message":     taskErr.Error(),
				})
				return nil, taskErr
			}
			fc.results[id] = out
			fc.completed = append(fc.completed, id)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, e.abort(ctx, sink, err)
	}

	result.Completed = fc.completed
	result.Errors = fc.errors
	result.Metrics.Duration = time.Since(started)
	emit(ctx, sink, api.EventFlowCompleted, map[string]any{
		"workflow_id": req.WorkflowID,
		"results":     fc.results,
		"completed":   len(fc.completed),
		"failed":      len(fc.errors),
		"duration_ms": result.Metrics.Duration.Milliseconds(),
	})
	return result, nil
}

func (e *Executor) abort(ctx context.Context, sink api.ProgressSink, cause error) error {
	err := fmt.Errorf("%w: %v", api.ErrFlowAborted, cause)
	// Emit with a fresh context: the run context is already cancelled.
	emit(context.WithoutCancel(ctx), sink, api.EventFlowFailed, map[string]any{
		"message": err.Error(),
	})
	return err
}

// gateGroup checks the prerequisites of every member before the group
// starts. A non-nil DependencyResult means the run must stop and report
// pending work; an error means the missing-document policy is "error".
func (e *Executor) gateGroup(ctx context.Context, fc *flowContext, group api.ExecutionGroup) (*api.DependencyResult, error) {
	for _, id := range group.AgentIDs {
		check := e.checker.CheckDependencies(e.metaByID[id], fc.completed)
		if check.Satisfied() {
			continue
		}
		if e.policy == api.MissingDocError {
			return nil, &api.DependencyError{AgentID: id, Result: check}
		}
		return &check, nil
	}
	return nil, nil
}

// InitMemoryContext ensures the isolated memory record for (agent, story)
// exists and returns its key. The first call writes an initialization
// record; later calls find the record and change nothing, so retries and
// races cannot clobber state.
func (e *Executor) InitMemoryContext(ctx context.Context, storyID, agentID string) (string, error) {
	key := agentID + ":" + storyID
	_, err := e.memory.Get(ctx, memory.ScopeIsolated, key)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, memory.ErrKeyNotFound) {
		return "", err
	}
	init := map[string]any{
		"initialized": true,
		"agent_id":    agentID,
		"story_id":    storyID,
	}
	if err := e.memory.Set(ctx, memory.ScopeIsolated, key, init); err != nil {
		return "", err
	}
	return key, nil
}

// runAgent drives one agent through prepare, execute and finalize, records
// its state transitions, and returns its result and duration.
func (e *Executor) runAgent(ctx context.Context, workflowID string, fc *flowContext, agentID string, input any, sink api.ProgressSink) (any, time.Duration, error) {
	ctor, err := e.registry.Resolve(agentID)
	if err != nil {
		return nil, 0, err
	}
	memKey, err := e.InitMemoryContext(ctx, fc.storyID, agentID)
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	if err := e.journal.RecordAgentState(ctx, workflowID, fc.storyID, agentID, api.StateRunning, "", start, time.Time{}); err != nil {
		return nil, 0, err
	}
	emit(ctx, sink, api.EventAgentStarted, map[string]any{"agent": agentID})

	tc := &api.TaskContext{
		StoryID:   fc.storyID,
		AgentID:   agentID,
		MemoryKey: memKey,
		Input:     input,
		Values:    make(map[string]any),
	}
	out, runErr := driveAgent(ctx, ctor(), tc)
	end := time.Now()
	duration := end.Sub(start)

	if runErr != nil {
		if err := e.journal.RecordAgentState(ctx, workflowID, fc.storyID, agentID, api.StateFailed, runErr.Error(), start, end); err != nil {
			return nil, duration, err
		}
		return nil, duration, runErr
	}

	e.mu.Lock()
	e.lastExecution[agentID] = end
	e.mu.Unlock()

	if err := e.journal.RecordAgentState(ctx, workflowID, fc.storyID, agentID, api.StateCompleted, summarize(out), start, end); err != nil {
		return nil, duration, err
	}
	emit(ctx, sink, api.EventAgentCompleted, map[string]any{
		"agent":       agentID,
		"status":      string(api.StateCompleted),
		"duration_ms": duration.Milliseconds(),
	})
	emit(ctx, sink, api.EventAgentResult, map[string]any{
		"agent":  agentID,
		"result": out,
	})
	return out, duration, nil
}

// driveAgent runs the three agent phases in order and reads the result back
// from the task context.
func driveAgent(ctx context.Context, agent api.Agent, tc *api.TaskContext) (any, error) {
	if err := agent.Prepare(ctx, tc); err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	if err := agent.Execute(ctx, tc); err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	if err := agent.Finalize(ctx, tc); err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}
	return tc.Result(), nil
}

// memberOutcome is the join record of one parallel group member.
type memberOutcome struct {
	agentID  string
	result   any
	duration time.Duration
	err      error
}

// executeParallelGroup launches every member concurrently, each with its own
// copy of the shared input, and waits for all of them. A member's failure is
// converted into an "Error: <message>" result for that member only; siblings
// are unaffected and every member gets a result.
func (e *Executor) executeParallelGroup(ctx context.Context, workflowID string, fc *flowContext, agentIDs []string, input any, sink api.ProgressSink) (map[string]any, api.GroupMetrics, error) {
	emit(ctx, sink, api.EventGroupStarted, map[string]any{"agents": agentIDs})
	for _, id := range agentIDs {
		emit(ctx, sink, api.EventAgentStarted, map[string]any{"agent": id})
	}

	outcomes := make([]memberOutcome, len(agentIDs))
	groupStart := time.Now()

	var wg sync.WaitGroup
	for i, id := range agentIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			start := time.Now()
			out, err := e.runGroupMember(ctx, workflowID, fc.storyID, id, copyInput(input))
			outcomes[i] = memberOutcome{
				agentID:  id,
				result:   out,
				duration: time.Since(start),
				err:      err,
			}
		}(i, id)
	}
	wg.Wait()
	wallClock := time.Since(groupStart)

	if err := ctx.Err(); err != nil {
		// Consumer is gone: members ran to completion but their results
		// are discarded rather than delivered.
		return nil, api.GroupMetrics{}, err
	}

	results := make(map[string]any, len(agentIDs))
	metrics := api.GroupMetrics{
		AgentCount: len(agentIDs),
		WallClock:  wallClock,
	}
	var serial time.Duration
	for _, o := range outcomes {
		serial += o.duration
		if o.err != nil {
			results[o.agentID] = "Error: " + o.err.Error()
			fc.errors = append(fc.errors, api.TaskError{
				AgentID: o.agentID,
				Message: o.err.Error(),
				Kind:    errorKind(o.err),
			})
			metrics.Failed++
			emit(ctx, sink, api.EventAgentCompleted, map[string]any{
				"agent":       o.agentID,
				"status":      string(api.StateFailed),
				"duration_ms": o.duration.Milliseconds(),
			})
			continue
		}
		results[o.agentID] = o.result
		fc.completed = append(fc.completed, o.agentID)
		emit(ctx, sink, api.EventAgentCompleted, map[string]any{
			"agent":       o.agentID,
			"status":      string(api.StateCompleted),
			"duration_ms": o.duration.Milliseconds(),
		})
		emit(ctx, sink, api.EventAgentResult, map[string]any{
			"agent":  o.agentID,
			"result": o.result,
		})
	}
	if saved := serial - wallClock; saved > 0 {
		metrics.TimeSaved = saved
	}
	return results, metrics, nil
}

// runGroupMember is runAgent minus the milestone emission; parallel members
// report their milestones from the coordinating goroutine after the join so
// the sink is never called concurrently.
func (e *Executor) runGroupMember(ctx context.Context, workflowID, storyID, agentID string, input any) (any, error) {
	ctor, err := e.registry.Resolve(agentID)
	if err != nil {
		return nil, err
	}
	memKey, err := e.InitMemoryContext(ctx, storyID, agentID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := e.journal.RecordAgentState(ctx, workflowID, storyID, agentID, api.StateRunning, "", start, time.Time{}); err != nil {
		return nil, err
	}

	tc := &api.TaskContext{
		StoryID:   storyID,
		AgentID:   agentID,
		MemoryKey: memKey,
		Input:     input,
		Values:    make(map[string]any),
	}
	out, runErr := driveAgent(ctx, ctor(), tc)
	end := time.Now()

	if runErr != nil {
		if err := e.journal.RecordAgentState(ctx, workflowID, storyID, agentID, api.StateFailed, runErr.Error(), start, end); err != nil {
			return nil, err
		}
		return nil, runErr
	}

	e.mu.Lock()
	e.lastExecution[agentID] = end
	e.mu.Unlock()

	if err := e.journal.RecordAgentState(ctx, workflowID, storyID, agentID, api.StateCompleted, summarize(out), start, end); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAgentLastExecution returns the most recent completion time of the agent
// across runs of this executor instance, or false if it has never completed.
func (e *Executor) GetAgentLastExecution(agentID string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.lastExecution[agentID]
	return t, ok
}

func emit(ctx context.Context, sink api.ProgressSink, typ api.EventType, payload map[string]any) {
	sink.Emit(ctx, api.Event{Type: typ, At: time.Now().UTC(), Payload: payload})
}

// copyInput gives each parallel member its own top-level copy of the shared
// input so concurrent agents never observe each other's mutations. Nested
// values are shared; agents must treat them as read-only.
func copyInput(input any) any {
	switch v := input.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out
	case []any:
		out := make([]any, len(v))
		copy(out, v)
		return out
	default:
		return input
	}
}

// summarize produces the short output summary stored in the status record.
func summarize(out any) string {
	if out == nil {
		return ""
	}
	s := fmt.Sprintf("%v", out)
	const max = 200
	if len(s) <= max {
		return s
	}
	// Back up to a rune boundary so the stored summary stays valid UTF-8.
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func errorKind(err error) string {
	var depErr *api.DependencyError
	var valErr *api.ValidationError
	var storErr *api.StorageError
	switch {
	case errors.As(err, &depErr):
		return "dependency"
	case errors.As(err, &valErr):
		return "validation"
	case errors.As(err, &storErr):
		return "storage"
	default:
		return "execution"
	}
}
