package agentflow

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestRuntime(t *testing.T, cfg RuntimeConfig) (*Runtime, string) {
	t.Helper()
	if cfg.BaseDir == "" {
		cfg.BaseDir = t.TempDir()
	}
	rt, err := NewRuntime(cfg)
	require.NoError(t, err)
	return rt, cfg.BaseDir
}

func TestRuntime_EndToEnd(t *testing.T) {
	rt, baseDir := newTestRuntime(t, RuntimeConfig{
		Metadata: []AgentMetadata{
			{ID: "plan"},
			{ID: "build", Parallel: true},
			{ID: "lint", Parallel: true},
		},
	})

	require.NoError(t, rt.RegisterAgent("plan", func() Agent {
		return AgentFunc(func(ctx context.Context, tc *TaskContext) (any, error) {
			return "planned", nil
		})
	}))
	for _, id := range []string{"build", "lint"} {
		id := id
		require.NoError(t, rt.RegisterAgent(id, func() Agent {
			return AgentFunc(func(ctx context.Context, tc *TaskContext) (any, error) {
				return id + " ok", nil
			})
		}))
	}

	ctx := context.Background()
	res, err := rt.RunFlow(ctx, FlowRequest{WorkflowID: "wf-e2e", StoryID: "story-1"})
	require.NoError(t, err)
	require.Equal(t, "planned", res.Results["plan"])
	require.Equal(t, "build ok", res.Results["build"])
	require.Equal(t, []string{"plan", "build", "lint"}, res.Completed)
	require.Equal(t, 1, res.Metrics.ParallelGroups)
	require.Equal(t, 2, res.Metrics.TotalParallelAgents)

	// Durable files exist where the layout says they should.
	require.FileExists(t, filepath.Join(baseDir, "status", "wf-e2e.jsonl"))
	require.FileExists(t, filepath.Join(baseDir, "history", "wf-e2e.jsonl"))
	require.FileExists(t, filepath.Join(baseDir, "memory", "isolated", "plan_story-1.jsonl"))

	st, err := rt.GetWorkflowStatus(ctx, "wf-e2e")
	require.NoError(t, err)
	require.Equal(t, StateCompleted, st.AgentStatuses["plan"].Status)
	require.Equal(t, StateCompleted, st.AgentStatuses["build"].Status)

	entries, err := rt.QueryHistory(ctx, "wf-e2e", HistoryQueryOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	last, ok := rt.AgentLastExecution("plan")
	require.True(t, ok)
	require.False(t, last.IsZero())
}

func TestRuntime_RunFlowGeneratesWorkflowID(t *testing.T) {
	rt, _ := newTestRuntime(t, RuntimeConfig{
		Metadata: []AgentMetadata{{ID: "solo"}},
	})
	require.NoError(t, rt.RegisterAgent("solo", func() Agent {
		return AgentFunc(func(ctx context.Context, tc *TaskContext) (any, error) {
			return "x", nil
		})
	}))

	res, err := rt.RunFlow(context.Background(), FlowRequest{StoryID: "story-1"})
	require.NoError(t, err)
	require.NotEmpty(t, res.WorkflowID)

	// The generated id is usable for status lookups.
	st, err := rt.GetWorkflowStatus(context.Background(), res.WorkflowID)
	require.NoError(t, err)
	require.Equal(t, "story-1", st.StoryID)
}

func TestRuntime_ExplicitFlowOverridesMetadata(t *testing.T) {
	rt, _ := newTestRuntime(t, RuntimeConfig{
		Metadata: []AgentMetadata{
			{ID: "a", Parallel: true},
			{ID: "b", Parallel: true},
		},
		Flows: map[string]FlowSpec{
			"serial": {Entries: []FlowEntry{
				{AgentIDs: []string{"b"}},
				{AgentIDs: []string{"a"}},
			}},
		},
	})

	groups, err := rt.Plan("")
	require.Error(t, err, "agents not yet registered")
	require.Nil(t, groups)

	for _, id := range []string{"a", "b"} {
		require.NoError(t, rt.RegisterAgent(id, func() Agent {
			return AgentFunc(func(ctx context.Context, tc *TaskContext) (any, error) {
				return nil, nil
			})
		}))
	}

	groups, err = rt.Plan("")
	require.NoError(t, err)
	require.Len(t, groups, 1, "metadata plan coalesces a and b")

	groups, err = rt.Plan("serial")
	require.NoError(t, err)
	require.Len(t, groups, 2, "explicit flow keeps them sequential")
	require.Equal(t, []string{"b"}, groups[0].AgentIDs)
}

func TestRuntime_WorkflowLifecycle(t *testing.T) {
	rt, _ := newTestRuntime(t, RuntimeConfig{})
	ctx := context.Background()

	st, err := rt.InitWorkflow(ctx, "", "story-1", []string{"agent1"})
	require.NoError(t, err)
	require.NotEmpty(t, st.WorkflowID)
	require.Equal(t, StatePending, st.AgentStatuses["agent1"].Status)

	summaries, err := rt.ListWorkflows(ctx, WorkflowListOptions{StoryID: "story-1"})
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	active, err := rt.ListActiveWorkflows(ctx, WorkflowListOptions{})
	require.NoError(t, err)
	require.Len(t, active, 1)

	_, err = rt.ResetWorkflow(ctx, st.WorkflowID)
	require.NoError(t, err)

	require.NoError(t, rt.DeleteWorkflow(ctx, st.WorkflowID))
	_, err = rt.GetWorkflowStatus(ctx, st.WorkflowID)
	require.ErrorIs(t, err, ErrWorkflowNotFound)

	removed, err := rt.CleanupWorkflows(ctx, 30)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestRuntime_MemoryOperations(t *testing.T) {
	rt, _ := newTestRuntime(t, RuntimeConfig{})
	ctx := context.Background()

	require.NoError(t, rt.SetMemory(ctx, ScopeShared, "notes", map[string]any{"v": 1}))
	require.NoError(t, rt.SetMemory(ctx, ScopeIsolated, "agent1:story-1", "private"))

	val, err := rt.GetMemory(ctx, ScopeShared, "notes")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"v": 1}, val)

	_, err = rt.GetMemory(ctx, ScopeShared, "absent")
	require.ErrorIs(t, err, ErrKeyNotFound)

	stats := rt.MemoryStats()
	require.Equal(t, 2, stats.CacheSize)
	require.Contains(t, stats.CacheKeys, "shared:notes")

	rt.ClearMemoryCache()
	require.Zero(t, rt.MemoryStats().CacheSize)

	// Replay reconstructs the identical value.
	val, err = rt.GetMemory(ctx, ScopeIsolated, "agent1:story-1")
	require.NoError(t, err)
	require.Equal(t, "private", val)

	require.NoError(t, rt.FlushMemory(ctx))

	health := rt.MemoryHealth(ctx)
	require.Equal(t, "healthy", health.State)
}

func TestRuntime_SQLiteBackedMemory(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rt, baseDir := newTestRuntime(t, RuntimeConfig{
		BaseDir:  t.TempDir(),
		MemoryDB: db,
	})
	ctx := context.Background()

	require.NoError(t, rt.SetMemory(ctx, ScopeShared, "k", "v1"))
	require.NoError(t, rt.SetMemory(ctx, ScopeShared, "k", "v2"))

	val, err := rt.GetMemory(ctx, ScopeShared, "k")
	require.NoError(t, err)
	require.Equal(t, "v2", val)

	// No JSONL memory files when SQLite backs the store.
	_, err = os.Stat(filepath.Join(baseDir, "memory"))
	require.True(t, os.IsNotExist(err))
}

func TestRuntime_RequiresBaseDir(t *testing.T) {
	_, err := NewRuntime(RuntimeConfig{})
	require.Error(t, err)
}
