package worklog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/agentflow/pkg/api"
)

func newTestHistoryStore(t *testing.T) (*HistoryStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewHistoryStore(dir)
	require.NoError(t, err)
	return store, dir
}

func historyEntry(workflowID, agentID string, ts time.Time) api.HistoryEntry {
	return api.HistoryEntry{
		WorkflowID: workflowID,
		StoryID:    "story-1",
		AgentID:    agentID,
		Status:     api.StateCompleted,
		DurationMS: 100,
		Timestamp:  ts,
	}
}

func TestHistoryStore_AppendCreatesFile(t *testing.T) {
	store, dir := newTestHistoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, historyEntry("wf-1", "agent1", time.Now())))
	require.FileExists(t, filepath.Join(dir, "wf-1.jsonl"))
}

func TestHistoryStore_QueryNewestFirst(t *testing.T) {
	store, _ := newTestHistoryStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		entry := historyEntry("wf-1", "agent1", base.Add(time.Duration(i)*time.Minute))
		entry.DurationMS = int64(i * 100)
		require.NoError(t, store.Append(ctx, entry))
	}

	entries, err := store.Query(ctx, "wf-1", HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, int64(200), entries[0].DurationMS)
	require.Equal(t, int64(0), entries[2].DurationMS)
}

func TestHistoryStore_QueryTimeRange(t *testing.T) {
	store, _ := newTestHistoryStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-3 * time.Hour)
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Append(ctx, historyEntry("wf-1", "agent1", base.Add(time.Duration(i)*time.Hour))))
	}

	entries, err := store.Query(ctx, "wf-1", HistoryQuery{
		From: base.Add(30 * time.Minute),
		To:   base.Add(150 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestHistoryStore_QueryPagination(t *testing.T) {
	store, _ := newTestHistoryStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, historyEntry("wf-1", "agent1", base.Add(time.Duration(i)*time.Minute))))
	}

	page, err := store.Query(ctx, "wf-1", HistoryQuery{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)

	tail, err := store.Query(ctx, "wf-1", HistoryQuery{Offset: 4})
	require.NoError(t, err)
	require.Len(t, tail, 1)

	none, err := store.Query(ctx, "wf-1", HistoryQuery{Offset: 10})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestHistoryStore_QueryMissingWorkflowIsEmpty(t *testing.T) {
	store, _ := newTestHistoryStore(t)

	entries, err := store.Query(context.Background(), "missing", HistoryQuery{})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestHistoryStore_ConcurrentAppends(t *testing.T) {
	store, dir := newTestHistoryStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Append(ctx, historyEntry("wf-1", "agent1", time.Now()))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "wf-1.jsonl"))
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 10)
}

func TestHistoryStore_RejectsInvalidEntry(t *testing.T) {
	store, _ := newTestHistoryStore(t)
	ctx := context.Background()

	var vErr *api.ValidationError
	bad := historyEntry("../wf", "agent1", time.Now())
	require.ErrorAs(t, store.Append(ctx, bad), &vErr)

	bad = historyEntry("wf-1", "agent1", time.Now())
	bad.Status = api.AgentState("nonsense")
	require.ErrorAs(t, store.Append(ctx, bad), &vErr)
}
