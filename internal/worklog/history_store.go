package worklog

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/petrijr/agentflow/pkg/api"
)

// HistoryQuery filters and paginates history reads. Zero time bounds mean
// "no bound"; results are newest-first.
type HistoryQuery struct {
	From   time.Time
	To     time.Time
	Offset int
	Limit  int
}

// HistoryStore is the append-only audit trail of agent executions, one
// JSONL file per workflow. Entries are immutable: never superseded, only
// added to. The store does no aggregation on purpose; rates and averages
// belong to the caller.
type HistoryStore struct {
	dir string

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewHistoryStore creates the backing directory and returns a store.
func NewHistoryStore(dir string) (*HistoryStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &api.StorageError{Path: dir, Op: "mkdir", Err: err}
	}
	return &HistoryStore{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (h *HistoryStore) filePath(workflowID string) string {
	return filepath.Join(h.dir, workflowID+".jsonl")
}

func (h *HistoryStore) workflowLock(workflowID string) *sync.Mutex {
	h.lockMu.Lock()
	defer h.lockMu.Unlock()
	l, ok := h.locks[workflowID]
	if !ok {
		l = &sync.Mutex{}
		h.locks[workflowID] = l
	}
	return l
}

// Append adds one entry to the workflow's history file.
func (h *HistoryStore) Append(ctx context.Context, entry api.HistoryEntry) error {
	if err := api.ValidateID("workflow_id", entry.WorkflowID); err != nil {
		return err
	}
	if err := api.ValidateID("agent_id", entry.AgentID); err != nil {
		return err
	}
	if err := api.ValidateState(entry.Status); err != nil {
		return err
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return &api.ValidationError{Field: "history", Value: entry.WorkflowID, Reason: "not JSON-encodable"}
	}

	lock := h.workflowLock(entry.WorkflowID)
	lock.Lock()
	defer lock.Unlock()

	path := h.filePath(entry.WorkflowID)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &api.StorageError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return &api.StorageError{Path: path, Op: "append", Err: err}
	}
	return nil
}

// Query returns the workflow's entries newest-first, filtered by time range
// and paginated. A workflow with no history yields an empty slice.
func (h *HistoryStore) Query(ctx context.Context, workflowID string, q HistoryQuery) ([]api.HistoryEntry, error) {
	if err := api.ValidateID("workflow_id", workflowID); err != nil {
		return nil, err
	}

	path := h.filePath(workflowID)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []api.HistoryEntry{}, nil
		}
		return nil, &api.StorageError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	var entries []api.HistoryEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry api.HistoryEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if !q.From.IsZero() && entry.Timestamp.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && entry.Timestamp.After(q.To) {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, &api.StorageError{Path: path, Op: "read", Err: err}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return paginate(entries, q.Offset, q.Limit), nil
}

// Delete removes the workflow's history file. Used only for full teardown;
// history is otherwise never deleted.
func (h *HistoryStore) Delete(ctx context.Context, workflowID string) error {
	if err := api.ValidateID("workflow_id", workflowID); err != nil {
		return err
	}
	path := h.filePath(workflowID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &api.StorageError{Path: path, Op: "remove", Err: err}
	}
	return nil
}
