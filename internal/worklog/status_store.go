// Package worklog persists workflow state: a queryable latest-wins status
// log and an append-only history log, one JSONL file per workflow each. The
// two are deliberately independent so history survives status resets.
package worklog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/petrijr/agentflow/pkg/api"
)

// ErrWorkflowNotFound is returned when no status file exists for a workflow.
var ErrWorkflowNotFound = errors.New("worklog: workflow not found")

// ListOptions filters and paginates status listings. Zero values mean "no
// filter".
type ListOptions struct {
	StoryID    string
	WorkflowID string
	Offset     int
	Limit      int
}

// StatusStore is the durable "current state of a workflow" record. Each
// write appends one line; reads replay the file and return only the most
// recent well-formed line.
type StatusStore struct {
	dir string

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewStatusStore creates the backing directory and returns a store.
func NewStatusStore(dir string) (*StatusStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &api.StorageError{Path: dir, Op: "mkdir", Err: err}
	}
	return &StatusStore{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (s *StatusStore) filePath(workflowID string) string {
	return filepath.Join(s.dir, workflowID+".jsonl")
}

func (s *StatusStore) workflowLock(workflowID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[workflowID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[workflowID] = l
	}
	return l
}

// Init creates the status record with every agent pending. It is
// idempotent: an existing workflow is returned unchanged, original
// created_at included.
func (s *StatusStore) Init(ctx context.Context, workflowID, storyID string, agents []string) (*api.WorkflowStatus, error) {
	if err := api.ValidateID("workflow_id", workflowID); err != nil {
		return nil, err
	}
	if err := api.ValidateID("story_id", storyID); err != nil {
		return nil, err
	}

	lock := s.workflowLock(workflowID)
	lock.Lock()
	defer lock.Unlock()

	if existing, err := s.read(workflowID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrWorkflowNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	st := &api.WorkflowStatus{
		WorkflowID:    workflowID,
		StoryID:       storyID,
		AgentStatuses: make(map[string]api.AgentStatusRecord, len(agents)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, id := range agents {
		if err := api.ValidateID("agent_id", id); err != nil {
			return nil, err
		}
		st.AgentStatuses[id] = api.AgentStatusRecord{Status: api.StatePending}
	}
	if err := s.append(st); err != nil {
		return nil, err
	}
	return st, nil
}

// Write appends the given snapshot as the new current state.
func (s *StatusStore) Write(ctx context.Context, st *api.WorkflowStatus) error {
	if err := api.ValidateID("workflow_id", st.WorkflowID); err != nil {
		return err
	}
	for id, rec := range st.AgentStatuses {
		if err := api.ValidateID("agent_id", id); err != nil {
			return err
		}
		if err := api.ValidateState(rec.Status); err != nil {
			return err
		}
	}

	lock := s.workflowLock(st.WorkflowID)
	lock.Lock()
	defer lock.Unlock()

	st.UpdatedAt = time.Now().UTC()
	return s.append(st)
}

func (s *StatusStore) append(st *api.WorkflowStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return &api.ValidationError{Field: "status", Value: st.WorkflowID, Reason: "not JSON-encodable"}
	}
	path := s.filePath(st.WorkflowID)
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

// Update applies mutate to the current status and appends the result as the
// new current line. Read, mutation and append happen under the per-workflow
// lock as one critical section, so concurrent updates to the same workflow
// never lose each other's changes.
func (s *StatusStore) Update(ctx context.Context, workflowID string, mutate func(*api.WorkflowStatus)) (*api.WorkflowStatus, error) {
	if err := api.ValidateID("workflow_id", workflowID); err != nil {
		return nil, err
	}

	lock := s.workflowLock(workflowID)
	lock.Lock()
	defer lock.Unlock()

	st, err := s.read(workflowID)
	if err != nil {
		return nil, err
	}
	mutate(st)

	for id, rec := range st.AgentStatuses {
		if err := api.ValidateID("agent_id", id); err != nil {
			return nil, err
		}
		if err := api.ValidateState(rec.Status); err != nil {
			return nil, err
		}
	}
	st.UpdatedAt = time.Now().UTC()
	if err := s.append(st); err != nil {
		return nil, err
	}
	return st, nil
}

// Read returns the current status: the last well-formed line of the file.
func (s *StatusStore) Read(ctx context.Context, workflowID string) (*api.WorkflowStatus, error) {
	if err := api.ValidateID("workflow_id", workflowID); err != nil {
		return nil, err
	}
	return s.read(workflowID)
}

func (s *StatusStore) read(workflowID string) (*api.WorkflowStatus, error) {
	path := s.filePath(workflowID)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrWorkflowNotFound
		}
		return nil, &api.StorageError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	var latest *api.WorkflowStatus
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var st api.WorkflowStatus
		if err := json.Unmarshal([]byte(line), &st); err != nil {
			continue
		}
		latest = &st
	}
	if err := scanner.Err(); err != nil {
		return nil, &api.StorageError{Path: path, Op: "read", Err: err}
	}
	if latest == nil {
		return nil, ErrWorkflowNotFound
	}
	return latest, nil
}

// Reset appends a new line with every known agent back to pending. The
// history log is never touched; it survives resets by design.
func (s *StatusStore) Reset(ctx context.Context, workflowID string) (*api.WorkflowStatus, error) {
	return s.Update(ctx, workflowID, func(st *api.WorkflowStatus) {
		for id := range st.AgentStatuses {
			st.AgentStatuses[id] = api.AgentStatusRecord{Status: api.StatePending}
		}
	})
}

// Delete removes the status file. Subsequent reads report not-found.
func (s *StatusStore) Delete(ctx context.Context, workflowID string) error {
	if err := api.ValidateID("workflow_id", workflowID); err != nil {
		return err
	}
	path := s.filePath(workflowID)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrWorkflowNotFound
		}
		return &api.StorageError{Path: path, Op: "remove", Err: err}
	}
	return nil
}

// List enumerates status files and returns lightweight summaries, newest
// updated first, after filtering and pagination.
func (s *StatusStore) List(ctx context.Context, opts ListOptions) ([]api.WorkflowSummary, error) {
	statuses, err := s.snapshots(opts)
	if err != nil {
		return nil, err
	}

	summaries := make([]api.WorkflowSummary, 0, len(statuses))
	for _, st := range statuses {
		counts := make(map[api.AgentState]int)
		for _, rec := range st.AgentStatuses {
			counts[rec.Status]++
		}
		summaries = append(summaries, api.WorkflowSummary{
			WorkflowID: st.WorkflowID,
			StoryID:    st.StoryID,
			CreatedAt:  st.CreatedAt,
			UpdatedAt:  st.UpdatedAt,
			StateCount: counts,
		})
	}
	return paginate(summaries, opts.Offset, opts.Limit), nil
}

// ListActive returns full current snapshots of workflows that still have
// pending or running agents.
func (s *StatusStore) ListActive(ctx context.Context, opts ListOptions) ([]*api.WorkflowStatus, error) {
	statuses, err := s.snapshots(opts)
	if err != nil {
		return nil, err
	}

	active := statuses[:0]
	for _, st := range statuses {
		for _, rec := range st.AgentStatuses {
			if rec.Status == api.StatePending || rec.Status == api.StateRunning {
				active = append(active, st)
				break
			}
		}
	}
	return paginate(active, opts.Offset, opts.Limit), nil
}

func (s *StatusStore) snapshots(opts ListOptions) ([]*api.WorkflowStatus, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &api.StorageError{Path: s.dir, Op: "readdir", Err: err}
	}

	var statuses []*api.WorkflowStatus
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		workflowID := strings.TrimSuffix(name, ".jsonl")
		if opts.WorkflowID != "" && workflowID != opts.WorkflowID {
			continue
		}
		st, err := s.read(workflowID)
		if err != nil {
			if errors.Is(err, ErrWorkflowNotFound) {
				continue
			}
			return nil, err
		}
		if opts.StoryID != "" && st.StoryID != opts.StoryID {
			continue
		}
		statuses = append(statuses, st)
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].UpdatedAt.After(statuses[j].UpdatedAt)
	})
	return statuses, nil
}

// Cleanup deletes status files whose modification time is older than the
// retention window, measured in whole days. It is the only age-based
// deletion path; everything else requires an explicit Delete.
func (s *StatusStore) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, &api.StorageError{Path: s.dir, Op: "readdir", Err: err}
	}

	now := time.Now()
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		ageDays := int(now.Sub(info.ModTime()).Hours() / 24)
		if ageDays <= retentionDays {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			return removed, &api.StorageError{Path: path, Op: "remove", Err: err}
		}
		removed++
	}
	return removed, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
