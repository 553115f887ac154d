package worklog

import (
	"context"
	"errors"
	"time"

	"github.com/petrijr/agentflow/pkg/api"
)

// Journal couples the status log and the history log: a status write that
// changes an agent's state triggers exactly one history append for that
// agent. The two logs stay independently durable — resets rewrite status
// but never touch history.
type Journal struct {
	Status  *StatusStore
	History *HistoryStore
}

// NewJournal wires a journal over the two stores.
func NewJournal(status *StatusStore, history *HistoryStore) *Journal {
	return &Journal{Status: status, History: history}
}

// Init initializes the status record; history starts on the first real
// state change.
func (j *Journal) Init(ctx context.Context, workflowID, storyID string, agents []string) (*api.WorkflowStatus, error) {
	return j.Status.Init(ctx, workflowID, storyID, agents)
}

// RecordAgentState updates one agent's entry in the workflow status and, if
// the state actually changed, appends one history entry. An unchanged state
// still refreshes last_execution and the output summary but leaves history
// alone.
func (j *Journal) RecordAgentState(
	ctx context.Context,
	workflowID, storyID, agentID string,
	state api.AgentState,
	summary string,
	start, end time.Time,
) error {
	var changed bool
	mutate := func(st *api.WorkflowStatus) {
		changed = st.AgentStatuses[agentID].Status != state
		rec := api.AgentStatusRecord{
			Status:        state,
			OutputSummary: summary,
		}
		if !end.IsZero() {
			t := end.UTC()
			rec.LastExecution = &t
		}
		st.AgentStatuses[agentID] = rec
	}

	// Update holds the workflow lock across read, mutate and append, so
	// concurrent records for sibling agents cannot overwrite each other.
	_, err := j.Status.Update(ctx, workflowID, mutate)
	if errors.Is(err, ErrWorkflowNotFound) {
		if _, err = j.Status.Init(ctx, workflowID, storyID, []string{agentID}); err != nil {
			return err
		}
		_, err = j.Status.Update(ctx, workflowID, mutate)
	}
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	entry := api.HistoryEntry{
		WorkflowID:    workflowID,
		StoryID:       storyID,
		AgentID:       agentID,
		Status:        state,
		OutputSummary: summary,
	}
	if !start.IsZero() {
		t := start.UTC()
		entry.StartTime = &t
	}
	if !end.IsZero() {
		t := end.UTC()
		entry.EndTime = &t
	}
	if !start.IsZero() && !end.IsZero() {
		entry.DurationMS = end.Sub(start).Milliseconds()
	}
	return j.History.Append(ctx, entry)
}

// Reset returns every known agent to pending. History is untouched.
func (j *Journal) Reset(ctx context.Context, workflowID string) (*api.WorkflowStatus, error) {
	return j.Status.Reset(ctx, workflowID)
}

// Delete tears a workflow down completely: status file and history file.
func (j *Journal) Delete(ctx context.Context, workflowID string) error {
	if err := j.Status.Delete(ctx, workflowID); err != nil {
		return err
	}
	return j.History.Delete(ctx, workflowID)
}
