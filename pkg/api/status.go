package api

import "time"

// AgentState is the lifecycle state of one agent within a workflow.
type AgentState string

const (
	StatePending   AgentState = "pending"
	StateRunning   AgentState = "running"
	StateCompleted AgentState = "completed"
	StateFailed    AgentState = "failed"
	StateSkipped   AgentState = "skipped"
)

// ValidStates is the allow-list accepted by the status log boundary.
var ValidStates = map[AgentState]bool{
	StatePending:   true,
	StateRunning:   true,
	StateCompleted: true,
	StateFailed:    true,
	StateSkipped:   true,
}

// AgentStatusRecord is the current state of one agent inside a
// WorkflowStatus snapshot.
type AgentStatusRecord struct {
	Status        AgentState `json:"status"`
	LastExecution *time.Time `json:"last_execution,omitempty"`
	OutputSummary string     `json:"output_summary,omitempty"`
}

// WorkflowStatus is the current state of a workflow. One logical record per
// workflow, many physical lines in the backing file; reads return only the
// most recent line.
type WorkflowStatus struct {
	WorkflowID    string                       `json:"workflow_id"`
	StoryID       string                       `json:"story_id"`
	AgentStatuses map[string]AgentStatusRecord `json:"agent_statuses"`
	CreatedAt     time.Time                    `json:"created_at"`
	UpdatedAt     time.Time                    `json:"updated_at"`
}

// WorkflowSummary is the lightweight listing view of a workflow status.
type WorkflowSummary struct {
	WorkflowID string             `json:"workflow_id"`
	StoryID    string             `json:"story_id"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	StateCount map[AgentState]int `json:"state_count"`
}

// HistoryEntry is one immutable line of the execution audit trail. Entries
// are only ever appended, never superseded.
type HistoryEntry struct {
	WorkflowID    string     `json:"workflow_id"`
	StoryID       string     `json:"story_id"`
	AgentID       string     `json:"agent_id"`
	Status        AgentState `json:"status"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	DurationMS    int64      `json:"duration_ms"`
	OutputSummary string     `json:"output_summary,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}
