package api

import "time"

// FlowRequest describes one run of a flow.
type FlowRequest struct {
	// Flow is the name of a registered flow specification. If empty, the
	// plan is derived from agent metadata parallel flags instead.
	Flow string `json:"flow,omitempty"`

	// WorkflowID identifies the durable status/history records for this
	// run. Generated by the caller (the service layer uses a UUID).
	WorkflowID string `json:"workflow_id"`

	StoryID string `json:"story_id"`
	Input   any    `json:"input,omitempty"`
}

// TaskError records one contained per-agent failure.
type TaskError struct {
	AgentID string `json:"agent_id"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// GroupMetrics describes one parallel group after it has finished. TimeSaved
// is diagnostic only: the sum of per-member durations minus the observed
// wall clock, clamped at zero.
type GroupMetrics struct {
	AgentCount int           `json:"agent_count"`
	WallClock  time.Duration `json:"wall_clock"`
	Failed     int           `json:"failed"`
	TimeSaved  time.Duration `json:"time_saved"`
}

// FlowMetrics aggregates a whole run.
type FlowMetrics struct {
	ParallelGroups      int           `json:"parallel_groups"`
	TotalParallelAgents int           `json:"total_parallel_agents"`
	FailedAgents        int           `json:"failed_agents"`
	TimeSavings         time.Duration `json:"time_savings"`
	Duration            time.Duration `json:"duration"`
}

// FlowResult is the outcome of a run. When PendingDocs is non-empty the run
// stopped at the gating check without executing the blocked agent.
type FlowResult struct {
	WorkflowID string `json:"workflow_id"`
	StoryID    string `json:"story_id"`

	// Results maps agent id to that agent's result. Agents that failed
	// inside a parallel group still have an entry ("Error: <message>").
	Results map[string]any `json:"results"`

	Completed []string    `json:"completed"`
	Errors    []TaskError `json:"errors,omitempty"`

	PendingDocs   []string `json:"pending_docs,omitempty"`
	PendingAgents []string `json:"pending_agents,omitempty"`

	Metrics FlowMetrics `json:"metrics"`
}

// Pending reports whether the run stopped on unmet prerequisites.
func (r *FlowResult) Pending() bool {
	return len(r.PendingDocs) > 0 || len(r.PendingAgents) > 0
}
