package api

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAgentNotFound is returned when a plan references an agent id with
	// no registered constructor.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrFlowNotFound is returned when a run names an unregistered flow.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrFlowAborted is returned when a run stops because the caller's
	// context was cancelled between milestones. Results of agents that were
	// already in flight are discarded.
	ErrFlowAborted = errors.New("flow aborted")
)

// ValidationError reports malformed identifiers or content rejected at the
// boundary before it reaches the core.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// DependencyError reports an unmet prerequisite under the "error" missing
// document policy.
type DependencyError struct {
	AgentID string
	Result  DependencyResult
}

func (e *DependencyError) Error() string {
	var parts []string
	if len(e.Result.MissingDocs) > 0 {
		parts = append(parts, "docs: "+strings.Join(e.Result.MissingDocs, ", "))
	}
	if len(e.Result.MissingAgents) > 0 {
		parts = append(parts, "agents: "+strings.Join(e.Result.MissingAgents, ", "))
	}
	return fmt.Sprintf("missing dependencies for %s (%s)", e.AgentID, strings.Join(parts, "; "))
}

// CircularDependencyError reports a cycle in the agent dependency graph.
// Detected once at load time, before any execution.
type CircularDependencyError struct {
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return "circular dependency detected: " + strings.Join(e.Cycle, " -> ")
}

// TaskExecutionError wraps an agent failure. Inside a parallel group it is
// contained to that agent's result; in a sequential position it fails the
// whole run.
type TaskExecutionError struct {
	AgentID string
	Err     error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("agent %s failed: %v", e.AgentID, e.Err)
}

func (e *TaskExecutionError) Unwrap() error { return e.Err }

// StorageError wraps a filesystem failure on a backing file.
type StorageError struct {
	Path string
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
