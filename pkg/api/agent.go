package api

import "context"

// ResultKey is the TaskContext value key under which an agent stores its
// result. The executor reads it back after Finalize.
const ResultKey = "output"

// TaskContext carries the per-invocation state handed to an agent. Members
// of a parallel group each receive their own context with their own copy of
// the shared input, so concurrent agents never observe each other's
// mutations.
type TaskContext struct {
	StoryID string
	AgentID string

	// MemoryKey is the isolated durable-store key for this (agent, story)
	// pair, always "<agent_id>:<story_id>".
	MemoryKey string

	// Input is the flow input as seen by this agent.
	Input any

	// Values is scratch space owned by the agent for the duration of the
	// invocation. The result goes under ResultKey.
	Values map[string]any
}

// SetResult stores v under ResultKey.
func (tc *TaskContext) SetResult(v any) {
	if tc.Values == nil {
		tc.Values = make(map[string]any)
	}
	tc.Values[ResultKey] = v
}

// Result returns the value stored under ResultKey, or nil.
func (tc *TaskContext) Result() any {
	return tc.Values[ResultKey]
}

// Agent is the unit of work the executor schedules. Implementations are
// produced by the external authoring tool; the executor treats them as
// opaque and only drives the three phases in order.
type Agent interface {
	Prepare(ctx context.Context, tc *TaskContext) error
	Execute(ctx context.Context, tc *TaskContext) error
	Finalize(ctx context.Context, tc *TaskContext) error
}

// AgentConstructor builds a fresh Agent per invocation. Registered once at
// startup in the executor's registry.
type AgentConstructor func() Agent

// AgentFunc adapts a plain function to the Agent interface. Prepare and
// Finalize are no-ops; the function's return value becomes the result.
type AgentFunc func(ctx context.Context, tc *TaskContext) (any, error)

func (f AgentFunc) Prepare(ctx context.Context, tc *TaskContext) error { return nil }

func (f AgentFunc) Execute(ctx context.Context, tc *TaskContext) error {
	out, err := f(ctx, tc)
	if err != nil {
		return err
	}
	tc.SetResult(out)
	return nil
}

func (f AgentFunc) Finalize(ctx context.Context, tc *TaskContext) error { return nil }
