// Package agentflow provides an embeddable runtime that executes a declared
// set of autonomous agent tasks as a dependency-ordered, partially-parallel
// workflow with durable, replayable state.
//
// Agentflow runs fully in Go, persists every state transition to append-only
// JSONL files (or SQLite), and integrates cleanly into existing services.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Runtime
//  2. Agent
//  3. FlowBuilder / flow specification files
//  4. AgentMetadata
//  5. ProgressSink
//
// # Runtime
//
// The Runtime bundles the scheduler with its durable stores over one base
// directory. It provides APIs to:
//   - register agents and flows
//   - run flows synchronously or with progress streaming
//   - read and manage workflow status and execution history
//   - read and write the scoped durable memory store
//
// Backing storage is one append-only JSON-Lines file per key: isolated or
// shared memory records, one status file per workflow, one history file per
// workflow. All files are human-inspectable. The memory store can instead be
// backed by SQLite for single-file deployments.
//
// # Agent
//
// An Agent is the unit of work the scheduler drives:
//
//	type Agent interface {
//	    Prepare(ctx context.Context, tc *TaskContext) error
//	    Execute(ctx context.Context, tc *TaskContext) error
//	    Finalize(ctx context.Context, tc *TaskContext) error
//	}
//
// Agents are registered by id as constructors; a fresh instance is built per
// invocation. AgentFunc adapts a plain function for the common case. The
// TaskContext carries the story id, the agent's isolated memory key, and the
// flow input; the result is stored under the context's result key.
//
// An agent's metadata declares its structural position: whether it may run
// in parallel with its neighbors and which documents or agents it waits for.
// The scheduler gates each agent on these prerequisites and vets the whole
// dependency graph for cycles at construction time.
//
// # Flows
//
// A flow is an ordered sequence of entries, each a single agent (sequential)
// or a list of agents (parallel group). Groups run strictly in order; group
// members run concurrently with per-member failure isolation. Flows come
// from YAML files:
//
//	flows:
//	  release:
//	    - plan
//	    - [build, lint]
//	    - publish
//
// or from the fluent builder:
//
//	agentflow.NewFlow("release").
//	    Step("plan").
//	    Parallel("build", "lint").
//	    Step("publish")
//
// Without an explicit flow, the plan derives from metadata parallel flags:
// consecutive parallel agents coalesce into one group.
//
// # ProgressSink
//
// The scheduler emits milestones (run start, group start, agent start and
// completion, intermediate results, terminal done or error) to a sink
// interface. Sinks compose: logging via log/slog, atomic counters, or the
// Server-Sent-Events transport in pkg/stream. Transport concerns such as
// framing, heartbeats and disconnect polling live entirely outside the
// scheduler.
//
// For the HTTP surface, see pkg/service. For examples, see the /examples
// directory.
package agentflow
