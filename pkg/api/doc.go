// Package api contains the core building blocks of the agentflow runtime.
// It defines the types shared between the executor, the durable stores, and
// external callers.
//
// Most users interact with the higher-level agentflow package, which
// re-exports selected types and helpers from this package. The api package
// is intended for custom integrations or contributors extending the runtime
// itself.
//
// # Concepts
//
// The api package centers around a small set of concepts:
//
//   - Agent metadata and dependency declarations
//   - Flow specifications and execution groups
//   - The agent contract (Prepare / Execute / Finalize over a TaskContext)
//   - Workflow status and history records
//   - Progress sinks
//
// # Agent Metadata
//
// AgentMetadata is authored externally and describes only the structural
// position of an agent: whether it may run in parallel with its neighbors,
// and which documents and agents it waits for. Metadata is immutable at
// runtime; the executor derives execution plans from it.
//
// # Flow Specifications
//
// A FlowSpec is an ordered sequence of entries where each entry is either a
// single agent id (sequential) or a list of agent ids (parallel group).
// When a named flow specification exists it overrides metadata-driven
// grouping.
//
// # Progress Sinks
//
// The ProgressSink interface receives executor milestones: run start, agent
// start/complete, per-agent results, parallel group starts, and terminal
// done/error events. Ready-made implementations cover logging (slog),
// in-memory counters, and fan-out composition. Transport concerns such as
// event framing and heartbeats live outside the core, in consumers like the
// stream package.
package api
