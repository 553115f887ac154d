package agentflow

import "github.com/petrijr/agentflow/pkg/api"

// Re-export key types so users don't need to dig into pkg/api.

type (
	AgentMetadata    = api.AgentMetadata
	WaitFor          = api.WaitFor
	Agent            = api.Agent
	AgentFunc        = api.AgentFunc
	AgentConstructor = api.AgentConstructor
	TaskContext      = api.TaskContext
	FlowSpec         = api.FlowSpec
	FlowEntry        = api.FlowEntry
	FlowRequest      = api.FlowRequest
	FlowResult       = api.FlowResult
	FlowMetrics      = api.FlowMetrics
	GroupMetrics     = api.GroupMetrics
	ExecutionGroup   = api.ExecutionGroup
	DependencyResult = api.DependencyResult
	WorkflowStatus   = api.WorkflowStatus
	WorkflowSummary  = api.WorkflowSummary
	HistoryEntry     = api.HistoryEntry
	AgentState       = api.AgentState
	TaskError        = api.TaskError
	MissingDocPolicy = api.MissingDocPolicy
	Event            = api.Event
	EventType        = api.EventType
	ProgressSink     = api.ProgressSink
	NoopSink         = api.NoopSink
	LoggingSink      = api.LoggingSink
	MetricsSink      = api.MetricsSink
	MetricsSnapshot  = api.MetricsSnapshot
)

// Re-export common sink helpers.

var (
	NewLoggingSink   = api.NewLoggingSink
	NewCompositeSink = api.NewCompositeSink
)

// Re-export agent states for convenience.

const (
	StatePending   = api.StatePending
	StateRunning   = api.StateRunning
	StateCompleted = api.StateCompleted
	StateFailed    = api.StateFailed
	StateSkipped   = api.StateSkipped
)

// Re-export missing-document policies.

const (
	MissingDocWait  = api.MissingDocWait
	MissingDocSkip  = api.MissingDocSkip
	MissingDocError = api.MissingDocError
)

// Memory scopes accepted by the Runtime memory operations.

const (
	ScopeIsolated = "isolated"
	ScopeShared   = "shared"
)
