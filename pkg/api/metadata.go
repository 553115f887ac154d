package api

// WaitFor declares the prerequisites of an agent: document artifacts that
// must exist on disk and agents that must have completed earlier in the
// current run.
type WaitFor struct {
	Docs   []string `json:"docs" yaml:"docs"`
	Agents []string `json:"agents" yaml:"agents"`
}

// AgentMetadata is the externally authored, immutable description of an
// agent's structural position in a flow. It is never mutated at runtime.
type AgentMetadata struct {
	ID       string   `json:"id" yaml:"id"`
	Parallel bool     `json:"parallel" yaml:"parallel"`
	WaitFor  *WaitFor `json:"wait_for,omitempty" yaml:"wait_for,omitempty"`
}

// DependencyResult lists the prerequisites of one agent that are currently
// unmet. It is computed per gating check and never cached.
type DependencyResult struct {
	MissingDocs   []string `json:"missing_docs"`
	MissingAgents []string `json:"missing_agents"`
}

// Satisfied reports whether every declared prerequisite is met.
func (r DependencyResult) Satisfied() bool {
	return len(r.MissingDocs) == 0 && len(r.MissingAgents) == 0
}

// ExecutionGroup is one scheduled batch of a plan: either a single
// sequential agent or a set of agents that run concurrently. Groups are
// executed strictly in order; a group never starts before the previous one
// has fully finished.
type ExecutionGroup struct {
	AgentIDs []string `json:"agent_ids"`
	Parallel bool     `json:"parallel"`
}

// MissingDocPolicy controls what happens when an agent's required documents
// are absent at gating time.
type MissingDocPolicy string

const (
	// MissingDocWait reports the missing documents as pending and does not
	// run the agent. The run stops without raising.
	MissingDocWait MissingDocPolicy = "wait"

	// MissingDocSkip behaves like MissingDocWait. The two values are kept
	// distinct so configurations written for either stay valid.
	MissingDocSkip MissingDocPolicy = "skip"

	// MissingDocError aborts the whole run with a DependencyError.
	MissingDocError MissingDocPolicy = "error"
)
