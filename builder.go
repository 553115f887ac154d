package agentflow

import (
	"fmt"

	"github.com/petrijr/agentflow/pkg/api"
)

// FlowBuilder provides a fluent API for defining flow specifications:
//
//	flow := agentflow.NewFlow("release").
//	    Step("plan").
//	    Parallel("build", "lint").
//	    Step("publish")
//
//	if err := flow.Register(runtime); err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := runtime.RunFlow(ctx, agentflow.FlowRequest{
//	    Flow:    flow.Name(),
//	    StoryID: "story-42",
//	})
type FlowBuilder struct {
	spec api.FlowSpec
}

// NewFlow creates a new flow builder with the given name.
func NewFlow(name string) *FlowBuilder {
	return &FlowBuilder{
		spec: api.FlowSpec{
			Name:    name,
			Entries: make([]api.FlowEntry, 0),
		},
	}
}

// Name returns the flow name.
func (b *FlowBuilder) Name() string {
	return b.spec.Name
}

// Spec returns the underlying FlowSpec.
// Typically used when interacting with lower-level APIs.
func (b *FlowBuilder) Spec() FlowSpec {
	return b.spec
}

// Step appends a sequential entry running one agent.
func (b *FlowBuilder) Step(agentID string) *FlowBuilder {
	if agentID == "" {
		panic("agentflow: step agent id must not be empty")
	}
	b.spec.Entries = append(b.spec.Entries, api.FlowEntry{
		AgentIDs: []string{agentID},
	})
	return b
}

// Parallel appends a parallel group entry. A single-agent group stays
// parallel, matching the list form in flow specification files.
func (b *FlowBuilder) Parallel(agentIDs ...string) *FlowBuilder {
	if len(agentIDs) == 0 {
		panic("agentflow: parallel group must name at least one agent")
	}
	for _, id := range agentIDs {
		if id == "" {
			panic(fmt.Sprintf("agentflow: parallel group %v has an empty agent id", agentIDs))
		}
	}
	ids := make([]string, len(agentIDs))
	copy(ids, agentIDs)
	b.spec.Entries = append(b.spec.Entries, api.FlowEntry{
		AgentIDs: ids,
		Parallel: true,
	})
	return b
}

// Register validates the built flow and registers it with the runtime.
func (b *FlowBuilder) Register(rt *Runtime) error {
	return rt.RegisterFlow(b.spec)
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *FlowBuilder) MustRegister(rt *Runtime) {
	if err := b.Register(rt); err != nil {
		panic(err)
	}
}
