package executor

import (
	"fmt"

	"github.com/petrijr/agentflow/pkg/api"
)

// IdentifyParallelGroups derives execution groups from agent metadata in
// registration order. Consecutive parallel agents coalesce into one group; a
// sequential agent is always its own singleton group. Grouping is maximal
// and order-preserving.
func IdentifyParallelGroups(metadata []api.AgentMetadata) []api.ExecutionGroup {
	groups := make([]api.ExecutionGroup, 0, len(metadata))
	for _, meta := range metadata {
		if meta.Parallel {
			if n := len(groups); n > 0 && groups[n-1].Parallel {
				groups[n-1].AgentIDs = append(groups[n-1].AgentIDs, meta.ID)
				continue
			}
			groups = append(groups, api.ExecutionGroup{
				AgentIDs: []string{meta.ID},
				Parallel: true,
			})
			continue
		}
		groups = append(groups, api.ExecutionGroup{
			AgentIDs: []string{meta.ID},
		})
	}
	return groups
}

// PlanFromSpec converts an explicit flow specification into execution
// groups. A list entry is a parallel group even with one member; a scalar
// entry is a sequential singleton.
func PlanFromSpec(spec api.FlowSpec) []api.ExecutionGroup {
	groups := make([]api.ExecutionGroup, 0, len(spec.Entries))
	for _, entry := range spec.Entries {
		ids := make([]string, len(entry.AgentIDs))
		copy(ids, entry.AgentIDs)
		groups = append(groups, api.ExecutionGroup{
			AgentIDs: ids,
			Parallel: entry.Parallel,
		})
	}
	return groups
}

// validatePlan checks that every agent in the plan has a registered
// constructor. It runs before any group starts so an unknown id never
// executes part of a run.
func validatePlan(groups []api.ExecutionGroup, registry *Registry) error {
	for _, group := range groups {
		for _, id := range group.AgentIDs {
			if !registry.Has(id) {
				return fmt.Errorf("%w: %s", api.ErrAgentNotFound, id)
			}
		}
	}
	return nil
}

// planAgents flattens a plan into the ordered list of agent ids it will run.
func planAgents(groups []api.ExecutionGroup) []string {
	var ids []string
	for _, group := range groups {
		ids = append(ids, group.AgentIDs...)
	}
	return ids
}
