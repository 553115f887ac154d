package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/agentflow/pkg/api"
)

func metaList(entries ...api.AgentMetadata) []api.AgentMetadata {
	return entries
}

func TestIdentifyParallelGroups_MaximalOrderPreserving(t *testing.T) {
	metadata := metaList(
		api.AgentMetadata{ID: "seq1"},
		api.AgentMetadata{ID: "par1", Parallel: true},
		api.AgentMetadata{ID: "par2", Parallel: true},
		api.AgentMetadata{ID: "seq2"},
		api.AgentMetadata{ID: "par3", Parallel: true},
		api.AgentMetadata{ID: "par4", Parallel: true},
	)

	groups := IdentifyParallelGroups(metadata)
	require.Equal(t, []api.ExecutionGroup{
		{AgentIDs: []string{"seq1"}},
		{AgentIDs: []string{"par1", "par2"}, Parallel: true},
		{AgentIDs: []string{"seq2"}},
		{AgentIDs: []string{"par3", "par4"}, Parallel: true},
	}, groups)
}

func TestIdentifyParallelGroups_LoneSequentialNeverMerges(t *testing.T) {
	groups := IdentifyParallelGroups(metaList(
		api.AgentMetadata{ID: "a"},
		api.AgentMetadata{ID: "b"},
	))
	require.Len(t, groups, 2)
	require.False(t, groups[0].Parallel)
	require.False(t, groups[1].Parallel)
}

func TestIdentifyParallelGroups_AllParallelIsOneGroup(t *testing.T) {
	groups := IdentifyParallelGroups(metaList(
		api.AgentMetadata{ID: "a", Parallel: true},
		api.AgentMetadata{ID: "b", Parallel: true},
		api.AgentMetadata{ID: "c", Parallel: true},
	))
	require.Len(t, groups, 1)
	require.Equal(t, []string{"a", "b", "c"}, groups[0].AgentIDs)
	require.True(t, groups[0].Parallel)
}

func TestIdentifyParallelGroups_Empty(t *testing.T) {
	require.Empty(t, IdentifyParallelGroups(nil))
}

func TestPlanFromSpec(t *testing.T) {
	spec := api.FlowSpec{
		Name: "release",
		Entries: []api.FlowEntry{
			{AgentIDs: []string{"seq1"}},
			{AgentIDs: []string{"par1", "par2"}, Parallel: true},
			// Single-element list entries stay parallel groups.
			{AgentIDs: []string{"solo"}, Parallel: true},
		},
	}

	groups := PlanFromSpec(spec)
	require.Equal(t, []api.ExecutionGroup{
		{AgentIDs: []string{"seq1"}},
		{AgentIDs: []string{"par1", "par2"}, Parallel: true},
		{AgentIDs: []string{"solo"}, Parallel: true},
	}, groups)
}

func TestValidatePlan_UnknownAgent(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("known", func() api.Agent {
		return api.AgentFunc(func(ctx context.Context, tc *api.TaskContext) (any, error) { return nil, nil })
	}))

	err := validatePlan([]api.ExecutionGroup{
		{AgentIDs: []string{"known", "unknown"}},
	}, registry)
	require.ErrorIs(t, err, api.ErrAgentNotFound)

	require.NoError(t, validatePlan([]api.ExecutionGroup{
		{AgentIDs: []string{"known"}},
	}, registry))
}
