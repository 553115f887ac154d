package agentflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlowBuilder_BuildsEntries(t *testing.T) {
	flow := NewFlow("release").
		Step("plan").
		Parallel("build", "lint").
		Step("publish")

	require.Equal(t, "release", flow.Name())

	spec := flow.Spec()
	require.NoError(t, spec.Validate())
	require.Len(t, spec.Entries, 3)

	require.Equal(t, []string{"plan"}, spec.Entries[0].AgentIDs)
	require.False(t, spec.Entries[0].Parallel)

	require.Equal(t, []string{"build", "lint"}, spec.Entries[1].AgentIDs)
	require.True(t, spec.Entries[1].Parallel)

	require.Equal(t, []string{"publish"}, spec.Entries[2].AgentIDs)
	require.False(t, spec.Entries[2].Parallel)
}

func TestFlowBuilder_SingleAgentParallelStaysParallel(t *testing.T) {
	spec := NewFlow("f").Parallel("solo").Spec()
	require.True(t, spec.Entries[0].Parallel)
}

func TestFlowBuilder_PanicsOnEmptyIDs(t *testing.T) {
	require.Panics(t, func() { NewFlow("f").Step("") })
	require.Panics(t, func() { NewFlow("f").Parallel() })
	require.Panics(t, func() { NewFlow("f").Parallel("ok", "") })
}

func TestFlowBuilder_RegisterValidates(t *testing.T) {
	rt, err := NewRuntime(RuntimeConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)

	require.Error(t, NewFlow("empty").Register(rt), "a flow without entries is invalid")
	require.NoError(t, NewFlow("ok").Step("a").Register(rt))

	groups, err := rt.Plan("ok")
	require.Error(t, err, "agent a is not registered")
	require.Nil(t, groups)
}
