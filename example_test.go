package agentflow_test

import (
	"context"
	"fmt"
	"os"

	"github.com/petrijr/agentflow"
)

// Example demonstrates registering agents, defining a flow with the builder,
// and running it against a temporary base directory.
func Example() {
	baseDir, err := os.MkdirTemp("", "agentflow-example")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer os.RemoveAll(baseDir)

	rt, err := agentflow.NewRuntime(agentflow.RuntimeConfig{BaseDir: baseDir})
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	agents := map[string]string{
		"plan":    "plan ready",
		"build":   "build ok",
		"lint":    "lint clean",
		"publish": "published",
	}
	for id, out := range agents {
		out := out
		if err := rt.RegisterAgent(id, func() agentflow.Agent {
			return agentflow.AgentFunc(func(ctx context.Context, tc *agentflow.TaskContext) (any, error) {
				return out, nil
			})
		}); err != nil {
			fmt.Println("error:", err)
			return
		}
	}

	agentflow.NewFlow("release").
		Step("plan").
		Parallel("build", "lint").
		Step("publish").
		MustRegister(rt)

	res, err := rt.RunFlow(context.Background(), agentflow.FlowRequest{
		Flow:    "release",
		StoryID: "story-42",
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(res.Results["plan"])
	fmt.Println(res.Results["publish"])
	fmt.Println("completed:", len(res.Completed))
	// Output:
	// plan ready
	// published
	// completed: 4
}
