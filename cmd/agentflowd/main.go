// Command agentflowd serves a Runtime over HTTP: flow runs (sync and
// streaming), workflow lifecycle, status/history queries and the durable
// memory store.
//
// Agent implementations are registered in code by embedders; standalone,
// the daemon registers an echo agent per metadata entry so flows remain
// runnable end to end for smoke testing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/petrijr/agentflow"
	"github.com/petrijr/agentflow/pkg/service"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	baseDir := flag.String("base-dir", "./data", "root directory for backing files")
	docsDir := flag.String("docs-dir", "", "document artifact directory (default <base-dir>/docs)")
	agentsFile := flag.String("agents", "", "agent metadata YAML file")
	flowsFile := flag.String("flows", "", "flow specification YAML file")
	policy := flag.String("missing-doc-policy", "wait", "missing document policy: wait, skip or error")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if err := run(*addr, *baseDir, *docsDir, *agentsFile, *flowsFile, *policy, logger); err != nil {
		logger.Error("agentflowd failed", "error", err)
		os.Exit(1)
	}
}

func run(addr, baseDir, docsDir, agentsFile, flowsFile, policy string, logger *slog.Logger) error {
	var metadata []agentflow.AgentMetadata
	if agentsFile != "" {
		var err error
		metadata, err = agentflow.LoadAgentMetadata(agentsFile)
		if err != nil {
			return err
		}
	}
	var flows map[string]agentflow.FlowSpec
	if flowsFile != "" {
		var err error
		flows, err = agentflow.LoadFlowSpecs(flowsFile)
		if err != nil {
			return err
		}
	}

	rt, err := agentflow.NewRuntime(agentflow.RuntimeConfig{
		BaseDir:          baseDir,
		DocsDir:          docsDir,
		Metadata:         metadata,
		Flows:            flows,
		MissingDocPolicy: agentflow.MissingDocPolicy(policy),
		Sink:             agentflow.NewLoggingSink(logger),
	})
	if err != nil {
		return err
	}

	for _, meta := range metadata {
		id := meta.ID
		if err := rt.RegisterAgent(id, func() agentflow.Agent {
			return agentflow.AgentFunc(func(ctx context.Context, tc *agentflow.TaskContext) (any, error) {
				return fmt.Sprintf("%s executed for story %s", id, tc.StoryID), nil
			})
		}); err != nil {
			return err
		}
	}

	svc, err := service.New(service.Config{Runtime: rt, Logger: logger})
	if err != nil {
		return err
	}

	logger.Info("agentflowd listening", "addr", addr, "base_dir", baseDir)
	return http.ListenAndServe(addr, svc.Handler())
}
