// Package deps gates agent execution on declared prerequisites and vets the
// global dependency graph for structural defects before any run starts.
package deps

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/petrijr/agentflow/pkg/api"
)

// Checker answers "which declared prerequisites of this agent are unmet?".
// Document prerequisites are satisfied by the existence of <id>.md under the
// docs directory; agent prerequisites by membership in the completed set of
// the current run.
type Checker struct {
	docsDir string
}

// NewChecker creates a Checker rooted at docsDir.
func NewChecker(docsDir string) *Checker {
	return &Checker{docsDir: docsDir}
}

// CheckDocumentDependencies returns the ids from required whose document
// artifact does not exist, preserving order. Ids that fail the identifier
// allow-list are reported as missing without touching the filesystem.
func (c *Checker) CheckDocumentDependencies(required []string) []string {
	missing := make([]string, 0, len(required))
	for _, id := range required {
		if api.ValidateID("doc", id) != nil {
			missing = append(missing, id)
			continue
		}
		path := filepath.Join(c.docsDir, id+".md")
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, id)
		}
	}
	return missing
}

// CheckAgentDependencies returns the ids from required that are not in the
// completed set, preserving order.
func (c *Checker) CheckAgentDependencies(required, completed []string) []string {
	done := make(map[string]bool, len(completed))
	for _, id := range completed {
		done[id] = true
	}
	missing := make([]string, 0, len(required))
	for _, id := range required {
		if !done[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

// CheckDependencies combines document and agent checks for one agent. Absent
// metadata or an absent wait_for block means no dependencies.
func (c *Checker) CheckDependencies(meta *api.AgentMetadata, completed []string) api.DependencyResult {
	result := api.DependencyResult{
		MissingDocs:   []string{},
		MissingAgents: []string{},
	}
	if meta == nil || meta.WaitFor == nil {
		return result
	}
	result.MissingDocs = c.CheckDocumentDependencies(meta.WaitFor.Docs)
	result.MissingAgents = c.CheckAgentDependencies(meta.WaitFor.Agents, completed)
	return result
}

// DependencyGraph returns the adjacency view of the full metadata set for
// introspection. It is pure and side-effect free.
func DependencyGraph(all []api.AgentMetadata) map[string]api.WaitFor {
	graph := make(map[string]api.WaitFor, len(all))
	for _, meta := range all {
		wf := api.WaitFor{Docs: []string{}, Agents: []string{}}
		if meta.WaitFor != nil {
			if meta.WaitFor.Docs != nil {
				wf.Docs = meta.WaitFor.Docs
			}
			if meta.WaitFor.Agents != nil {
				wf.Agents = meta.WaitFor.Agents
			}
		}
		graph[meta.ID] = wf
	}
	return graph
}

// DetectCircularDependencies walks the agent->wait_for.agents graph over the
// entire registered set and returns a CircularDependencyError naming one
// cycle, self-loops included. It must run once at load time, never during a
// run.
func DetectCircularDependencies(all []api.AgentMetadata) error {
	adj := make(map[string][]string, len(all))
	ids := make([]string, 0, len(all))
	for _, meta := range all {
		ids = append(ids, meta.ID)
		if meta.WaitFor != nil {
			adj[meta.ID] = meta.WaitFor.Agents
		}
	}
	// Deterministic start order so the reported cycle is stable.
	sort.Strings(ids)

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(ids))
	var stack []string

	var visit func(id string) *api.CircularDependencyError
	visit = func(id string) *api.CircularDependencyError {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range adj[id] {
			switch color[dep] {
			case gray:
				// Found a back edge; slice the cycle out of the stack.
				start := 0
				for i, n := range stack {
					if n == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, stack[start:]...), dep)
				return &api.CircularDependencyError{Cycle: cycle}
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, id := range ids {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}
