package agentflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/agentflow/pkg/api"
)

// flowsDocument is the on-disk shape of a flow specification file:
//
//	flows:
//	  release:
//	    - plan
//	    - [build, lint]
//	    - publish
//
// A scalar entry is a sequential step; a list entry is a parallel group.
type flowsDocument struct {
	Flows map[string][]api.FlowEntry `yaml:"flows"`
}

// LoadFlowSpecs parses a YAML flow specification file and validates every
// flow in it.
func LoadFlowSpecs(path string) (map[string]FlowSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow specs: %w", err)
	}
	return ParseFlowSpecs(data)
}

// ParseFlowSpecs parses flow specifications from YAML bytes.
func ParseFlowSpecs(data []byte) (map[string]FlowSpec, error) {
	var doc flowsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse flow specs: %w", err)
	}
	specs := make(map[string]FlowSpec, len(doc.Flows))
	for name, entries := range doc.Flows {
		spec := api.FlowSpec{Name: name, Entries: entries}
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		specs[name] = spec
	}
	return specs, nil
}

// agentsDocument is the on-disk shape of an agent metadata file:
//
//	agents:
//	  - id: plan
//	  - id: build
//	    parallel: true
//	    wait_for:
//	      docs: [design]
//	      agents: [plan]
//
// Sequence order is registration order and determines metadata-driven
// grouping.
type agentsDocument struct {
	Agents []api.AgentMetadata `yaml:"agents"`
}

// LoadAgentMetadata parses a YAML agent metadata file, preserving order.
func LoadAgentMetadata(path string) ([]AgentMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent metadata: %w", err)
	}
	return ParseAgentMetadata(data)
}

// ParseAgentMetadata parses agent metadata from YAML bytes.
func ParseAgentMetadata(data []byte) ([]AgentMetadata, error) {
	var doc agentsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse agent metadata: %w", err)
	}
	seen := make(map[string]bool, len(doc.Agents))
	for _, meta := range doc.Agents {
		if err := api.ValidateID("agent", meta.ID); err != nil {
			return nil, err
		}
		if seen[meta.ID] {
			return nil, &api.ValidationError{Field: "agent", Value: meta.ID, Reason: "duplicate id"}
		}
		seen[meta.ID] = true
	}
	return doc.Agents, nil
}
