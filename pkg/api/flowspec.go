package api

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// FlowEntry is one position in an explicit flow specification: a single
// agent id (sequential) or a list of agent ids (parallel group).
type FlowEntry struct {
	AgentIDs []string
	Parallel bool
}

// UnmarshalYAML accepts either a scalar agent id or a sequence of ids. A
// sequence always means a parallel group, even with one element.
func (e *FlowEntry) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var id string
		if err := node.Decode(&id); err != nil {
			return err
		}
		e.AgentIDs = []string{id}
		e.Parallel = false
		return nil
	case yaml.SequenceNode:
		var ids []string
		if err := node.Decode(&ids); err != nil {
			return err
		}
		e.AgentIDs = ids
		e.Parallel = true
		return nil
	default:
		return fmt.Errorf("flow entry must be an agent id or a list of agent ids (line %d)", node.Line)
	}
}

// FlowSpec is an externally authored, ordered sequence of flow entries. It
// overrides metadata-driven grouping when present.
type FlowSpec struct {
	Name    string      `yaml:"-"`
	Entries []FlowEntry `yaml:"entries"`
}

// Validate checks names and entry contents; it does not check that agent
// ids are registered, which happens at plan validation.
func (s FlowSpec) Validate() error {
	if err := ValidateID("flow", s.Name); err != nil {
		return err
	}
	if len(s.Entries) == 0 {
		return &ValidationError{Field: "flow", Value: s.Name, Reason: "must have at least one entry"}
	}
	for _, entry := range s.Entries {
		if len(entry.AgentIDs) == 0 {
			return &ValidationError{Field: "flow", Value: s.Name, Reason: "entry must name at least one agent"}
		}
		for _, id := range entry.AgentIDs {
			if err := ValidateID("agent", id); err != nil {
				return err
			}
		}
	}
	return nil
}
