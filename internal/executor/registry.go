package executor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/petrijr/agentflow/pkg/api"
)

// Registry maps agent ids to constructors. It is populated once at startup
// by the external loader; the scheduler performs only lookups.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]api.AgentConstructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]api.AgentConstructor),
	}
}

// Register associates an agent id with its constructor. Duplicate ids and
// nil constructors are rejected.
func (r *Registry) Register(id string, ctor api.AgentConstructor) error {
	if err := api.ValidateID("agent", id); err != nil {
		return err
	}
	if ctor == nil {
		return &api.ValidationError{Field: "agent", Value: id, Reason: "constructor must not be nil"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; exists {
		return fmt.Errorf("agent %q already registered", id)
	}
	r.byID[id] = ctor
	return nil
}

// Resolve returns the constructor for id, or an error wrapping
// api.ErrAgentNotFound.
func (r *Registry) Resolve(id string) (api.AgentConstructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctor, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrAgentNotFound, id)
	}
	return ctor, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// IDs returns all registered agent ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
