package protocol

import (
	"sort"
	"sync"

	"github.com/adgentic/agentcomm/core"
)

// registry maps agent IDs to their Receiver handles. It is safe for
// concurrent access. Duplicate registration is rejected rather than replaced:
// silently swapping a handle would orphan the previous handle's in-flight
// messages.
type registry struct {
	mu     sync.RWMutex
	agents map[string]core.Receiver
}

func newRegistry() *registry {
	return &registry{agents: make(map[string]core.Receiver)}
}

func (r *registry) register(id string, handle core.Receiver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[id]; exists {
		return &core.DuplicateAgentError{AgentID: id}
	}
	r.agents[id] = handle
	return nil
}

// unregister is idempotent; removing an absent agent is not an error. It
// reports whether an agent was actually removed.
func (r *registry) unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[id]; !exists {
		return false
	}
	delete(r.agents, id)
	return true
}

func (r *registry) resolve(id string) (core.Receiver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.agents[id]
	if !ok {
		return nil, &core.UnknownAgentError{AgentID: id}
	}
	return handle, nil
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// ids returns the registered agent IDs in stable sorted order.
func (r *registry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for id := range r.agents {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
