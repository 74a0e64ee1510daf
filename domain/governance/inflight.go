package governance

import (
	"sync"

	"github.com/google/uuid"

	"github.com/concord-kg/concord/domain/proposal"
)

// InFlightRegistry tracks proposals past validation but not yet committed.
// The conflict detector reads it to catch races between concurrent
// proposals before either reaches the store.
type InFlightRegistry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*proposal.Proposal
}

// NewInFlightRegistry creates an empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{entries: make(map[uuid.UUID]*proposal.Proposal)}
}

// Register adds a proposal to the in-flight set.
func (r *InFlightRegistry) Register(p *proposal.Proposal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[p.ID] = p
}

// Unregister removes a proposal from the in-flight set.
func (r *InFlightRegistry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Others returns every in-flight proposal except the given one.
func (r *InFlightRegistry) Others(id uuid.UUID) []*proposal.Proposal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*proposal.Proposal, 0, len(r.entries))
	for _, p := range r.entries {
		if p.ID != id {
			result = append(result, p)
		}
	}
	return result
}

// Count returns the in-flight set size.
func (r *InFlightRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
