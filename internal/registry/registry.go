// Package registry provides the one concrete BackendResolver every
// connection-consuming package declares its own copy of (internal/sync,
// internal/progressqueue, internal/playlist, internal/viewmodel): each
// requires only the single-method Backend(sourceID string) (backend.Backend,
// bool) shape, so one implementation satisfies all four by structural
// typing, grounded on the mutex-guarded map idiom internal/eventbus's Bus
// uses for its subscriber table.
package registry

import (
	"sync"

	"github.com/tomtom215/fedsync/internal/backend"
)

// Registry is a mutex-protected map from catalog.Source.ID to its live
// backend.Backend instance. The connection supervisor's probe loop does not
// reach into it directly; backends are (re)created here whenever a source's
// active connection changes, via Set.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]backend.Backend
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{backends: make(map[string]backend.Backend)}
}

// Backend implements every package's BackendResolver interface.
func (r *Registry) Backend(sourceID string) (backend.Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[sourceID]
	return b, ok
}

// Set installs or replaces the backend serving sourceID. The caller is
// responsible for closing any previous backend it is displacing.
func (r *Registry) Set(sourceID string, b backend.Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[sourceID] = b
}

// Remove drops sourceID's backend without closing it; the caller closes it
// first if that matters.
func (r *Registry) Remove(sourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.backends, sourceID)
}

// CloseAll closes every registered backend, collecting the first error
// encountered while still attempting the rest, for use during shutdown.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for id, b := range r.backends {
		if err := b.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.backends, id)
	}
	return first
}
