package suggest

import (
	"sync"

	"taskpilot-backend/internal/tasks"
)

// Registry keeps one Reconciler per principal for the lifetime of the
// process. Buffers are in-memory only; a restart clears them, which is the
// intended lifecycle for suggestion state.
type Registry struct {
	gen    Generator
	stores *tasks.Registry

	mu          sync.Mutex
	reconcilers map[string]*Reconciler
}

func NewRegistry(gen Generator, stores *tasks.Registry) *Registry {
	return &Registry{
		gen:         gen,
		stores:      stores,
		reconcilers: make(map[string]*Reconciler),
	}
}

func (r *Registry) For(principal string) *Reconciler {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.reconcilers[principal]; ok {
		return rec
	}
	rec := NewReconciler(r.gen, r.stores.For(principal))
	r.reconcilers[principal] = rec
	return rec
}
