package tasks

import (
	"sync"

	"taskpilot-backend/internal/retry"
)

// Registry hands out one Store per principal so that every request for the
// same principal mutates through the same owner.
type Registry struct {
	coll Collection
	exec *retry.Executor

	mu     sync.Mutex
	stores map[string]*Store
}

func NewRegistry(coll Collection, exec *retry.Executor) *Registry {
	return &Registry{
		coll:   coll,
		exec:   exec,
		stores: make(map[string]*Store),
	}
}

func (r *Registry) For(principal string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[principal]; ok {
		return s
	}
	s := NewStore(r.coll, r.exec)
	s.Bind(principal)
	r.stores[principal] = s
	return s
}
