package state

import (
	"context"
	"sync"
)

// Store wraps a State for concurrent use.
type Store struct {
	mu    sync.RWMutex
	state State
}

// NewStore creates a store holding Initial().
func NewStore() *Store {
	return &Store{state: Initial()}
}

// Dispatch applies actions in order under one lock.
func (s *Store) Dispatch(actions ...Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range actions {
		s.state = Reduce(s.state, a)
	}
}

// State returns a snapshot. The question pointer must be treated as read-only.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

type storeCtxKey struct{}

// WithStore stores s in ctx.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeCtxKey{}, s)
}

// FromContext returns the store carried by ctx. It panics when there is
// none: that is a wiring bug, not a runtime condition.
func FromContext(ctx context.Context) *Store {
	s, ok := ctx.Value(storeCtxKey{}).(*Store)
	if !ok || s == nil {
		panic("state: FromContext called on a context without a Store; wrap the handler with the visitor middleware")
	}
	return s
}
