// internal/session/registry.go
package session

import (
	"sync"
)

// Registry binds each authenticated username to at most one live connection.
// It has its own lock; binding never needs to be atomic with room changes.
type Registry[C comparable] struct {
	mu       sync.Mutex
	sessions map[string]C
}

// NewRegistry returns an empty Registry.
func NewRegistry[C comparable]() *Registry[C] {
	return &Registry[C]{
		sessions: make(map[string]C),
	}
}

// Bind stores identity -> conn if identity has no session yet. A second
// login never replaces the existing binding.
func (r *Registry[C]) Bind(identity string, conn C) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[identity]; exists {
		return false
	}
	r.sessions[identity] = conn
	return true
}

// Unbind removes identity's session only if it still points at conn. It is a
// no-op for unknown identities.
func (r *Registry[C]) Unbind(identity string, conn C) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, exists := r.sessions[identity]
	if !exists || current != conn {
		return false
	}
	delete(r.sessions, identity)
	return true
}

// Lookup returns the connection bound to identity.
func (r *Registry[C]) Lookup(identity string) (C, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[identity]
	return c, ok
}

// Online returns the number of bound sessions.
func (r *Registry[C]) Online() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
