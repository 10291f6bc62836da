// Package session implements the process-wide session registry (C5):
// per-session cancellation tokens and degradation flags, guarded by a
// single mutex as the design notes direct.
package session

import (
	"sync"
	"time"
)

// entry holds the mutable state for one research session. Both transitions
// are monotonic: cancelled only ever goes false->true, degraded only ever
// goes false->true.
type entry struct {
	cancelled bool
	degraded  bool
	createdAt time.Time
}

// Registry is the single source of truth for session lifecycle state. No
// node or component may hold a local copy of cancellation or degradation
// state; they must consult the registry at every suspension point.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry constructs an empty, ready-to-use registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Create registers a new session, resetting any stale cancellation or
// degradation state left behind by a reused session id.
func (r *Registry) Create(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[sessionID] = &entry{createdAt: time.Now()}
}

// SetCancelled marks a session cancelled. Idempotent: calling it twice, or
// on an unknown session id, is a no-op.
func (r *Registry) SetCancelled(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[sessionID]; ok {
		e.cancelled = true
	}
}

// IsCancelled reports whether the session has been cancelled. An unknown
// session id is treated as cancelled so that stray goroutines referencing a
// cleaned-up session stop promptly.
func (r *Registry) IsCancelled(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok {
		return true
	}
	return e.cancelled
}

// SetDegraded flips the session's degradation flag. Once degraded, every
// subsequent LLM call in the session skips the primary model.
func (r *Registry) SetDegraded(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[sessionID]; ok {
		e.degraded = true
	}
}

// IsDegraded reports the session's current degradation state.
func (r *Registry) IsDegraded(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok {
		return false
	}
	return e.degraded
}

// Cleanup removes the session entry. Called once the graph run terminates,
// regardless of outcome (success, error, or cancellation).
func (r *Registry) Cleanup(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, sessionID)
}
