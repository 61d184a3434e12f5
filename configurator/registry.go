package configurator

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks the open sessions.
type Registry struct {
	engine *Engine

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(engine *Engine) *Registry {
	return &Registry{engine: engine, sessions: make(map[string]*Session)}
}

// Create opens a session with a fresh id. The session's monitor lives until
// Close or Remove, not until ctx is done.
func (r *Registry) Create() *Session {
	s := r.engine.NewSession(context.Background(), uuid.NewString())
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove closes and forgets a session.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

// List returns session snapshots ordered by creation time.
func (r *Registry) List() []State {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	out := make([]State, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.State())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
