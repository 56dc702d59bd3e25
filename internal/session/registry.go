package session

import (
	"sync"
	"time"
)

// Registry maps meeting ids to their live Session. State is in-memory only
// and does not survive a restart.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns the session for id, creating an empty one when none is
// registered. created reports whether this call made it.
func (r *Registry) GetOrCreate(id string) (s *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s, false
	}
	s = newSession(id, r.now())
	r.sessions[id] = s
	return s, true
}

// Acquire attaches a connection to the session for id, creating the session
// when none is registered. Every Acquire must be paired with a Detach.
func (r *Registry) Acquire(id string) (s *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		s = newSession(id, r.now())
		r.sessions[id] = s
		created = true
	}
	s.refs++
	return s, created
}

// Detach releases one connection from s. last reports whether no connection
// is attached any more.
func (r *Registry) Detach(s *Session) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.refs > 0 {
		s.refs--
	}
	return s.refs == 0
}

// Release drops s from the registry if it is still the session registered
// for its meeting and no connection has attached to it since the last Detach.
// It reports whether s was removed.
func (r *Registry) Release(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.refs > 0 {
		return false
	}
	if cur, ok := r.sessions[s.MeetingID]; !ok || cur != s {
		return false
	}
	delete(r.sessions, s.MeetingID)
	return true
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops the session for id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
