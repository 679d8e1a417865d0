package session

import "sync/atomic"

// Registry holds the current Session behind an atomic pointer. Readers get
// a consistent snapshot without locking against each other or against the
// writer; Publish swaps the whole value as a unit, so no reader ever
// observes a session mixing fields from two publishes.
type Registry struct {
	current atomic.Pointer[Session]
}

// NewRegistry returns an empty Registry. Current returns ErrNotReady until
// the first Publish.
func NewRegistry() *Registry {
	return &Registry{}
}

// Current returns the latest published session, or ErrNotReady if none has
// been published yet. It never blocks.
func (r *Registry) Current() (*Session, error) {
	s := r.current.Load()
	if s == nil {
		return nil, ErrNotReady
	}

	return s, nil
}

// Publish replaces the current session. It never blocks readers.
func (r *Registry) Publish(s *Session) {
	r.current.Store(s)
}
