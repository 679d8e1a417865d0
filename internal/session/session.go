// Package session manages the authenticated OneDrive session shared by all
// request handlers: the immutable Session value, the atomically published
// Registry, the Provider that hands tokens to the API client, and the
// Scheduler that refreshes the session in the background before it expires.
package session

import (
	"errors"
	"time"
)

// ErrNotReady is returned when the session is consulted before the first
// login has published one. Callers surface it as "try again shortly",
// distinct from genuine upstream failures.
var ErrNotReady = errors.New("session: not ready, no session published yet")

// Session is the bundle of credentials currently authorized to call the
// upstream API. It is immutable once constructed: a refresh produces a
// brand-new value, never an in-place mutation.
type Session struct {
	AccessToken  string
	RefreshToken string // empty when the provider did not issue one
	ExpiresAt    time.Time
}

// Expired reports whether the session is past its expiry at instant now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// TTL returns the time remaining until expiry at instant now. It is
// negative for an already-expired session.
func (s *Session) TTL(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}
