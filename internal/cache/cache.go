// Package cache implements a fixed-TTL in-memory key/value store used for
// the response cache tiers (download URLs, listings, thumbnails, metadata).
// Expiry is lazy: entries past their TTL are dropped on access. An optional
// background sweep bounds memory for tiers with low read traffic.
package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is the recommended tier TTL. It must stay shorter than the
// lifetime OneDrive issues for pre-authenticated download URLs (about one
// hour) so a cached link is never served after it stops working.
const DefaultTTL = 10 * time.Minute

type entry[V any] struct {
	value      V
	insertedAt time.Time
}

// Store is a TTL-expiring map safe for concurrent use. Concurrent Put calls
// for the same key are last-writer-wins; readers never observe a partially
// written value.
type Store[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration

	// now is called for every insert and lookup. Tests override it to
	// drive expiry deterministically.
	now func() time.Time
}

// New creates a Store with the given TTL. A non-positive TTL falls back to
// DefaultTTL.
func New[K comparable, V any](ttl time.Duration) *Store[K, V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Store[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// TTL returns the fixed tier TTL.
func (s *Store[K, V]) TTL() time.Duration {
	return s.ttl
}

// Get returns the value for key, or false if the key is absent or its entry
// has lived at least one full TTL. Expired entries are removed on access.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}

	if s.expired(e, s.now()) {
		s.mu.Lock()
		// Re-check under the write lock: a concurrent Put may have
		// replaced the entry with a fresh one.
		if cur, still := s.entries[key]; still && s.expired(cur, s.now()) {
			delete(s.entries, key)
		}
		s.mu.Unlock()

		var zero V
		return zero, false
	}

	return e.value, true
}

// Put inserts or overwrites the value for key, resetting its age to zero.
func (s *Store[K, V]) Put(key K, value V) {
	now := s.now()

	s.mu.Lock()
	s.entries[key] = entry[V]{value: value, insertedAt: now}
	s.mu.Unlock()
}

// Len returns the number of stored entries, including ones that have
// expired but not yet been dropped.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Sweep removes every expired entry. Get already refuses expired entries,
// so sweeping only bounds memory.
func (s *Store[K, V]) Sweep() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, key)
		}
	}
}

// RunSweeper sweeps the store on the given interval until ctx is canceled.
func (s *Store[K, V]) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// expired reports whether e has lived a full TTL at instant now.
// An entry is unreadable at exactly insertedAt+TTL, not merely after it.
func (s *Store[K, V]) expired(e entry[V], now time.Time) bool {
	return !now.Before(e.insertedAt.Add(s.ttl))
}
