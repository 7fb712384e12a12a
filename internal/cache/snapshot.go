// Package cache provides a time-based read-through cache for upstream
// catalog payloads. One snapshot is kept per resource kind; a snapshot is
// either absent or holds a complete, previously successful fetch result.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// FetchFunc retrieves a fresh payload from the upstream source.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// Option configures a Store instance.
type Option func(*Store)

// WithClock injects a time source, allowing deterministic expiry in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store holds one TTL-bounded snapshot per resource kind.
//
// Expiry is checked at read time only; a failed refresh never disturbs the
// existing snapshot. Two requests observing expiry concurrently may both
// fetch — the lock is released during the upstream call on purpose, so a slow
// upstream never serializes unrelated requests. Both writers store complete
// payloads, so last-write-wins is harmless for idempotent catalog data.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	snapshots map[string]*snapshot
}

type snapshot struct {
	payload   json.RawMessage
	fetchedAt time.Time
	present   bool
}

// New constructs a Store whose snapshots expire after ttl.
func New(ttl time.Duration, opts ...Option) *Store {
	store := &Store{
		ttl:       ttl,
		now:       time.Now,
		snapshots: make(map[string]*snapshot),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// GetOrRefresh returns the cached payload for kind when it is still fresh,
// otherwise invokes fetch, stores the result, and returns it. A fetch error
// is returned as-is and leaves the snapshot exactly as it was.
func (s *Store) GetOrRefresh(ctx context.Context, kind string, fetch FetchFunc) (json.RawMessage, error) {
	if payload, ok := s.lookup(kind); ok {
		return payload, nil
	}

	payload, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	s.store(kind, payload)
	return payload, nil
}

// Peek reports the cached payload for kind without refreshing, along with
// whether a fresh snapshot exists.
func (s *Store) Peek(kind string) (json.RawMessage, bool) {
	return s.lookup(kind)
}

func (s *Store) lookup(kind string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.snapshots[kind]
	if !ok || !entry.present {
		return nil, false
	}
	if s.now().Sub(entry.fetchedAt) >= s.ttl {
		return nil, false
	}
	return entry.payload, true
}

func (s *Store) store(kind string, payload json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[kind] = &snapshot{
		payload:   payload,
		fetchedAt: s.now(),
		present:   true,
	}
}
