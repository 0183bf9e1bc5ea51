package counter

import (
	"context"
	"sync"
	"time"
)

// Store persists fixed-window counters keyed by (key, kind).
type Store interface {
	// Incr atomically starts a new window (count=1) when windowStart differs
	// from the stored window, or increments the stored count otherwise, and
	// returns the resulting count. It must be a single atomic upsert so
	// concurrent increments never lose updates.
	Incr(ctx context.Context, key, kind string, windowStart time.Time, expiresAt time.Time) (int, error)
}

// InMemoryStore keeps counters in memory for tests and local development.
type InMemoryStore struct {
	mu       sync.Mutex
	counters map[string]*window
}

type window struct {
	start     time.Time
	count     int
	expiresAt time.Time
}

// NewMemory constructs an empty in-memory counter store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{counters: make(map[string]*window)}
}

func (s *InMemoryStore) Incr(_ context.Context, key, kind string, windowStart, expiresAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := kind + ":" + key
	w, ok := s.counters[k]
	if !ok || !w.start.Equal(windowStart) {
		s.counters[k] = &window{start: windowStart, count: 1, expiresAt: expiresAt}
		return 1, nil
	}
	w.count++
	w.expiresAt = expiresAt
	return w.count, nil
}

// DeleteExpired removes counters whose retention expiry has passed.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for k, w := range s.counters {
		if now.After(w.expiresAt) {
			delete(s.counters, k)
			deleted++
		}
	}
	return deleted, nil
}
