package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryStore keeps limiter entries in an in-process map. Suitable for a
// single-process deployment; multi-process deployments should use the
// Redis store so all replicas observe the same counters.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.entries[key]
	if !ok || time.Now().After(stored.expiresAt) {
		return Entry{}, false, nil
	}
	return stored.entry, true, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{entry: entry, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Expire evicts lapsed entries, bounding memory growth between requests.
func (s *MemoryStore) Expire(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, stored := range s.entries {
		if stored.expiresAt.Before(cutoff) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len reports the live entry count.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
