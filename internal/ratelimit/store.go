package ratelimit

import (
	"context"
	"time"
)

// Entry is one identity's running counters inside a tier window. Count
// and TotalSizeBytes only accumulate requests whose timestamp falls in
// [FirstRequestAt, FirstRequestAt+window).
type Entry struct {
	Count          int       `json:"count"`
	TotalSizeBytes int64     `json:"totalSizeBytes"`
	FirstRequestAt time.Time `json:"firstRequestAt"`
	LastRequestAt  time.Time `json:"lastRequestAt"`
}

// Store persists limiter entries keyed by (tier, identity). The interface
// is deliberately narrow so the in-memory map can be swapped for a shared
// store (Redis) without changing limiter call sites.
type Store interface {
	// Get returns the entry for key and whether one exists.
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Put stores the entry with a time-to-live covering its window.
	Put(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	// Delete removes the entry if present.
	Delete(ctx context.Context, key string) error
	// Expire removes entries whose window lapsed before the cutoff.
	// Stores with native TTL support may treat this as a no-op.
	Expire(ctx context.Context, cutoff time.Time) (int, error)
}
