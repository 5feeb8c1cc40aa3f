package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Tier names in precedence order; the cheapest/strictest check runs first.
const (
	TierBurst      = "burst"
	TierLargeFile  = "large_file"
	TierSuspicious = "suspicious"
	TierGeneral    = "general"
	TierPerUser    = "per_user"
)

// TierConfig bounds one sliding-window counter. MaxSizeBytes of zero
// means the tier limits count only.
type TierConfig struct {
	Window       time.Duration
	MaxUploads   int
	MaxSizeBytes int64
}

// Config carries every tier plus housekeeping knobs.
type Config struct {
	Burst              TierConfig
	LargeFile          TierConfig
	Suspicious         TierConfig
	General            TierConfig
	PerUser            TierConfig
	LargeFileThreshold int64
	SuspiciousFor      time.Duration
	CleanupInterval    time.Duration
}

// DefaultConfig returns the production tier limits.
func DefaultConfig() Config {
	return Config{
		Burst:              TierConfig{Window: time.Minute, MaxUploads: 10},
		LargeFile:          TierConfig{Window: 30 * time.Minute, MaxUploads: 5},
		Suspicious:         TierConfig{Window: 5 * time.Minute, MaxUploads: 5, MaxSizeBytes: 50 * 1024 * 1024},
		General:            TierConfig{Window: 15 * time.Minute, MaxUploads: 50, MaxSizeBytes: 500 * 1024 * 1024},
		PerUser:            TierConfig{Window: time.Hour, MaxUploads: 100, MaxSizeBytes: 1024 * 1024 * 1024},
		LargeFileThreshold: 10 * 1024 * 1024,
		SuspiciousFor:      time.Hour,
		CleanupInterval:    10 * time.Minute,
	}
}

// Request describes one inbound upload before any content is read.
type Request struct {
	IP     string
	UserID string
	Size   int64
}

// Decision is the limiter verdict. On rejection RetryAfter approximates
// the remaining window so callers can surface a Retry-After header.
type Decision struct {
	Allowed    bool
	Tier       string
	RetryAfter time.Duration
	Limit      int
	Remaining  int
	ResetAt    time.Time
}

// Limiter gates uploads through multiple independent sliding-window
// counters. Check-then-record for one identity is atomic from the
// caller's view: a denial records into no tier.
type Limiter struct {
	cfg    Config
	store  Store
	logger *zap.Logger

	keyLocks sync.Map // identity -> *sync.Mutex

	suspiciousMu sync.RWMutex
	suspicious   map[string]time.Time

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewLimiter builds a limiter over the given backing store.
func NewLimiter(cfg Config, store Store, logger *zap.Logger) *Limiter {
	defaults := DefaultConfig()
	if cfg.Burst.Window <= 0 {
		cfg.Burst = defaults.Burst
	}
	if cfg.LargeFile.Window <= 0 {
		cfg.LargeFile = defaults.LargeFile
	}
	if cfg.Suspicious.Window <= 0 {
		cfg.Suspicious = defaults.Suspicious
	}
	if cfg.General.Window <= 0 {
		cfg.General = defaults.General
	}
	if cfg.PerUser.Window <= 0 {
		cfg.PerUser = defaults.PerUser
	}
	if cfg.LargeFileThreshold <= 0 {
		cfg.LargeFileThreshold = defaults.LargeFileThreshold
	}
	if cfg.SuspiciousFor <= 0 {
		cfg.SuspiciousFor = defaults.SuspiciousFor
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaults.CleanupInterval
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		cfg:        cfg,
		store:      store,
		logger:     logger,
		suspicious: make(map[string]time.Time),
	}
}

// tierCheck binds a tier to its key and whether the accepted upload is
// recorded into it.
type tierCheck struct {
	name   string
	cfg    TierConfig
	key    string
	record bool
}

// Allow evaluates every applicable tier in precedence order and, only if
// all pass, records the upload into each recordable tier. Two concurrent
// requests from one identity serialize on a per-identity lock so neither
// observes pre-update counters.
func (l *Limiter) Allow(ctx context.Context, req Request) (Decision, error) {
	identity := req.UserID
	if identity == "" {
		identity = req.IP
	}

	// Both the IP-keyed and identity-keyed tiers must see a consistent
	// view; locks are taken in sorted order so concurrent requests that
	// share either key cannot deadlock or double-allow.
	unlock := l.lockKeys(req.IP, identity)
	defer unlock()

	now := time.Now()
	checks := l.tierChecks(req, identity, now)

	// Pass 1: every tier must allow before anything is recorded.
	entries := make([]Entry, len(checks))
	exists := make([]bool, len(checks))
	for i, check := range checks {
		entry, ok, err := l.store.Get(ctx, check.key)
		if err != nil {
			return Decision{}, fmt.Errorf("rate limit lookup %s: %w", check.key, err)
		}
		if ok && now.Sub(entry.FirstRequestAt) >= check.cfg.Window {
			// Window lapsed: treat as absent so a fresh window starts.
			ok = false
		}
		entries[i], exists[i] = entry, ok
		if !ok {
			continue
		}
		overCount := entry.Count+1 > check.cfg.MaxUploads
		overSize := check.cfg.MaxSizeBytes > 0 && entry.TotalSizeBytes+req.Size > check.cfg.MaxSizeBytes
		if overCount || overSize {
			resetAt := entry.FirstRequestAt.Add(check.cfg.Window)
			retry := time.Until(resetAt)
			if retry < time.Second {
				retry = time.Second
			}
			remaining := check.cfg.MaxUploads - entry.Count
			if remaining < 0 {
				remaining = 0
			}
			l.logger.Info("upload rate limited",
				zap.String("tier", check.name),
				zap.String("identity", identity),
				zap.Duration("retry_after", retry))
			return Decision{
				Allowed:    false,
				Tier:       check.name,
				RetryAfter: retry,
				Limit:      check.cfg.MaxUploads,
				Remaining:  remaining,
				ResetAt:    resetAt,
			}, nil
		}
	}

	// Pass 2: record the accepted upload into every recordable tier.
	for i, check := range checks {
		if !check.record {
			continue
		}
		entry := entries[i]
		if !exists[i] {
			entry = Entry{FirstRequestAt: now}
		}
		entry.Count++
		entry.TotalSizeBytes += req.Size
		entry.LastRequestAt = now
		ttl := check.cfg.Window - now.Sub(entry.FirstRequestAt)
		if ttl <= 0 {
			ttl = check.cfg.Window
		}
		if err := l.store.Put(ctx, check.key, entry, ttl); err != nil {
			return Decision{}, fmt.Errorf("rate limit record %s: %w", check.key, err)
		}
	}

	generalRemaining := l.cfg.General.MaxUploads
	if entry, ok, err := l.store.Get(ctx, tierKey(TierGeneral, req.IP)); err == nil && ok {
		generalRemaining = l.cfg.General.MaxUploads - entry.Count
		if generalRemaining < 0 {
			generalRemaining = 0
		}
	}

	return Decision{
		Allowed:   true,
		Limit:     l.cfg.General.MaxUploads,
		Remaining: generalRemaining,
		ResetAt:   now.Add(l.cfg.General.Window),
	}, nil
}

func (l *Limiter) tierChecks(req Request, identity string, now time.Time) []tierCheck {
	checks := []tierCheck{
		{name: TierBurst, cfg: l.cfg.Burst, key: tierKey(TierBurst, req.IP), record: true},
	}
	if req.Size > l.cfg.LargeFileThreshold {
		checks = append(checks, tierCheck{name: TierLargeFile, cfg: l.cfg.LargeFile, key: tierKey(TierLargeFile, identity), record: true})
	}
	if l.isSuspicious(identity, now) {
		checks = append(checks, tierCheck{name: TierSuspicious, cfg: l.cfg.Suspicious, key: tierKey(TierSuspicious, identity), record: true})
	}
	checks = append(checks, tierCheck{name: TierGeneral, cfg: l.cfg.General, key: tierKey(TierGeneral, req.IP), record: true})
	if req.UserID != "" {
		checks = append(checks, tierCheck{name: TierPerUser, cfg: l.cfg.PerUser, key: tierKey(TierPerUser, req.UserID), record: true})
	}
	return checks
}

// MarkSuspicious applies the stricter suspicious tier to an identity for
// the configured duration, after which the mark auto-clears.
func (l *Limiter) MarkSuspicious(identity string) {
	l.suspiciousMu.Lock()
	defer l.suspiciousMu.Unlock()
	l.suspicious[identity] = time.Now().Add(l.cfg.SuspiciousFor)
	l.logger.Warn("identity marked suspicious", zap.String("identity", identity))
}

// IsSuspicious reports whether the identity currently carries the mark.
func (l *Limiter) IsSuspicious(identity string) bool {
	return l.isSuspicious(identity, time.Now())
}

func (l *Limiter) isSuspicious(identity string, now time.Time) bool {
	l.suspiciousMu.RLock()
	until, ok := l.suspicious[identity]
	l.suspiciousMu.RUnlock()
	return ok && now.Before(until)
}

// Start launches the periodic cleanup sweep.
func (l *Limiter) Start(ctx context.Context) {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	if l.started {
		return
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.started = true
	l.wg.Add(1)
	go l.cleanupLoop(sweepCtx)
}

// Stop cancels the cleanup sweep and waits for it to exit.
func (l *Limiter) Stop() {
	l.lifecycleMu.Lock()
	if !l.started {
		l.lifecycleMu.Unlock()
		return
	}
	l.cancel()
	l.started = false
	l.lifecycleMu.Unlock()
	l.wg.Wait()
}

// Cleanup evicts lapsed entries and expired suspicious marks.
func (l *Limiter) Cleanup(ctx context.Context) {
	now := time.Now()
	if removed, err := l.store.Expire(ctx, now); err != nil {
		l.logger.Warn("rate limit cleanup failed", zap.Error(err))
	} else if removed > 0 {
		l.logger.Debug("rate limit cleanup evicted entries", zap.Int("count", removed))
	}

	l.suspiciousMu.Lock()
	for identity, until := range l.suspicious {
		if now.After(until) {
			delete(l.suspicious, identity)
		}
	}
	l.suspiciousMu.Unlock()
}

func (l *Limiter) cleanupLoop(ctx context.Context) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup(ctx)
		}
	}
}

func (l *Limiter) lockKeys(a, b string) func() {
	if a == b {
		lock := l.lockFor(a)
		lock.Lock()
		return lock.Unlock
	}
	if a > b {
		a, b = b, a
	}
	first, second := l.lockFor(a), l.lockFor(b)
	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}

func (l *Limiter) lockFor(identity string) *sync.Mutex {
	actual, _ := l.keyLocks.LoadOrStore(identity, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

func tierKey(tier, identity string) string {
	return tier + ":" + identity
}
