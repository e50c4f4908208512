package security

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// defaultMaxLimiterEntries caps the number of identifiers tracked
	// simultaneously so an attacker rotating IPs cannot grow the map
	// without bound.
	defaultMaxLimiterEntries = 10000

	// limiterIdleTTL is how long an identifier may go unused before its
	// limiter is eligible for cleanup.
	limiterIdleTTL = 10 * time.Minute
)

// limiterEntry tracks a token bucket and its last access time.
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter provides per-identifier rate limiting using a token bucket per
// identifier (typically a client IP). Stale entries are cleaned up in the
// background; when the entry cap is reached the stalest entry is evicted.
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*limiterEntry
	rate       rate.Limit
	burst      int
	maxEntries int

	logger          *slog.Logger
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewRateLimiter creates a new rate limiter allowing requestsPerSecond with
// the given burst per identifier, and starts its background cleanup.
func NewRateLimiter(requestsPerSecond float64, burst int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	rl := &RateLimiter{
		limiters:        make(map[string]*limiterEntry),
		rate:            rate.Limit(requestsPerSecond),
		burst:           burst,
		maxEntries:      defaultMaxLimiterEntries,
		logger:          logger,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow reports whether a request from the given identifier is allowed.
func (rl *RateLimiter) Allow(identifier string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, ok := rl.limiters[identifier]; ok {
		entry.lastAccess = now
		return entry.limiter.Allow()
	}

	if len(rl.limiters) >= rl.maxEntries {
		rl.evictStalest()
	}

	entry := &limiterEntry{
		limiter:    rate.NewLimiter(rl.rate, rl.burst),
		lastAccess: now,
	}
	rl.limiters[identifier] = entry

	return entry.limiter.Allow()
}

// ActiveLimiters returns the number of identifiers currently tracked.
func (rl *RateLimiter) ActiveLimiters() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Stop terminates the background cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// evictStalest removes the least recently used entry.
// Must be called with the mutex held.
func (rl *RateLimiter) evictStalest() {
	var stalest string
	var stalestAccess time.Time
	for id, entry := range rl.limiters {
		if stalest == "" || entry.lastAccess.Before(stalestAccess) {
			stalest = id
			stalestAccess = entry.lastAccess
		}
	}
	if stalest != "" {
		delete(rl.limiters, stalest)
		rl.logger.Debug("Evicted rate limiter entry at capacity", "identifier", stalest)
	}
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCleanup:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *RateLimiter) cleanup() {
	threshold := time.Now().Add(-limiterIdleTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cleaned := 0
	for id, entry := range rl.limiters {
		if entry.lastAccess.Before(threshold) {
			delete(rl.limiters, id)
			cleaned++
		}
	}

	if cleaned > 0 {
		rl.logger.Debug("Cleaned up idle rate limiters", "count", cleaned, "remaining", len(rl.limiters))
	}
}
