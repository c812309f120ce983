// Package ratelimit throttles password attempts per user with a token bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultPerMinute = 5
	DefaultBurst     = 3

	idleTTL = 10 * time.Minute
)

// Limiter enforces per-user attempt limits
type Limiter struct {
	mu       sync.Mutex
	limiters map[int64]*limiterEntry
	r        rate.Limit // refill rate (attempts per second)
	burst    int
	now      func() time.Time
	log      *zap.Logger
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a limiter allowing perMinute attempts with the given burst.
// perMinute <= 0 disables limiting.
func New(perMinute, burst int, log *zap.Logger) *Limiter {
	if burst <= 0 {
		burst = DefaultBurst
	}
	r := rate.Limit(0)
	if perMinute > 0 {
		r = rate.Limit(float64(perMinute) / 60.0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Limiter{
		limiters: make(map[int64]*limiterEntry),
		r:        r,
		burst:    burst,
		now:      time.Now,
		log:      log.Named("ratelimit"),
	}
}

// Enabled returns true if the limiter is active
func (l *Limiter) Enabled() bool {
	return l.r > 0
}

// Allow consumes one attempt for user and reports whether it was permitted
func (l *Limiter) Allow(user int64) bool {
	if !l.Enabled() {
		return true
	}

	l.mu.Lock()
	now := l.now()
	entry, ok := l.limiters[user]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.r, l.burst)}
		l.limiters[user] = entry
	}
	entry.lastSeen = now
	allowed := entry.limiter.AllowN(now, 1)
	l.mu.Unlock()

	if !allowed {
		l.log.Warn("attempt rate limited", zap.Int64("user", user))
	}
	return allowed
}

// Reset forgets the history of user, typically after a successful attempt
func (l *Limiter) Reset(user int64) {
	l.mu.Lock()
	delete(l.limiters, user)
	l.mu.Unlock()
}

// Run drops idle entries periodically until ctx is done
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *Limiter) cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-idleTTL)
	removed := 0
	for user, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, user)
			removed++
		}
	}
	return removed
}
