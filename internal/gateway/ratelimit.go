// ABOUTME: Per-user token bucket rate limiting for the invoke endpoint
// ABOUTME: Keeps one limiter per user id and evicts idle entries periodically

package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// userLimiter applies a token bucket per user id. A nil limiter allows
// everything, so a zero-valued rate limit config simply disables it.
type userLimiter struct {
	limit rate.Limit
	burst int

	mu    sync.Mutex
	byKey map[string]*limiterEntry
	hits  uint64
}

// newUserLimiter creates a per-user limiter; returns nil when rps or burst
// is not positive.
func newUserLimiter(rps float64, burst int) *userLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &userLimiter{
		limit: rate.Limit(rps),
		burst: burst,
		byKey: make(map[string]*limiterEntry),
	}
}

// allow reports whether one token can be consumed for the user at now.
func (l *userLimiter) allow(userID string, now time.Time) bool {
	if l == nil || userID == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[userID]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[userID] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	// Evict idle users every so often so the map tracks active users only
	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-limiterIdleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}

	return allowed
}
