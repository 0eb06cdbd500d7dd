// ABOUTME: Sliding-window rate limiter keyed by identity and channel
// ABOUTME: Check and record are one critical section so bursts cannot slip through

package secchain

import (
	"sync"
	"time"
)

// RateLimiter enforces per-key request ceilings over a sliding window.
// Safe for concurrent use.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events map[string][]time.Time
}

// NewRateLimiter creates a limiter allowing limit events per key per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		events: make(map[string][]time.Time),
	}
}

// Allow reports whether another event for key fits under the limit, and
// records it if so. A rejected event is not recorded; being throttled must
// not extend the throttle.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	kept := rl.events[key][:0]
	for _, t := range rl.events[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= rl.limit {
		rl.events[key] = kept
		return false
	}
	rl.events[key] = append(kept, now)
	return true
}

// Forget drops the most recently recorded event for key. Callers use it to
// back out an Allow when a later check in the same request fails, so the
// rejected request leaves no footprint in the window.
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if evs := rl.events[key]; len(evs) > 0 {
		rl.events[key] = evs[:len(evs)-1]
	}
}

// Count returns the number of live events for key. Used by tests.
func (rl *RateLimiter) Count(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window)
	n := 0
	for _, t := range rl.events[key] {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
