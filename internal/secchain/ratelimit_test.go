// ABOUTME: Tests for the sliding-window rate limiter
// ABOUTME: Boundary behavior, key isolation, and window expiry

package secchain

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBoundary(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	assert.True(t, rl.Allow("k"))
	assert.True(t, rl.Allow("k"))
	assert.True(t, rl.Allow("k"))
	assert.False(t, rl.Allow("k"), "fourth request inside the window")

	// A rejected request is not recorded.
	assert.Equal(t, 3, rl.Count("k"))
}

func TestRateLimiterForget(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)

	assert.True(t, rl.Allow("k"))
	assert.True(t, rl.Allow("k"))
	rl.Forget("k")
	assert.Equal(t, 1, rl.Count("k"))
	assert.True(t, rl.Allow("k"), "forgotten slot is free again")

	// Forgetting an empty key is a no-op.
	rl.Forget("missing")
	assert.Equal(t, 0, rl.Count("missing"))
}

func TestRateLimiterKeysIsolated(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "other keys unaffected")
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)

	assert.True(t, rl.Allow("k"))
	assert.False(t, rl.Allow("k"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.Allow("k"), "allowed again after the window slides")
}

func TestRateLimiterConcurrent(t *testing.T) {
	rl := NewRateLimiter(50, time.Minute)

	var wg sync.WaitGroup
	allowed := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- rl.Allow("k")
		}()
	}
	wg.Wait()
	close(allowed)

	n := 0
	for ok := range allowed {
		if ok {
			n++
		}
	}
	assert.Equal(t, 50, n, "exactly the limit passes under contention")
}

func TestSeenCache(t *testing.T) {
	c := newSeenCache(20 * time.Millisecond)

	assert.False(t, c.seen("m1"))
	assert.True(t, c.seen("m1"))
	assert.False(t, c.seen("m2"))

	// Empty IDs are never treated as duplicates.
	assert.False(t, c.seen(""))
	assert.False(t, c.seen(""))

	time.Sleep(30 * time.Millisecond)
	assert.False(t, c.seen("m1"), "expired entries forgotten")
}
