// ABOUTME: TTL cache of recently seen message IDs for replay detection
// ABOUTME: Entries expire after the replay window; sweeps happen inline

package secchain

import (
	"sync"
	"time"
)

// seenCache remembers message IDs for one replay window. A second delivery
// of the same ID inside the window is a replay.
type seenCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	// sweepEvery bounds how much garbage accumulates between sweeps.
	sweepEvery int
	sinceSweep int
}

func newSeenCache(ttl time.Duration) *seenCache {
	return &seenCache{
		ttl:        ttl,
		entries:    make(map[string]time.Time),
		sweepEvery: 256,
	}
}

// seen records the ID and reports whether it was already present and
// unexpired. First sighting returns false.
func (c *seenCache) seen(id string) bool {
	if id == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.sinceSweep++
	if c.sinceSweep >= c.sweepEvery {
		c.sinceSweep = 0
		for k, exp := range c.entries {
			if now.After(exp) {
				delete(c.entries, k)
			}
		}
	}

	if exp, ok := c.entries[id]; ok && now.Before(exp) {
		return true
	}
	c.entries[id] = now.Add(c.ttl)
	return false
}
