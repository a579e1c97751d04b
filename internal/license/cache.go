package license

import (
	"sync"
	"time"
)

// decisionCache holds the most recent decision for a bounded time. Expiry is
// judged against the manager's clock, never the wall clock.
type decisionCache struct {
	mu         sync.RWMutex
	ttl        time.Duration
	decision   Decision
	computedAt time.Time
	valid      bool
	hits       int64
	misses     int64
}

func newDecisionCache(ttl time.Duration) *decisionCache {
	return &decisionCache{ttl: ttl}
}

func (c *decisionCache) get(now time.Time) (Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.valid || c.ttl <= 0 || now.Sub(c.computedAt) >= c.ttl || now.Before(c.computedAt) {
		c.misses++
		return Decision{}, false
	}
	c.hits++
	return c.decision, true
}

func (c *decisionCache) set(d Decision, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decision = d
	c.computedAt = now
	c.valid = true
}

func (c *decisionCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
}

// CacheStats reports decision cache usage.
type CacheStats struct {
	Hits       int64         `json:"hits"`
	Misses     int64         `json:"misses"`
	TTL        time.Duration `json:"ttl"`
	ComputedAt *time.Time    `json:"computed_at,omitempty"`
}

func (c *decisionCache) stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := CacheStats{Hits: c.hits, Misses: c.misses, TTL: c.ttl}
	if c.valid {
		at := c.computedAt
		s.ComputedAt = &at
	}
	return s
}
