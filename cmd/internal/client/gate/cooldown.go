// Package gate holds small predicates and time gates shared by the client
// tools and the server: a cooldown between repeated actions, user-agent
// based mobile detection, and a combinator that runs a function only when a
// predicate holds.
package gate

import (
	"math"
	"sync"
	"time"
)

// Cooldown allows an action at most once per Interval. The zero value is
// always ready.
type Cooldown struct {
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func NewCooldown(interval time.Duration) *Cooldown {
	return &Cooldown{Interval: interval}
}

// Remaining returns how long until the action is allowed again (0 when ready).
func (c *Cooldown) Remaining(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked(now)
}

// RemainingSeconds rounds Remaining up to whole seconds for display.
func (c *Cooldown) RemainingSeconds(now time.Time) int {
	r := c.Remaining(now)
	if r <= 0 {
		return 0
	}
	return int(math.Ceil(r.Seconds()))
}

func (c *Cooldown) Ready(now time.Time) bool {
	return c.Remaining(now) == 0
}

// Mark records that the action happened at now.
func (c *Cooldown) Mark(now time.Time) {
	c.mu.Lock()
	c.last = now
	c.mu.Unlock()
}

// Try marks and returns true when ready; otherwise it returns false and
// leaves the gate unchanged.
func (c *Cooldown) Try(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remainingLocked(now) > 0 {
		return false
	}
	c.last = now
	return true
}

func (c *Cooldown) remainingLocked(now time.Time) time.Duration {
	if c.last.IsZero() || c.Interval <= 0 {
		return 0
	}
	r := c.last.Add(c.Interval).Sub(now)
	if r < 0 {
		return 0
	}
	return r
}
