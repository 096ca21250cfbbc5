// Package ratelimit tracks the most recent "too many requests" signal seen
// from the mailbox provider. The provider is a shared free service, so one
// job tripping its limit must throttle every other provisioning path in the
// process; a single Governor instance is constructed in main and handed to
// the pipeline and the HTTP layer.
package ratelimit

import (
	"sync"
	"time"
)

type Status struct {
	InCooldown bool          `json:"in_cooldown"`
	Remaining  time.Duration `json:"-"`
}

func (s Status) RemainingSeconds() int {
	if !s.InCooldown {
		return 0
	}
	secs := int((s.Remaining + time.Second - 1) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

type Governor struct {
	mu            sync.Mutex
	lastLimitedAt time.Time
	cooldown      time.Duration
	now           func() time.Time
}

func NewGovernor(cooldown time.Duration) *Governor {
	return NewGovernorWithClock(cooldown, time.Now)
}

// NewGovernorWithClock exists so tests can drive time deterministically.
func NewGovernorWithClock(cooldown time.Duration, now func() time.Time) *Governor {
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &Governor{cooldown: cooldown, now: now}
}

// RecordLimited marks now as the latest rate-limit hit. Last write wins
// under concurrent jobs; a marginally shorter cooldown is acceptable.
func (g *Governor) RecordLimited() {
	g.mu.Lock()
	g.lastLimitedAt = g.now()
	g.mu.Unlock()
}

func (g *Governor) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastLimitedAt.IsZero() {
		return Status{}
	}
	elapsed := g.now().Sub(g.lastLimitedAt)
	if elapsed >= g.cooldown {
		return Status{}
	}
	return Status{InCooldown: true, Remaining: g.cooldown - elapsed}
}
