// Package freshness decides whether a new environmental fetch is allowed for
// a project given the time of its last snapshot.
package freshness

import (
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"resilience/internal/types"
)

// DefaultCooldown is the minimum interval between fetches for one project.
const DefaultCooldown = 10 * time.Minute

// Decision is the outcome of one gate check. Elapsed and RetryAfter are zero
// when there was no prior fetch.
type Decision struct {
	Allowed    bool
	Elapsed    time.Duration
	Cooldown   time.Duration
	RetryAfter time.Duration
}

// CanFetchNow is the pure cooldown rule. A nil last means the project has
// never been fetched. The boundary is inclusive: elapsed == cooldown is
// allowed.
func CanFetchNow(last *time.Time, now time.Time, cooldown time.Duration) Decision {
	d := Decision{Allowed: true, Cooldown: cooldown}
	if last == nil {
		return d
	}
	d.Elapsed = now.Sub(*last)
	if d.Elapsed >= cooldown {
		return d
	}
	d.Allowed = false
	d.RetryAfter = cooldown - d.Elapsed
	return d
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for the
// Retry-After header.
func (d Decision) RetryAfterSeconds() int {
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Err returns nil when the fetch is allowed, otherwise a rate-limit AppError
// carrying enough detail for the caller to schedule a retry.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return types.NewAppErrorWithDetails(types.ErrCodeRateLimit,
		"snapshot was fetched recently; wait for the cooldown to elapse", nil,
		map[string]any{
			"elapsed_seconds":     int(d.Elapsed.Seconds()),
			"cooldown_seconds":    int(d.Cooldown.Seconds()),
			"retry_after_seconds": d.RetryAfterSeconds(),
		})
}

// Gate binds the cooldown rule to a clock and a configured cooldown. The
// check is advisory: two near-simultaneous callers may both pass.
type Gate struct {
	clock    clockwork.Clock
	cooldown time.Duration
}

// NewGate builds a Gate. A nil clock uses the real clock and a non-positive
// cooldown uses DefaultCooldown.
func NewGate(clock clockwork.Clock, cooldown time.Duration) *Gate {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Gate{clock: clock, cooldown: cooldown}
}

// Cooldown returns the configured interval.
func (g *Gate) Cooldown() time.Duration { return g.cooldown }

// Check evaluates the rule against the current time.
func (g *Gate) Check(last *time.Time) Decision {
	return CanFetchNow(last, g.clock.Now(), g.cooldown)
}
