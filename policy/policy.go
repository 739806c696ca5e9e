// Package policy decides whether a poll may proceed right now and when the
// next one is allowed. Pure functions of the clock and durable state.
package policy

import (
	"fmt"
	"math/rand"
	"time"
)

// WindowStartHour is the first local hour of the daily polling window.
// Polling is permitted while the local hour is in [WindowStartHour, 24).
const WindowStartHour = 8

// Rate policies. Standard keeps notifications fresh; Coarse trades latency
// for battery and network load.
const (
	// PolicyStandard spaces polls 30 minutes apart with a symmetric
	// 15-minute jitter, for an effective spacing of 15-45 minutes.
	PolicyStandard = "standard"
	// PolicyCoarse spaces polls 2 hours apart with a one-sided
	// 0-15 minute jitter.
	PolicyCoarse = "coarse"
)

const (
	standardBase   = 30 * time.Minute
	standardJitter = 15 * time.Minute
	coarseBase     = 2 * time.Hour
	coarseJitter   = 15 * time.Minute
)

// Policy computes the next allowed poll time for a named rate policy.
// The zero value is not usable; construct with New.
type Policy struct {
	rng  *rand.Rand
	name string
}

// New returns the policy with the given name. Unknown names fall back to
// PolicyStandard. A nil rng seeds from the clock; tests pass a fixed seed.
func New(name string, rng *rand.Rand) Policy {
	if name != PolicyCoarse {
		name = PolicyStandard
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return Policy{name: name, rng: rng}
}

// Name returns the policy's canonical name.
func (p Policy) Name() string { return p.name }

// NextAllowed returns the earliest time a future poll may proceed, given an
// attempt at now. Jitter prevents phase-locking with other periodic work.
func (p Policy) NextAllowed(now time.Time) time.Time {
	if p.name == PolicyCoarse {
		// One-sided jitter: [base, base+jitter).
		return now.Add(coarseBase + time.Duration(p.rng.Int63n(int64(coarseJitter))))
	}
	// Symmetric jitter: [base-jitter, base+jitter).
	offset := time.Duration(p.rng.Int63n(int64(2*standardJitter))) - standardJitter
	return now.Add(standardBase + offset)
}

// String describes the policy's spacing for diagnostics.
func (p Policy) String() string {
	if p.name == PolicyCoarse {
		return fmt.Sprintf("%s (base %s, jitter +%s)", p.name, coarseBase, coarseJitter)
	}
	return fmt.Sprintf("%s (base %s, jitter ±%s)", p.name, standardBase, standardJitter)
}

// IsWithinWindow reports whether now falls inside the daily polling window.
// The window is evaluated in now's location, so the caller controls the
// local timezone.
func IsWithinWindow(now time.Time) bool {
	return now.Hour() >= WindowStartHour
}

// IsRateLimited reports whether the minimum-spacing rule blocks a poll at
// now. A nil nextAllowedAt means no restriction has been recorded yet.
func IsRateLimited(now time.Time, nextAllowedAt *time.Time) bool {
	return nextAllowedAt != nil && now.Before(*nextAllowedAt)
}
