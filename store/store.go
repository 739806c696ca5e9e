// Package store persists poll state and the bounded outcome log.
package store

import (
	"context"
	"time"

	"campus-notifier/pkg/notifier"
)

// MaxOutcomes is the number of outcome log entries retained; appending the
// next one evicts the oldest.
const MaxOutcomes = 50

// Store is the durable state the engine reconstructs on every wake-up.
// Implementations write whole records: no partial-field updates.
type Store interface {
	// State returns the current poll state. A missing record reads as the
	// zero state (disabled, no timestamps).
	State(ctx context.Context) (notifier.PollState, error)
	// SaveState replaces the poll state.
	SaveState(ctx context.Context, state notifier.PollState) error
	// AppendOutcome adds one log entry, evicting the oldest beyond MaxOutcomes.
	AppendOutcome(ctx context.Context, outcome notifier.PollOutcome) error
	// Outcomes returns up to limit entries, most recent first. A limit of 0
	// or less means MaxOutcomes.
	Outcomes(ctx context.Context, limit int) ([]notifier.PollOutcome, error)
	// ClearOutcomes empties the log.
	ClearOutcomes(ctx context.Context) error
	Close() error
}

func millis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}
