package poll

import (
	"context"
	"fmt"
	"time"

	"campus-notifier/pkg/notifier"
	"campus-notifier/policy"
)

// DefaultTestDelay is the delayed diagnostics test's wait when the caller
// does not supply one.
const DefaultTestDelay = 10 * time.Second

// SetEnabled flips the user-facing notification switch. Enabling registers
// the engine with the host scheduler and marks state enabled; disabling
// unregisters and resets the whole poll state so a later re-enable starts
// from a clean first run.
func (e *Engine) SetEnabled(ctx context.Context, enabled bool) error {
	if enabled {
		if err := e.store.SaveState(ctx, notifier.PollState{Enabled: true}); err != nil {
			return fmt.Errorf("enable poll state: %w", err)
		}
		if err := e.registrar.Register(); err != nil {
			return fmt.Errorf("register with scheduler: %w", err)
		}
		e.logger.Info("Background polling enabled")
		return nil
	}

	e.registrar.Unregister()
	if err := e.store.SaveState(ctx, notifier.PollState{}); err != nil {
		return fmt.Errorf("disable poll state: %w", err)
	}
	e.logger.Info("Background polling disabled, state reset")
	return nil
}

// Diagnostics reports the engine's current view of its own state for the
// operator screen.
func (e *Engine) Diagnostics(ctx context.Context) notifier.Diagnostics {
	now := e.now()
	state, err := e.store.State(ctx)
	if err != nil {
		e.logger.Warn("State read failed for diagnostics", "error", err)
	}
	return notifier.Diagnostics{
		Enabled:       state.Enabled,
		LastSeenAt:    state.LastSeenAt,
		NextAllowedAt: state.NextAllowedAt,
		Registered:    e.registrar.Registered(),
		InWindow:      policy.IsWithinWindow(now),
		Supported:     e.supported,
		Policy:        e.policy.Name(),
	}
}

// Outcomes returns the most recent poll outcomes, newest first.
func (e *Engine) Outcomes(ctx context.Context, limit int) ([]notifier.PollOutcome, error) {
	return e.store.Outcomes(ctx, limit)
}

// ClearOutcomes empties the outcome log.
func (e *Engine) ClearOutcomes(ctx context.Context) error {
	return e.store.ClearOutcomes(ctx)
}

// ManualTest sends an immediate test notification, bypassing the enabled,
// window and rate-limit guards. Only environment support is checked.
func (e *Engine) ManualTest(ctx context.Context) {
	now := e.now()
	if !e.supported {
		e.record(ctx, now, notifier.StatusManualTestBlocked, "background notifications unavailable in this environment", 0)
		return
	}
	e.dispatcher.SendTest(ctx)
	e.record(ctx, now, notifier.StatusManualTest, "immediate test notification sent", 0)
}

// DelayedTest schedules a real poll the given delay from now, reporting the
// remaining wait through onProgress roughly once per second, then runs the
// genuine fetch pipeline with the guards bypassed. A non-positive delay
// falls back to DefaultTestDelay. The inner poll's status is summarized in
// the recorded outcome so the operator screen can show what a real
// scheduled run would have done.
func (e *Engine) DelayedTest(ctx context.Context, delay time.Duration, onProgress func(remaining time.Duration)) {
	if delay <= 0 {
		delay = DefaultTestDelay
	}
	// Outcome writes survive cancellation of the test itself.
	logCtx := context.WithoutCancel(ctx)

	e.record(logCtx, e.now(), notifier.StatusDelayedTestScheduled,
		fmt.Sprintf("real poll in %s", delay), 0)

	if !e.supported {
		e.record(logCtx, e.now(), notifier.StatusDelayedTestFailed, "background notifications unavailable in this environment", 0)
		return
	}

	deadline := e.now().Add(delay)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		remaining := deadline.Sub(e.now())
		if remaining <= 0 {
			break
		}
		if onProgress != nil {
			onProgress(remaining)
		}
		select {
		case <-ctx.Done():
			e.record(logCtx, e.now(), notifier.StatusDelayedTestFailed, "cancelled", 0)
			return
		case <-ticker.C:
		}
	}

	now := e.now()
	state, err := e.store.State(ctx)
	if err != nil {
		e.logger.Warn("State read failed, assuming uninitialized", "error", err)
		state = notifier.PollState{}
	}
	status, detail, count, _ := e.guardedPoll(ctx, now, state)
	e.record(logCtx, now, notifier.StatusDelayedTestResult,
		fmt.Sprintf("%s: %s", status, detail), count)
}
