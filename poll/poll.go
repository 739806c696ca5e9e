// Package poll implements the background polling orchestrator: the single
// entry point the host scheduler invokes, plus the diagnostics and manual
// trigger surface the operator screen uses.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"campus-notifier/classify"
	"campus-notifier/fetch"
	"campus-notifier/pkg/notifier"
	"campus-notifier/policy"

	"github.com/google/uuid"
)

// Fetcher interface for the conditional feed read.
type Fetcher interface {
	Fetch(ctx context.Context, lastSeenAt *time.Time, token string) ([]notifier.Article, error)
}

// Store interface for durable state and the outcome log.
type Store interface {
	State(ctx context.Context) (notifier.PollState, error)
	SaveState(ctx context.Context, state notifier.PollState) error
	AppendOutcome(ctx context.Context, outcome notifier.PollOutcome) error
	Outcomes(ctx context.Context, limit int) ([]notifier.PollOutcome, error)
	ClearOutcomes(ctx context.Context) error
}

// Dispatcher interface for notification delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, items []notifier.CandidateItem)
	NotifySessionExpired(ctx context.Context)
	SendTest(ctx context.Context)
}

// CredentialStore interface for reading and purging the access credential.
type CredentialStore interface {
	AccessToken(ctx context.Context) (string, error)
	ClearAll(ctx context.Context) error
}

// Registrar manages the engine's registration with the host scheduler.
type Registrar interface {
	Register() error
	Unregister()
	Registered() bool
}

// Engine sequences one poll attempt: policy guards, fetch, classification,
// dispatch, state commit, outcome record. It holds no in-memory poll state
// between invocations; everything is reconstructed from the Store.
type Engine struct {
	fetcher    Fetcher
	store      Store
	dispatcher Dispatcher
	creds      CredentialStore
	registrar  Registrar
	policy     policy.Policy
	logger     *slog.Logger
	now        func() time.Time
	supported  bool
}

// Config holds engine dependencies.
type Config struct {
	Fetcher    Fetcher
	Store      Store
	Dispatcher Dispatcher
	Creds      CredentialStore
	Registrar  Registrar
	Policy     policy.Policy
	Logger     *slog.Logger
	// Now overrides the clock for tests; nil means time.Now.
	Now func() time.Time
	// Supported is false when the environment cannot host background
	// notifications; the engine then short-circuits every attempt.
	Supported bool
}

// New creates a poll engine.
func New(cfg *Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		fetcher:    cfg.Fetcher,
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		creds:      cfg.Creds,
		registrar:  cfg.Registrar,
		policy:     cfg.Policy,
		logger:     cfg.Logger,
		now:        now,
		supported:  cfg.Supported,
	}
}

// Run executes one poll attempt. Exactly one outcome is appended per call,
// whichever branch is taken, and nothing escapes to the host scheduler: an
// unexpected panic resolves to ResultFailed with an exception outcome.
func (e *Engine) Run(ctx context.Context) notifier.Result {
	now := e.now()

	if !e.supported {
		e.record(ctx, now, notifier.StatusUnsupported, "background notifications unavailable in this environment", 0)
		return notifier.ResultNoData
	}

	state, err := e.store.State(ctx)
	if err != nil {
		// Transiently unavailable store reads as not-yet-initialized.
		e.logger.Warn("State read failed, assuming uninitialized", "error", err)
		state = notifier.PollState{}
	}

	if !state.Enabled {
		e.record(ctx, now, notifier.StatusDisabled, "notifications disabled by user", 0)
		return notifier.ResultNoData
	}
	if !policy.IsWithinWindow(now) {
		e.record(ctx, now, notifier.StatusOutOfWindow, fmt.Sprintf("local hour %d outside window", now.Hour()), 0)
		return notifier.ResultNoData
	}
	if policy.IsRateLimited(now, state.NextAllowedAt) {
		e.record(ctx, now, notifier.StatusRateLimited,
			fmt.Sprintf("next poll allowed at %s", state.NextAllowedAt.Format(time.RFC3339)), 0)
		return notifier.ResultNoData
	}

	status, detail, count, result := e.guardedPoll(ctx, now, state)
	e.record(ctx, now, status, detail, count)

	e.logger.Info("Poll attempt completed",
		"status", string(status),
		"result", result.String(),
		"count", count)
	return result
}

// guardedPoll runs the fetch pipeline behind the outermost exception
// boundary of the engine.
func (e *Engine) guardedPoll(ctx context.Context, now time.Time, state notifier.PollState) (status notifier.Status, detail string, count int, result notifier.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Poll panicked", "panic", fmt.Sprint(r))
			e.advance(ctx, now, state)
			status = notifier.StatusException
			detail = fmt.Sprint(r)
			count = 0
			result = notifier.ResultFailed
		}
	}()
	return e.doPoll(ctx, now, state)
}

// doPoll is the real fetch -> classify -> dispatch -> commit pipeline. The
// delayed diagnostics test runs this exact code path, so it must stay free
// of guard logic. Every branch that reaches the remote service advances
// NextAllowedAt, success or not, so a flaky feed cannot cause tight retries.
func (e *Engine) doPoll(ctx context.Context, now time.Time, state notifier.PollState) (notifier.Status, string, int, notifier.Result) {
	token, err := e.creds.AccessToken(ctx)
	if err != nil {
		e.logger.Warn("Credential read failed, fetching anonymously", "error", err)
		token = ""
	}

	articles, err := e.fetcher.Fetch(ctx, state.LastSeenAt, token)
	switch {
	case errors.Is(err, fetch.ErrAuthExpired):
		// The one failure the user sees directly.
		e.dispatcher.NotifySessionExpired(ctx)
		if clearErr := e.creds.ClearAll(ctx); clearErr != nil {
			e.logger.Warn("Credential purge failed", "error", clearErr)
		}
		e.advance(ctx, now, state)
		return notifier.StatusAuthExpired, "access credential rejected", 0, notifier.ResultFailed
	case errors.Is(err, fetch.ErrNotModified):
		e.advance(ctx, now, state)
		return notifier.StatusNotModified, "feed unchanged since last fetch", 0, notifier.ResultNoData
	case err != nil:
		e.advance(ctx, now, state)
		if code, ok := fetch.IsHTTPStatusError(err); ok {
			return notifier.StatusHTTPError, fmt.Sprintf("HTTP %d", code), 0, notifier.ResultFailed
		}
		return notifier.StatusHTTPError, err.Error(), 0, notifier.ResultFailed
	}

	if len(articles) == 0 {
		e.advance(ctx, now, state)
		return notifier.StatusNoArticles, "feed returned an empty list", 0, notifier.ResultNoData
	}

	items := classify.Normalize(articles)
	fresh, highWater := classify.NewSince(items, state.LastSeenAt)
	if len(fresh) == 0 {
		e.advance(ctx, now, state)
		return notifier.StatusNoNewItems, fmt.Sprintf("%d fetched, none newer than high-water mark", len(articles)), 0, notifier.ResultNoData
	}

	// Fire and forget: the dispatcher logs its own failures.
	e.dispatcher.Dispatch(ctx, fresh)

	state.LastSeenAt = &highWater
	e.advance(ctx, now, state)
	return notifier.StatusNewArticles, fmt.Sprintf("%d new announcements", len(fresh)), len(fresh), notifier.ResultNewData
}

// advance stamps the minimum-spacing rule onto the state and persists the
// whole record. Written after the fetch completes; a crash mid-fetch may
// therefore permit one earlier-than-intended retry, which is accepted over
// a speculative write before every attempt.
func (e *Engine) advance(ctx context.Context, now time.Time, state notifier.PollState) {
	next := e.policy.NextAllowed(now)
	state.NextAllowedAt = &next
	if err := e.store.SaveState(ctx, state); err != nil {
		e.logger.Warn("State save failed", "error", err)
	}
}

// record appends the invocation's single outcome entry. A failed log write
// is logged but never fails the poll.
func (e *Engine) record(ctx context.Context, at time.Time, status notifier.Status, detail string, count int) {
	outcome := notifier.PollOutcome{
		ID:     uuid.NewString(),
		At:     at,
		Status: status,
		Detail: detail,
		Count:  count,
	}
	if err := e.store.AppendOutcome(ctx, outcome); err != nil {
		e.logger.Warn("Outcome log write failed", "status", string(status), "error", err)
	}
}
