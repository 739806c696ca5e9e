// Package notifier contains the core domain types for the campus announcement
// notification service.
package notifier

import "time"

// Status is the terminal status of a single poll attempt.
type Status string

// Poll attempt statuses, one per branch the orchestrator can take.
const (
	StatusUnsupported          Status = "unsupported"
	StatusDisabled             Status = "disabled"
	StatusOutOfWindow          Status = "out_of_window"
	StatusRateLimited          Status = "rate_limited"
	StatusAuthExpired          Status = "auth_expired"
	StatusNotModified          Status = "not_modified"
	StatusHTTPError            Status = "http_error"
	StatusNoArticles           Status = "no_articles"
	StatusNoNewItems           Status = "no_new_items"
	StatusNewArticles          Status = "new_articles"
	StatusException            Status = "exception"
	StatusManualTest           Status = "manual_test"
	StatusManualTestBlocked    Status = "manual_test_blocked"
	StatusDelayedTestScheduled Status = "delayed_test_scheduled"
	StatusDelayedTestResult    Status = "delayed_test_result"
	StatusDelayedTestFailed    Status = "delayed_test_failed"
)

// Result is the tri-state value returned to the host scheduler.
type Result int

const (
	// ResultNoData means the poll ran (or was skipped by policy) and found nothing new.
	ResultNoData Result = iota
	// ResultNewData means new announcements were surfaced as notifications.
	ResultNewData
	// ResultFailed means the attempt failed; the host may apply its own backoff.
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultNewData:
		return "new_data"
	case ResultFailed:
		return "failed"
	default:
		return "no_data"
	}
}

// PollState is the durable state the engine reconstructs on every wake-up.
// A nil LastSeenAt means no item was ever classified; a nil NextAllowedAt
// means no spacing restriction has been recorded yet.
type PollState struct {
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
	NextAllowedAt *time.Time `json:"next_allowed_at,omitempty"`
	Enabled       bool       `json:"enabled"`
}

// PollOutcome is one append-only log entry describing a poll attempt.
type PollOutcome struct {
	At     time.Time `json:"at"`
	ID     string    `json:"id"`
	Status Status    `json:"status"`
	Detail string    `json:"detail,omitempty"`
	Count  int       `json:"count,omitempty"`
}

// Article is a raw entry from the remote announcement feed.
type Article struct {
	ID          int64  `json:"id,omitempty"`
	Title       string `json:"title,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Link        string `json:"link,omitempty"`
	PublishedOn string `json:"published_on,omitempty"`
	Summary     string `json:"summary,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// CandidateItem is a normalized feed entry ready for classification.
type CandidateItem struct {
	CreatedAt   time.Time
	SummaryText string
}

// Diagnostics is a read-only snapshot of the engine's current state.
type Diagnostics struct {
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
	NextAllowedAt *time.Time `json:"next_allowed_at,omitempty"`
	Policy        string     `json:"policy"`
	Enabled       bool       `json:"enabled"`
	Registered    bool       `json:"registered"`
	InWindow      bool       `json:"in_window"`
	Supported     bool       `json:"supported"`
}
