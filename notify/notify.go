// Package notify delivers local notifications for new announcements through
// a pluggable provider.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"campus-notifier/pkg/notifier"
)

// Delivery channel registered with the platform before dispatching.
// Registration is idempotent; providers must tolerate repeated calls.
const (
	ChannelID         = "campus_announcements"
	ChannelName       = "Campus Announcements"
	ChannelImportance = "high"
)

// Notifications are per-item up to this many new announcements; beyond it a
// single combined notification is sent instead.
const singleItemLimit = 2

// combinedPreviewLines caps the combined notification body.
const combinedPreviewLines = 3

// DefaultTitle is the product label used as the notification title.
const DefaultTitle = "Campus Notices"

const sessionExpiredBody = "Your session has expired. Please sign in again."

const testBody = "Test notification from the diagnostics screen."

// Provider defines the interface for notification delivery implementations.
type Provider interface {
	// EnsureChannel registers the delivery channel. Safe to call every time.
	EnsureChannel(ctx context.Context, id, name, importance string) error
	// Send displays one notification. Best effort; no delivery confirmation.
	Send(ctx context.Context, title, body string) error
}

// Dispatcher applies the batching policy and hands notifications to a
// provider. Failures are logged and swallowed: notification display is a
// best-effort platform service the poll result does not depend on.
type Dispatcher struct {
	provider Provider
	logger   *slog.Logger
	title    string
}

// New creates a dispatcher. An empty title falls back to DefaultTitle.
func New(provider Provider, title string, logger *slog.Logger) *Dispatcher {
	if title == "" {
		title = DefaultTitle
	}
	return &Dispatcher{
		provider: provider,
		title:    title,
		logger:   logger,
	}
}

// Dispatch presents the given new items, which must already be sorted newest
// first. Up to singleItemLimit items get one notification each, dispatched in
// the given order; more than that collapses into a single combined
// notification with a count in the title and the first few summaries in the
// body.
func (d *Dispatcher) Dispatch(ctx context.Context, items []notifier.CandidateItem) {
	if len(items) == 0 {
		return
	}
	d.ensureChannel(ctx)

	if len(items) <= singleItemLimit {
		for _, it := range items {
			d.send(ctx, d.title, it.SummaryText)
		}
		return
	}

	preview := make([]string, 0, combinedPreviewLines)
	for i, it := range items {
		if i == combinedPreviewLines {
			break
		}
		preview = append(preview, it.SummaryText)
	}

	title := fmt.Sprintf("%s (%d new)", d.title, len(items))
	d.send(ctx, title, strings.Join(preview, "\n"))
}

// NotifySessionExpired tells the user their credential no longer works. This
// is the only failure the end user sees directly.
func (d *Dispatcher) NotifySessionExpired(ctx context.Context) {
	d.ensureChannel(ctx)
	d.send(ctx, d.title, sessionExpiredBody)
}

// SendTest dispatches the canned diagnostics-screen notification through the
// same provider path as real dispatches.
func (d *Dispatcher) SendTest(ctx context.Context) {
	d.ensureChannel(ctx)
	d.send(ctx, d.title, testBody)
}

func (d *Dispatcher) ensureChannel(ctx context.Context) {
	if err := d.provider.EnsureChannel(ctx, ChannelID, ChannelName, ChannelImportance); err != nil {
		d.logger.Warn("Failed to ensure notification channel", "channel_id", ChannelID, "error", err)
	}
}

func (d *Dispatcher) send(ctx context.Context, title, body string) {
	d.logger.Info("Dispatching notification", "title", title, "body_length", len(body))
	if err := d.provider.Send(ctx, title, body); err != nil {
		d.logger.Warn("Notification send failed", "title", title, "error", err)
	}
}
