// Package classify turns raw feed entries into the set of genuinely new
// items and the updated high-water mark. Everything here is deterministic:
// classifying the same input twice yields the same output.
package classify

import (
	"sort"
	"strings"
	"time"

	"campus-notifier/pkg/notifier"

	"github.com/PuerkitoBio/goquery"
)

// Timestamp layouts accepted for created_at, tried in order. The feed emits
// ISO8601; older rows lack a timezone suffix.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Normalize converts raw articles to candidate items, dropping entries whose
// created_at is absent or unparsable. Summaries arrive as HTML fragments
// from the upstream crawler and are flattened to plain text; when an article
// has no summary its title is used instead.
func Normalize(articles []notifier.Article) []notifier.CandidateItem {
	items := make([]notifier.CandidateItem, 0, len(articles))
	for _, a := range articles {
		created := parseCreatedAt(a.CreatedAt)
		if created.IsZero() {
			continue
		}
		summary := strings.TrimSpace(a.Summary)
		if summary == "" {
			summary = strings.TrimSpace(a.Title)
		}
		items = append(items, notifier.CandidateItem{
			CreatedAt:   created,
			SummaryText: flattenHTML(summary),
		})
	}
	return items
}

// NewSince filters items to those strictly newer than lastSeenAt, sorted
// newest first, and returns the new high-water mark (the max CreatedAt over
// the filtered set, zero when nothing is new). A nil lastSeenAt means first
// run: every normalized item counts as new, so the initial poll surfaces the
// full current snapshot rather than nothing.
func NewSince(items []notifier.CandidateItem, lastSeenAt *time.Time) ([]notifier.CandidateItem, time.Time) {
	sorted := make([]notifier.CandidateItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	var fresh []notifier.CandidateItem
	for _, it := range sorted {
		if lastSeenAt == nil || it.CreatedAt.After(*lastSeenAt) {
			fresh = append(fresh, it)
		}
	}

	if len(fresh) == 0 {
		return nil, time.Time{}
	}
	// Newest first, so the high-water mark is the head.
	return fresh, fresh[0].CreatedAt
}

func parseCreatedAt(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// flattenHTML strips markup from a summary fragment, collapsing whitespace
// so the result fits a one-line notification body. Plain-text input passes
// through unchanged apart from whitespace normalization.
func flattenHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapseSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseSpace(s)
	}
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
