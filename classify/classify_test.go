package classify

import (
	"reflect"
	"testing"
	"time"

	"campus-notifier/pkg/notifier"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		articles []notifier.Article
		want     int
	}{
		{
			name: "valid timestamps kept",
			articles: []notifier.Article{
				{CreatedAt: "2025-10-01T08:00:00Z", Summary: "a"},
				{CreatedAt: "2025-10-01T09:00:00+08:00", Summary: "b"},
			},
			want: 2,
		},
		{
			name: "naive timestamp accepted",
			articles: []notifier.Article{
				{CreatedAt: "2025-10-01T08:00:00", Summary: "a"},
			},
			want: 1,
		},
		{
			name: "unparsable timestamp dropped",
			articles: []notifier.Article{
				{CreatedAt: "yesterday", Summary: "a"},
				{CreatedAt: "", Summary: "b"},
				{CreatedAt: "2025-10-01T08:00:00Z", Summary: "c"},
			},
			want: 1,
		},
		{
			name:     "empty input",
			articles: nil,
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.articles)
			if len(got) != tt.want {
				t.Errorf("Normalize() kept %d items, want %d", len(got), tt.want)
			}
		})
	}
}

func TestNormalizeStripsHTML(t *testing.T) {
	articles := []notifier.Article{
		{CreatedAt: "2025-10-01T08:00:00Z", Summary: "<p>Library closes <b>early</b> today.</p>"},
	}

	got := Normalize(articles)
	if len(got) != 1 {
		t.Fatalf("Normalize() kept %d items, want 1", len(got))
	}
	if got[0].SummaryText != "Library closes early today." {
		t.Errorf("SummaryText = %q, want plain text", got[0].SummaryText)
	}
}

func TestNormalizeFallsBackToTitle(t *testing.T) {
	articles := []notifier.Article{
		{CreatedAt: "2025-10-01T08:00:00Z", Title: "Exam schedule posted", Summary: ""},
	}

	got := Normalize(articles)
	if len(got) != 1 {
		t.Fatalf("Normalize() kept %d items, want 1", len(got))
	}
	if got[0].SummaryText != "Exam schedule posted" {
		t.Errorf("SummaryText = %q, want title fallback", got[0].SummaryText)
	}
}

func item(ts string, summary string) notifier.CandidateItem {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return notifier.CandidateItem{CreatedAt: t, SummaryText: summary}
}

func TestNewSinceFirstRun(t *testing.T) {
	items := []notifier.CandidateItem{
		item("2025-10-01T08:00:00Z", "a"),
		item("2025-10-01T09:00:00Z", "b"),
	}

	fresh, highWater := NewSince(items, nil)

	if len(fresh) != 2 {
		t.Fatalf("first run classified %d items as new, want all 2", len(fresh))
	}
	if fresh[0].SummaryText != "b" || fresh[1].SummaryText != "a" {
		t.Errorf("order = [%s, %s], want newest first [b, a]", fresh[0].SummaryText, fresh[1].SummaryText)
	}
	if want := items[1].CreatedAt; !highWater.Equal(want) {
		t.Errorf("high-water mark = %v, want %v", highWater, want)
	}
}

func TestNewSinceFiltersStrictlyNewer(t *testing.T) {
	lastSeen := mustParse(t, "2025-10-01T09:00:00Z")
	items := []notifier.CandidateItem{
		item("2025-10-01T08:00:00Z", "old"),
		item("2025-10-01T09:00:00Z", "boundary"),
		item("2025-10-01T10:00:00Z", "new"),
	}

	fresh, highWater := NewSince(items, &lastSeen)

	if len(fresh) != 1 {
		t.Fatalf("classified %d items as new, want 1", len(fresh))
	}
	if fresh[0].SummaryText != "new" {
		t.Errorf("new item = %q, want the strictly newer one", fresh[0].SummaryText)
	}
	if want := mustParse(t, "2025-10-01T10:00:00Z"); !highWater.Equal(want) {
		t.Errorf("high-water mark = %v, want %v", highWater, want)
	}
}

func TestNewSinceEmptyResult(t *testing.T) {
	lastSeen := mustParse(t, "2025-10-01T12:00:00Z")
	items := []notifier.CandidateItem{
		item("2025-10-01T08:00:00Z", "old"),
	}

	fresh, highWater := NewSince(items, &lastSeen)

	if fresh != nil {
		t.Errorf("expected no new items, got %d", len(fresh))
	}
	if !highWater.IsZero() {
		t.Errorf("high-water mark should be zero when nothing is new, got %v", highWater)
	}
}

// TestNewSinceIdempotent verifies classification is a pure function: the
// same input against the same state yields identical results.
func TestNewSinceIdempotent(t *testing.T) {
	lastSeen := mustParse(t, "2025-10-01T08:30:00Z")
	items := []notifier.CandidateItem{
		item("2025-10-01T08:00:00Z", "a"),
		item("2025-10-01T09:00:00Z", "b"),
		item("2025-10-01T10:00:00Z", "c"),
	}

	fresh1, hw1 := NewSince(items, &lastSeen)
	fresh2, hw2 := NewSince(items, &lastSeen)

	if !reflect.DeepEqual(fresh1, fresh2) {
		t.Error("NewSince() returned different sets for identical input")
	}
	if !hw1.Equal(hw2) {
		t.Errorf("high-water marks differ: %v vs %v", hw1, hw2)
	}
}

func TestNewSinceDoesNotMutateInput(t *testing.T) {
	items := []notifier.CandidateItem{
		item("2025-10-01T08:00:00Z", "a"),
		item("2025-10-01T09:00:00Z", "b"),
	}

	NewSince(items, nil)

	if !items[0].CreatedAt.Before(items[1].CreatedAt) {
		t.Error("NewSince() reordered the caller's slice")
	}
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}
