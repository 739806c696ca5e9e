package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"campus-notifier/pkg/notifier"
)

// memObject holds the document in memory, standing in for the bucket.
type memObject struct {
	mu   sync.Mutex
	data []byte
}

func (m *memObject) load(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

func (m *memObject) save(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make([]byte, len(data))
	copy(m.data, data)
	return nil
}

func (m *memObject) close() error { return nil }

func newMemStore() *ObjectStore {
	return &ObjectStore{
		io:     &memObject{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestObjectStateZeroWhenMissing(t *testing.T) {
	s := newMemStore()

	state, err := s.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Enabled || state.LastSeenAt != nil || state.NextAllowedAt != nil {
		t.Errorf("missing document should read as zero state, got %+v", state)
	}
}

func TestObjectStateRoundTrip(t *testing.T) {
	s := newMemStore()
	ctx := context.Background()
	seen := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	next := seen.Add(30 * time.Minute)

	in := notifier.PollState{Enabled: true, LastSeenAt: &seen, NextAllowedAt: &next}
	if err := s.SaveState(ctx, in); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	out, err := s.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if !out.Enabled || out.LastSeenAt == nil || !out.LastSeenAt.Equal(seen) {
		t.Errorf("state = %+v, want round-tripped %+v", out, in)
	}
}

func TestObjectSaveStatePreservesOutcomes(t *testing.T) {
	s := newMemStore()
	ctx := context.Background()

	if err := s.AppendOutcome(ctx, notifier.PollOutcome{ID: "o-1", At: time.Now(), Status: notifier.StatusNotModified}); err != nil {
		t.Fatalf("AppendOutcome: %v", err)
	}
	if err := s.SaveState(ctx, notifier.PollState{Enabled: true}); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	outcomes, err := s.Outcomes(ctx, MaxOutcomes)
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(outcomes) != 1 {
		t.Errorf("SaveState dropped the outcome log, got %d entries", len(outcomes))
	}
}

func TestObjectAppendEviction(t *testing.T) {
	s := newMemStore()
	ctx := context.Background()
	base := time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < MaxOutcomes+1; i++ {
		o := notifier.PollOutcome{
			ID:     fmt.Sprintf("outcome-%03d", i),
			At:     base.Add(time.Duration(i) * time.Minute),
			Status: notifier.StatusNoNewItems,
		}
		if err := s.AppendOutcome(ctx, o); err != nil {
			t.Fatalf("AppendOutcome %d: %v", i, err)
		}
	}

	outcomes, err := s.Outcomes(ctx, MaxOutcomes)
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(outcomes) != MaxOutcomes {
		t.Fatalf("log holds %d entries, want %d", len(outcomes), MaxOutcomes)
	}
	if outcomes[0].ID != fmt.Sprintf("outcome-%03d", MaxOutcomes) {
		t.Errorf("newest entry = %s, want the last appended", outcomes[0].ID)
	}
	for _, o := range outcomes {
		if o.ID == "outcome-000" {
			t.Error("oldest entry survived eviction")
		}
	}
}

// Concurrent appends must not lose entries: each read-modify-write cycle
// has to observe the previous one.
func TestObjectConcurrentAppends(t *testing.T) {
	s := newMemStore()
	ctx := context.Background()
	const writers = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := notifier.PollOutcome{
				ID:     fmt.Sprintf("outcome-%03d", i),
				At:     time.Now(),
				Status: notifier.StatusNoNewItems,
			}
			if err := s.AppendOutcome(ctx, o); err != nil {
				t.Errorf("AppendOutcome %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	outcomes, err := s.Outcomes(ctx, MaxOutcomes)
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(outcomes) != writers {
		t.Errorf("log holds %d entries after %d concurrent appends, entries were lost", len(outcomes), writers)
	}
}

func TestObjectClearOutcomesKeepsState(t *testing.T) {
	s := newMemStore()
	ctx := context.Background()

	if err := s.SaveState(ctx, notifier.PollState{Enabled: true}); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if err := s.AppendOutcome(ctx, notifier.PollOutcome{ID: "o-1", At: time.Now(), Status: notifier.StatusManualTest}); err != nil {
		t.Fatalf("AppendOutcome: %v", err)
	}

	if err := s.ClearOutcomes(ctx); err != nil {
		t.Fatalf("ClearOutcomes: %v", err)
	}

	outcomes, err := s.Outcomes(ctx, MaxOutcomes)
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("log holds %d entries after clear", len(outcomes))
	}
	state, err := s.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if !state.Enabled {
		t.Error("clear must not touch poll state")
	}
}
