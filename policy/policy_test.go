package policy

import (
	"math/rand"
	"testing"
	"time"
)

func TestIsWithinWindow(t *testing.T) {
	tests := []struct {
		name string
		hour int
		min  int
		want bool
	}{
		{name: "just before window opens", hour: 7, min: 59, want: false},
		{name: "window opens", hour: 8, min: 0, want: true},
		{name: "midday", hour: 12, min: 30, want: true},
		{name: "last minute of day", hour: 23, min: 59, want: true},
		{name: "midnight", hour: 0, min: 0, want: false},
		{name: "early morning", hour: 3, min: 15, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2025, 11, 3, tt.hour, tt.min, 0, 0, time.Local)
			if got := IsWithinWindow(now); got != tt.want {
				t.Errorf("IsWithinWindow(%02d:%02d) = %v, want %v", tt.hour, tt.min, got, tt.want)
			}
		})
	}
}

func TestIsRateLimited(t *testing.T) {
	now := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name          string
		nextAllowedAt *time.Time
		want          bool
	}{
		{name: "no restriction recorded", nextAllowedAt: nil, want: false},
		{name: "restriction in the past", nextAllowedAt: &past, want: false},
		{name: "restriction equals now", nextAllowedAt: &now, want: false},
		{name: "restriction in the future", nextAllowedAt: &future, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimited(now, tt.nextAllowedAt); got != tt.want {
				t.Errorf("IsRateLimited() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextAllowedStandardBounds(t *testing.T) {
	p := New(PolicyStandard, rand.New(rand.NewSource(1)))
	now := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 1000; i++ {
		next := p.NextAllowed(now)
		spacing := next.Sub(now)
		if spacing < 15*time.Minute || spacing >= 45*time.Minute {
			t.Fatalf("standard spacing = %v, want in [15m, 45m)", spacing)
		}
	}
}

func TestNextAllowedCoarseBounds(t *testing.T) {
	p := New(PolicyCoarse, rand.New(rand.NewSource(1)))
	now := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 1000; i++ {
		next := p.NextAllowed(now)
		spacing := next.Sub(now)
		if spacing < 2*time.Hour || spacing >= 2*time.Hour+15*time.Minute {
			t.Fatalf("coarse spacing = %v, want in [2h, 2h15m)", spacing)
		}
	}
}

func TestNextAllowedJitterVaries(t *testing.T) {
	p := New(PolicyStandard, rand.New(rand.NewSource(42)))
	now := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)

	seen := make(map[time.Time]bool)
	for i := 0; i < 50; i++ {
		seen[p.NextAllowed(now)] = true
	}
	if len(seen) < 2 {
		t.Error("NextAllowed() produced identical values across 50 calls, jitter missing")
	}
}

func TestNewUnknownPolicyFallsBack(t *testing.T) {
	p := New("aggressive", nil)
	if p.Name() != PolicyStandard {
		t.Errorf("New(unknown) name = %q, want %q", p.Name(), PolicyStandard)
	}
}
