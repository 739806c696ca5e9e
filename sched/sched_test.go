package sched

import (
	"io"
	"log/slog"
	"testing"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterUnregister(t *testing.T) {
	s := New("", func() {}, discard())

	if s.Registered() {
		t.Error("fresh scheduler should not be registered")
	}
	if err := s.Register(); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !s.Registered() {
		t.Error("scheduler should report registered")
	}

	s.Unregister()
	if s.Registered() {
		t.Error("scheduler should report unregistered")
	}
	// Unregistering again must not panic.
	s.Unregister()
}

func TestRegisterIdempotent(t *testing.T) {
	s := New("@every 1m", func() {}, discard())
	if err := s.Register(); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := s.Register(); err != nil {
		t.Fatalf("second register: %v", err)
	}
	if len(s.cron.Entries()) != 1 {
		t.Errorf("cron holds %d entries, want 1", len(s.cron.Entries()))
	}
}

func TestRegisterBadSchedule(t *testing.T) {
	s := New("not a schedule", func() {}, discard())
	if err := s.Register(); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if s.Registered() {
		t.Error("failed register must not report registered")
	}
}
