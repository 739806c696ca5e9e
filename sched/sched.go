// Package sched adapts a cron runner to the poll engine's registrar
// interface. The engine registers and unregisters itself as the user flips
// notifications on and off; the cron schedule only controls wakeup cadence,
// the engine's own policy decides whether a wakeup becomes a real fetch.
package sched

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule wakes the engine often enough that the rate policy, not
// the cron cadence, governs actual fetch spacing.
const DefaultSchedule = "@every 5m"

// Scheduler owns the cron runner and at most one registered poll task.
type Scheduler struct {
	cron     *cron.Cron
	logger   *slog.Logger
	schedule string
	task     func()

	mu    sync.Mutex
	entry cron.EntryID
	live  bool
}

// New creates a scheduler that will run task on the given cron schedule
// once registered. An empty schedule uses DefaultSchedule.
func New(schedule string, task func(), logger *slog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		cron:     cron.New(),
		logger:   logger,
		schedule: schedule,
		task:     task,
	}
}

// Start begins the cron runner. Registered tasks do not fire before Start.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", "schedule", s.schedule)
}

// Stop halts the cron runner and waits for any in-flight task to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// Register adds the poll task to the cron runner. Registering twice is a
// no-op so the enable switch stays idempotent.
func (s *Scheduler) Register() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live {
		return nil
	}
	id, err := s.cron.AddFunc(s.schedule, s.task)
	if err != nil {
		return fmt.Errorf("schedule poll task: %w", err)
	}
	s.entry = id
	s.live = true
	s.logger.Info("Poll task registered", "schedule", s.schedule)
	return nil
}

// Unregister removes the poll task. Safe to call when not registered.
func (s *Scheduler) Unregister() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return
	}
	s.cron.Remove(s.entry)
	s.live = false
	s.logger.Info("Poll task unregistered")
}

// Registered reports whether the poll task is currently scheduled.
func (s *Scheduler) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}
