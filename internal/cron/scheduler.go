// Package cron is the Cron Scheduler (C9): an in-process registry of
// active Schedules, refreshed on create/delete without a restart. Grounded
// on github.com/robfig/cron/v3 (adopted from the pack), wired the way the
// teacher wires optional subsystems — construct, register, defer stop.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	robfigcron "github.com/robfig/cron/v3"

	"github.com/agnox/producer/internal/store"
)

// Dispatcher is the subset of dispatch.Pipeline the scheduler fires into.
// Declared locally to avoid an import cycle between cron and dispatch.
type Dispatcher interface {
	DispatchFromSchedule(ctx context.Context, orgID, taskID string, sch store.Schedule) error
}

// Scheduler guards its registry with a mutex per §5 ("Cron registry:
// guarded by internal mutual-exclusion; add/remove/stop-all are
// idempotent").
type Scheduler struct {
	cron       *robfigcron.Cron
	dispatcher Dispatcher

	mu      sync.Mutex
	entries map[string]robfigcron.EntryID // scheduleId -> cron entry
}

func NewScheduler(dispatcher Dispatcher) *Scheduler {
	return &Scheduler{
		cron:       robfigcron.New(),
		dispatcher: dispatcher,
		entries:    make(map[string]robfigcron.EntryID),
	}
}

// Start begins firing registered jobs; call once from main.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// LoadActive loads every isActive Schedule and registers it, per §4.8's
// startup behavior. Invalid cron expressions are logged and skipped.
func (s *Scheduler) LoadActive(ctx context.Context, st *store.Store) error {
	schedules, err := st.ListActiveSchedules(ctx)
	if err != nil {
		return fmt.Errorf("cron: load active schedules: %w", err)
	}
	for _, sch := range schedules {
		if err := s.AddJob(sch); err != nil {
			slog.Warn("cron: skipping invalid schedule at startup", "schedule_id", sch.ID, "error", err)
		}
	}
	return nil
}

// AddJob registers sch's handler, idempotent: a schedule already registered
// is left untouched.
func (s *Scheduler) AddJob(sch store.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[sch.ID]; exists {
		return nil
	}

	entryID, err := s.cron.AddFunc(sch.CronExpression, s.fireFunc(sch))
	if err != nil {
		return fmt.Errorf("cron: invalid expression %q: %w", sch.CronExpression, err)
	}
	s.entries[sch.ID] = entryID
	return nil
}

// RemoveJob stops and removes the schedule if present; idempotent.
func (s *Scheduler) RemoveJob(scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, exists := s.entries[scheduleID]
	if !exists {
		return
	}
	s.cron.Remove(entryID)
	delete(s.entries, scheduleID)
}

// StopAllJobs stops the underlying cron driver on graceful shutdown.
func (s *Scheduler) StopAllJobs() {
	s.cron.Stop()
}

// fireFunc constructs the handler invoked at each matching instant: a
// fresh taskId per firing, trigger=cron, groupName=schedule.name, invoking
// only the Dispatch Pipeline's store+queue+broadcast steps (§4.8).
func (s *Scheduler) fireFunc(sch store.Schedule) func() {
	return func() {
		taskID := fmt.Sprintf("cron-%s-%s", sch.ID, uuid.NewString()[:8])
		ctx := context.Background()
		if err := s.dispatcher.DispatchFromSchedule(ctx, sch.OrgID, taskID, sch); err != nil {
			slog.Error("cron: dispatch from schedule failed", "schedule_id", sch.ID, "error", err)
		}
	}
}
