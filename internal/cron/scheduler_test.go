package cron

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agnox/producer/internal/store"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingDispatcher) DispatchFromSchedule(ctx context.Context, orgID, taskID string, sch store.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, taskID)
	return nil
}

func (r *recordingDispatcher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestScheduler_AddJob_RejectsInvalidExpression(t *testing.T) {
	s := NewScheduler(&recordingDispatcher{})
	err := s.AddJob(store.Schedule{ID: "sch-1", CronExpression: "not a cron expression"})
	assert.Error(t, err)
}

func TestScheduler_AddJob_IsIdempotent(t *testing.T) {
	s := NewScheduler(&recordingDispatcher{})
	sch := store.Schedule{ID: "sch-1", CronExpression: "* * * * *"}

	require.NoError(t, s.AddJob(sch))
	require.NoError(t, s.AddJob(sch), "re-adding an already-registered schedule must be a no-op, not an error")

	s.mu.Lock()
	entryCount := len(s.entries)
	s.mu.Unlock()
	assert.Equal(t, 1, entryCount, "duplicate AddJob must not create a second cron entry")
}

func TestScheduler_RemoveJob_IsIdempotent(t *testing.T) {
	s := NewScheduler(&recordingDispatcher{})
	sch := store.Schedule{ID: "sch-1", CronExpression: "* * * * *"}
	require.NoError(t, s.AddJob(sch))

	s.RemoveJob("sch-1")
	assert.NotPanics(t, func() { s.RemoveJob("sch-1") }, "removing twice must be safe")
	assert.NotPanics(t, func() { s.RemoveJob("never-existed") })

	s.mu.Lock()
	_, stillPresent := s.entries["sch-1"]
	s.mu.Unlock()
	assert.False(t, stillPresent)
}

func TestScheduler_AddJob_RegistersDistinctSchedulesIndependently(t *testing.T) {
	s := NewScheduler(&recordingDispatcher{})
	require.NoError(t, s.AddJob(store.Schedule{ID: "sch-1", CronExpression: "* * * * *"}))
	require.NoError(t, s.AddJob(store.Schedule{ID: "sch-2", CronExpression: "0 * * * *"}))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.entries, 2)
}
