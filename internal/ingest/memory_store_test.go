package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agnox/producer/internal/store"
)

func TestMemorySessionStore_PutGetRoundTrip(t *testing.T) {
	m := NewMemorySessionStore()
	ctx := context.Background()

	s := &Session{SessionID: "s1", OrgID: "org-1", TaskID: "task-1"}
	require.NoError(t, m.PutSession(ctx, s, time.Hour))

	got, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "org-1", got.OrgID)
}

func TestMemorySessionStore_GetSession_ExpiredReturnsNil(t *testing.T) {
	m := NewMemorySessionStore()
	ctx := context.Background()

	s := &Session{SessionID: "s1"}
	require.NoError(t, m.PutSession(ctx, s, -time.Second))

	got, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemorySessionStore_TouchSession_ExtendsTTL(t *testing.T) {
	m := NewMemorySessionStore()
	ctx := context.Background()

	require.NoError(t, m.PutSession(ctx, &Session{SessionID: "s1"}, time.Millisecond))
	require.NoError(t, m.TouchSession(ctx, "s1", time.Hour))

	got, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.NotNil(t, got, "touching should have extended the TTL past expiry")
}

func TestMemorySessionStore_DeleteSession(t *testing.T) {
	m := NewMemorySessionStore()
	ctx := context.Background()
	require.NoError(t, m.PutSession(ctx, &Session{SessionID: "s1"}, time.Hour))
	require.NoError(t, m.DeleteSession(ctx, "s1"))

	got, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemorySessionStore_AppendAndDrainLog(t *testing.T) {
	m := NewMemorySessionStore()
	ctx := context.Background()

	require.NoError(t, m.AppendLog(ctx, "task-1", "line one\n", time.Hour))
	require.NoError(t, m.AppendLog(ctx, "task-1", "line two\n", time.Hour))

	data, err := m.DrainLog(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", data)

	require.NoError(t, m.DeleteLog(ctx, "task-1"))
	data, err = m.DrainLog(ctx, "task-1")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestMemorySessionStore_PushAndDrainResults(t *testing.T) {
	m := NewMemorySessionStore()
	ctx := context.Background()

	require.NoError(t, m.PushResult(ctx, "s1", store.TestResult{TestID: "t1", Status: "passed"}))
	require.NoError(t, m.PushResult(ctx, "s1", store.TestResult{TestID: "t2", Status: "failed"}))

	results, err := m.DrainResults(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "t1", results[0].TestID)

	require.NoError(t, m.DeleteResults(ctx, "s1"))
	results, err = m.DrainResults(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, results)
}
