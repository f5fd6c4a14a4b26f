// Package ingest is the Ingest Session Manager (C8): session lifecycle for
// external-CI reporters (setup/event/teardown), buffering log chunks and
// structured test events in a cache and draining them into Executions and
// TestCycles at teardown. Falls back to an in-process map when the cache
// is unreachable, per spec.md §9's "deliberate single-instance safety net".
package ingest

import (
	"context"
	"time"

	"github.com/agnox/producer/internal/store"
)

// Session is the transient, cache-resident record binding one external-CI
// reporter process to one Execution/TestCycle pair (§3 IngestSession).
type Session struct {
	SessionID       string    `json:"sessionId"`
	OrgID           string    `json:"orgId"`
	ProjectID       string    `json:"projectId"`
	TaskID          string    `json:"taskId"`
	CycleID         string    `json:"cycleId"`
	CycleItemID     string    `json:"cycleItemId"`
	Framework       string    `json:"framework"`
	ReporterVersion string    `json:"reporterVersion"`
	TotalTests      int       `json:"totalTests"`
	Status          string    `json:"status"`
	StartTime       time.Time `json:"startTime"`
	CreatedAt       time.Time `json:"createdAt"`
}

// EventBatch is the set of cache writes one §4.7 event call produces,
// gathered up front by Manager.Event so the whole batch can be applied in a
// single round-trip regardless of how many events it carries.
type EventBatch struct {
	LogChunk   string // already-joined, newline-terminated log lines, in order
	Results    []store.TestResult
	LogTTL     time.Duration
	SessionTTL time.Duration
}

// SessionStore is the cache contract §4.7 needs: session bookkeeping,
// live-log accumulation, and structured test-result accumulation, each
// independently TTL'd and independently drainable at teardown.
type SessionStore interface {
	PutSession(ctx context.Context, s *Session, ttl time.Duration) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	TouchSession(ctx context.Context, sessionID string, ttl time.Duration) error
	DeleteSession(ctx context.Context, sessionID string) error

	// AppendLog is the single-write path used by the Worker Callback
	// Sink's appendLog (§4.5), which has no batch to amortize.
	AppendLog(ctx context.Context, taskID, chunk string, ttl time.Duration) error
	DrainLog(ctx context.Context, taskID string) (string, error)
	DeleteLog(ctx context.Context, taskID string) error

	// ApplyEventBatch appends batch.LogChunk to taskID's live log, pushes
	// every batch.Results entry onto sessionID's result list, and slides
	// the live log's TTL and the session's TTL forward (the result list
	// gets no TTL), all in one round-trip
	// (§4.7: "all cache writes are pipelined into one round-trip per
	// batch" / "response must not block on cache").
	ApplyEventBatch(ctx context.Context, taskID, sessionID string, batch EventBatch) error

	DrainResults(ctx context.Context, sessionID string) ([]store.TestResult, error)
	DeleteResults(ctx context.Context, sessionID string) error
}
