package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agnox/producer/internal/apperror"
	"github.com/agnox/producer/internal/identity"
	"github.com/agnox/producer/internal/realtime"
	"github.com/agnox/producer/internal/store"
)

// Config tunes the session/log/archive TTLs, mirroring config.IngestConfig.
type Config struct {
	SessionTTL  time.Duration
	LiveLogTTL  time.Duration
	ArchiveTTL  time.Duration
}

// Manager implements §4.7's setup/event/teardown lifecycle.
type Manager struct {
	store   *store.Store
	cache   SessionStore
	hub     *realtime.Hub
	cfg     Config
}

// NewManager wires cache as the primary session store. Pass a
// MemorySessionStore directly when Redis is disabled/unreachable at
// startup — the degradation is logged once there, per §4.7/§9.
func NewManager(s *store.Store, cache SessionStore, hub *realtime.Hub, cfg Config) *Manager {
	return &Manager{store: s, cache: cache, hub: hub, cfg: cfg}
}

// SetupRequest is §4.7 setup's input.
type SetupRequest struct {
	ProjectID       string
	RunName         string
	Framework       string
	ReporterVersion string
	TotalTests      int
	Environment     string
}

type SetupResult struct {
	SessionID string `json:"sessionId"`
	TaskID    string `json:"taskId"`
	CycleID   string `json:"cycleId"`
}

// Setup implements §4.7 setup.
func (m *Manager) Setup(ctx context.Context, principal *identity.Principal, req SetupRequest) (SetupResult, error) {
	project, err := m.store.GetProject(ctx, principal.OrgID, req.ProjectID)
	if err != nil {
		return SetupResult{}, apperror.Dependency("failed to load project", err)
	}
	if project == nil {
		return SetupResult{}, apperror.Forbidden("project does not belong to this organization")
	}

	sessionID := uuid.NewString()
	taskID := fmt.Sprintf("ingest-%d-%s", time.Now().UnixMilli(), sessionID[:8])
	cycleID := uuid.NewString()
	cycleItemID := uuid.NewString()

	cycle := &store.TestCycle{
		ID:        cycleID,
		OrgID:     principal.OrgID,
		ProjectID: req.ProjectID,
		Name:      orDefault(req.RunName, req.Framework+" run"),
		Status:    store.CycleStatusRunning,
		Items: []store.CycleItem{{
			ID:          cycleItemID,
			Type:        store.CycleItemAutomated,
			Title:       orDefault(req.RunName, req.Framework+" run"),
			Status:      string(store.StatusRunning),
			ExecutionID: taskID,
		}},
	}
	if err := m.store.CreateTestCycle(ctx, cycle); err != nil {
		return SetupResult{}, apperror.Dependency("failed to create test cycle", err)
	}

	exec := &store.Execution{
		TaskID:    taskID,
		OrgID:     principal.OrgID,
		Source:    store.SourceExternalCI,
		Status:    store.StatusRunning,
		Image:     store.SentinelImage,
		StartTime: time.Now(),
		Config:    store.ExecutionConfig{Environment: req.Environment},
		CycleID:   cycleID,
		CycleItemID: cycleItemID,
		IngestMeta: &store.IngestMeta{Framework: req.Framework, ReporterVersion: req.ReporterVersion},
	}
	if err := m.store.UpsertExecution(ctx, exec); err != nil {
		return SetupResult{}, apperror.Dependency("failed to create execution", err)
	}

	session := &Session{
		SessionID:       sessionID,
		OrgID:           principal.OrgID,
		ProjectID:       req.ProjectID,
		TaskID:          taskID,
		CycleID:         cycleID,
		CycleItemID:     cycleItemID,
		Framework:       req.Framework,
		ReporterVersion: req.ReporterVersion,
		TotalTests:      req.TotalTests,
		Status:          string(store.StatusRunning),
		StartTime:       time.Now(),
		CreatedAt:       time.Now(),
	}
	if err := m.cache.PutSession(ctx, session, m.cfg.SessionTTL); err != nil {
		slog.Warn("ingest: failed to write session to cache", "session_id", sessionID, "error", err)
	}

	m.hub.Broadcast(principal.OrgID, "execution-updated", map[string]interface{}{
		"taskId": taskID, "status": exec.Status,
	})

	return SetupResult{SessionID: sessionID, TaskID: taskID, CycleID: cycleID}, nil
}

// Event is one array element of §4.7 event's input.
type Event struct {
	Type      string  `json:"type"`
	TestID    string  `json:"testId,omitempty"`
	Title     string  `json:"title,omitempty"`
	File      string  `json:"file,omitempty"`
	Chunk     string  `json:"chunk,omitempty"`
	Status    string  `json:"status,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Error     string  `json:"error,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// Event implements §4.7 event: applies a batch of 1-100 events in array
// order, with cache writes pipelined into one round-trip per batch.
func (m *Manager) Event(ctx context.Context, principal *identity.Principal, sessionID string, events []Event) error {
	if len(events) == 0 || len(events) > 100 {
		return apperror.Validation("event batch size must be between 1 and 100")
	}

	session, err := m.cache.GetSession(ctx, sessionID)
	if err != nil {
		return apperror.Dependency("failed to load ingest session", err)
	}
	if session == nil {
		return apperror.NotFound("ingest session not found")
	}
	if session.OrgID != principal.OrgID {
		return apperror.NotFound("ingest session not found")
	}

	var logChunk string
	var results []store.TestResult

	for _, ev := range events {
		switch ev.Type {
		case "log":
			logChunk += ev.Chunk + "\n"
			m.hub.Broadcast(principal.OrgID, "execution-log", map[string]interface{}{
				"taskId": session.TaskID, "line": ev.Chunk,
			})

		case "test-begin":
			line := fmt.Sprintf("▶ RUNNING  %s", ev.Title)
			logChunk += line + "\n"
			m.hub.Broadcast(principal.OrgID, "execution-log", map[string]interface{}{
				"taskId": session.TaskID, "line": line,
			})

		case "test-end":
			icon := "✔"
			switch ev.Status {
			case "failed":
				icon = "✘"
			case "skipped", "timedOut":
				icon = "–"
			}
			line := fmt.Sprintf("%s %s  %s (%dms)", icon, ev.Status, ev.TestID, int(ev.Duration))
			logChunk += line + "\n"
			results = append(results, store.TestResult{
				TestID: ev.TestID, Status: ev.Status, Duration: ev.Duration, Error: ev.Error, Timestamp: ev.Timestamp,
			})
			m.hub.Broadcast(principal.OrgID, "execution-log", map[string]interface{}{
				"taskId": session.TaskID, "line": line,
			})

		case "status":
			m.hub.Broadcast(principal.OrgID, "execution-updated", map[string]interface{}{
				"taskId": session.TaskID, "status": ev.Status,
			})
		}
	}

	// Single round-trip for the whole batch: the response must not block on
	// the cache once per event, only once per call (§4.7).
	if err := m.cache.ApplyEventBatch(ctx, session.TaskID, sessionID, EventBatch{
		LogChunk:   logChunk,
		Results:    results,
		LogTTL:     m.cfg.LiveLogTTL,
		SessionTTL: m.cfg.SessionTTL,
	}); err != nil {
		slog.Warn("ingest: apply event batch failed", "error", err)
	}
	return nil
}

// TeardownRequest is §4.7 teardown's input.
type TeardownRequest struct {
	SessionID string
	Status    store.ExecutionStatus
	Summary   store.CycleSummary
}

// Teardown implements §4.7 teardown exactly.
func (m *Manager) Teardown(ctx context.Context, principal *identity.Principal, req TeardownRequest) error {
	session, err := m.cache.GetSession(ctx, req.SessionID)
	if err != nil {
		return apperror.Dependency("failed to load ingest session", err)
	}
	if session == nil {
		return apperror.NotFound("ingest session not found")
	}
	if session.OrgID != principal.OrgID {
		return apperror.NotFound("ingest session not found")
	}
	if req.Status != store.StatusPassed && req.Status != store.StatusFailed {
		return apperror.Validation("status must be PASSED or FAILED")
	}

	tests, err := m.cache.DrainResults(ctx, req.SessionID)
	if err != nil {
		return apperror.Dependency("failed to drain ingest results", err)
	}
	output, err := m.cache.DrainLog(ctx, session.TaskID)
	if err != nil {
		return apperror.Dependency("failed to drain ingest logs", err)
	}

	exec, err := m.store.GetExecution(ctx, principal.OrgID, session.TaskID)
	if err != nil {
		return apperror.Dependency("failed to load execution", err)
	}
	if exec == nil {
		return apperror.NotFound("execution not found")
	}
	now := time.Now()
	exec.Status = req.Status
	exec.EndTime = &now
	exec.Tests = tests
	exec.Output = output
	if err := m.store.UpdateExecution(ctx, exec); err != nil {
		return apperror.Dependency("failed to finalise execution", err)
	}

	cycle, err := m.store.GetTestCycle(ctx, principal.OrgID, session.CycleID)
	if err != nil {
		return apperror.Dependency("failed to load test cycle", err)
	}
	if cycle != nil {
		for i := range cycle.Items {
			if cycle.Items[i].ID == session.CycleItemID {
				cycle.Items[i].Status = string(req.Status)
			}
		}
		cycle.Status = store.CycleStatusCompleted
		cycle.Summary = req.Summary
		if err := m.store.UpdateTestCycle(ctx, cycle); err != nil {
			return apperror.Dependency("failed to finalise test cycle", err)
		}
	}

	archive := &store.IngestSessionArchive{
		SessionID:       session.SessionID,
		OrgID:           session.OrgID,
		ProjectID:       session.ProjectID,
		TaskID:          session.TaskID,
		CycleID:         session.CycleID,
		CycleItemID:     session.CycleItemID,
		Framework:       session.Framework,
		ReporterVersion: session.ReporterVersion,
		TotalTests:      session.TotalTests,
		Status:          string(req.Status),
		StartTime:       session.StartTime,
		CreatedAt:       now,
	}
	if err := m.store.ArchiveIngestSession(ctx, archive); err != nil {
		slog.Warn("ingest: failed to archive session", "session_id", session.SessionID, "error", err)
	}

	// Best-effort cache cleanup; these keys would otherwise simply expire.
	m.cache.DeleteLog(ctx, session.TaskID)
	m.cache.DeleteResults(ctx, session.SessionID)
	m.cache.DeleteSession(ctx, session.SessionID)

	m.hub.Broadcast(principal.OrgID, "execution-updated", map[string]interface{}{
		"taskId": session.TaskID, "status": exec.Status,
	})
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
