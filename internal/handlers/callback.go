package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/agnox/producer/internal/apperror"
	"github.com/agnox/producer/internal/httpx"
	"github.com/agnox/producer/internal/ingest"
	"github.com/agnox/producer/internal/realtime"
	"github.com/agnox/producer/internal/store"
)

// CallbackHandler is the Worker Callback Sink (C6): two endpoints gated by
// identity.RequireWorkerSecret rather than a user JWT, grounded on the
// teacher's decode/branch/respond handler shape.
type CallbackHandler struct {
	store *store.Store
	cache ingest.SessionStore // live-log cache, same keyspace as internal/ingest
	hub   *realtime.Hub
}

func NewCallbackHandler(s *store.Store, cache ingest.SessionStore, hub *realtime.Hub) *CallbackHandler {
	return &CallbackHandler{store: s, cache: cache, hub: hub}
}

type updateExecutionRequest struct {
	TaskID  string                `json:"taskId"`
	OrgID   string                `json:"orgId"`
	Status  store.ExecutionStatus `json:"status"`
	EndTime *time.Time            `json:"endTime"`
	Output  string                `json:"output"`
	Tests   []store.TestResult    `json:"tests"`
}

// UpdateExecution implements §4.5's updateExecution: missing orgId logs a
// warning and is rejected rather than globally broadcast — spec.md §9
// flags the legacy global-broadcast behavior for hardening; this
// implementation is the hardened one (see DESIGN.md's Open Questions).
func (h *CallbackHandler) UpdateExecution(w http.ResponseWriter, r *http.Request) {
	var req updateExecutionRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, apperror.Validation("malformed request body"))
		return
	}
	if req.OrgID == "" {
		slog.Warn("callback: updateExecution missing orgId, rejecting", "task_id", req.TaskID)
		httpx.Error(w, apperror.Validation("orgId is required"))
		return
	}

	exec, err := h.store.GetExecution(r.Context(), req.OrgID, req.TaskID)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to load execution", err))
		return
	}
	if exec == nil {
		httpx.Error(w, apperror.NotFound("execution not found"))
		return
	}

	exec.Status = req.Status
	if req.EndTime != nil {
		exec.EndTime = req.EndTime
	}
	if req.Output != "" {
		exec.Output = req.Output
	}
	if req.Tests != nil {
		exec.Tests = req.Tests
	}
	if err := h.store.UpdateExecution(r.Context(), exec); err != nil {
		httpx.Error(w, apperror.Dependency("failed to update execution", err))
		return
	}

	h.hub.Broadcast(req.OrgID, "execution-updated", map[string]interface{}{
		"taskId": req.TaskID, "status": exec.Status,
	})
	httpx.Success(w, http.StatusOK, nil)
}

type appendLogRequest struct {
	TaskID string `json:"taskId"`
	OrgID  string `json:"orgId"`
	Log    string `json:"log"`
}

const workerLiveLogTTL = 4 * time.Hour

// AppendLog implements §4.5's appendLog: appends to live:logs:{taskId}
// (TTL 4h) and broadcasts execution-log to org:{orgId}.
func (h *CallbackHandler) AppendLog(w http.ResponseWriter, r *http.Request) {
	var req appendLogRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, apperror.Validation("malformed request body"))
		return
	}
	if req.OrgID == "" {
		slog.Warn("callback: appendLog missing orgId, rejecting", "task_id", req.TaskID)
		httpx.Error(w, apperror.Validation("orgId is required"))
		return
	}

	if err := h.cache.AppendLog(r.Context(), req.TaskID, req.Log, workerLiveLogTTL); err != nil {
		slog.Warn("callback: append log cache write failed", "task_id", req.TaskID, "error", err)
	}
	h.hub.Broadcast(req.OrgID, "execution-log", map[string]interface{}{
		"taskId": req.TaskID, "line": req.Log,
	})
	httpx.Success(w, http.StatusOK, nil)
}
