package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/agnox/producer/internal/apperror"
	"github.com/agnox/producer/internal/dispatch"
	"github.com/agnox/producer/internal/httpx"
	"github.com/agnox/producer/internal/identity"
	"github.com/agnox/producer/internal/store"
)

// ExecutionHandler implements §6's execution-request/list/delete/metrics
// surface, delegating admission to internal/dispatch.Pipeline.
type ExecutionHandler struct {
	store    *store.Store
	pipeline *dispatch.Pipeline
	rdb      *redis.Client // nil when Redis is disabled; metrics degrade to 0
}

func NewExecutionHandler(s *store.Store, p *dispatch.Pipeline, rdb *redis.Client) *ExecutionHandler {
	return &ExecutionHandler{store: s, pipeline: p, rdb: rdb}
}

type executionRequestBody struct {
	TaskID        string            `json:"taskId"`
	ProjectID     string            `json:"projectId"`
	Image         string            `json:"image"`
	Command       string            `json:"command"`
	Folder        string            `json:"folder"`
	Tests         []string          `json:"tests"`
	GroupName     string            `json:"groupName"`
	BatchID       string            `json:"batchId"`
	Trigger       string            `json:"trigger"`
	Framework     string            `json:"framework"`
	CycleID       string            `json:"cycleId"`
	CycleItemID   string            `json:"cycleItemId"`
	Config        struct {
		Environment   string            `json:"environment"`
		BaseURL       string            `json:"baseUrl"`
		RetryAttempts int               `json:"retryAttempts"`
		EnvVars       map[string]string `json:"envVars"`
	} `json:"config"`
}

// Dispatch implements POST /api/execution-request: §4.3 steps 1-8.
func (h *ExecutionHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}

	var body executionRequestBody
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, apperror.Validation("malformed request body"))
		return
	}

	result, err := h.pipeline.Dispatch(r.Context(), p, dispatch.Request{
		TaskID:        body.TaskID,
		ProjectID:     body.ProjectID,
		Image:         body.Image,
		Command:       body.Command,
		Folder:        body.Folder,
		Tests:         body.Tests,
		Environment:   body.Config.Environment,
		BaseURL:       body.Config.BaseURL,
		RetryAttempts: body.Config.RetryAttempts,
		EnvVars:       body.Config.EnvVars,
		GroupName:     body.GroupName,
		BatchID:       body.BatchID,
		Trigger:       body.Trigger,
		Framework:     body.Framework,
		CycleID:       body.CycleID,
		CycleItemID:   body.CycleItemID,
	})
	if err != nil {
		httpx.Error(w, err)
		return
	}

	httpx.Success(w, http.StatusOK, map[string]interface{}{
		"status": "Message queued successfully",
		"taskId": result.TaskID,
	})
}

// List implements GET /api/executions: paginated, scoped by the caller's org.
func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	execs, err := h.store.ListExecutions(r.Context(), p.OrgID, limit, offset)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to list executions", err))
		return
	}
	httpx.OK(w, execs)
}

// Delete implements DELETE /api/executions/:id, scoped by org (cross-tenant
// lookups return 404, per §7).
func (h *ExecutionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	taskID := mux.Vars(r)["id"]

	exec, err := h.store.GetExecution(r.Context(), p.OrgID, taskID)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to load execution", err))
		return
	}
	if exec == nil {
		httpx.Error(w, apperror.NotFound("Execution not found"))
		return
	}
	if err := h.store.DeleteExecution(r.Context(), p.OrgID, taskID); err != nil {
		httpx.Error(w, apperror.Dependency("failed to delete execution", err))
		return
	}
	httpx.Success(w, http.StatusOK, nil)
}

// Metrics implements GET /api/metrics/:image: a Redis-backed perf counter
// scoped to the caller's org, degrading to zero values when Redis is
// disabled rather than failing the request.
func (h *ExecutionHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	image := mux.Vars(r)["image"]

	if h.rdb == nil {
		httpx.OK(w, map[string]interface{}{"image": image, "runCount": 0, "avgDurationMs": 0})
		return
	}

	key := "metrics:" + p.OrgID + ":" + image
	vals, err := h.rdb.HGetAll(r.Context(), key).Result()
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to load image metrics", err))
		return
	}
	httpx.OK(w, map[string]interface{}{
		"image":         image,
		"runCount":      vals["runCount"],
		"avgDurationMs": vals["avgDurationMs"],
	})
}
