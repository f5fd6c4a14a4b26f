package handlers

import (
	"net/http"

	"github.com/agnox/producer/internal/apperror"
	"github.com/agnox/producer/internal/httpx"
	"github.com/agnox/producer/internal/identity"
	"github.com/agnox/producer/internal/ingest"
	"github.com/agnox/producer/internal/ratelimit"
	"github.com/agnox/producer/internal/store"
)

// IngestHandler implements §6's /api/ingest/{setup,event,teardown}: API-key
// authenticated, rate-limited separately from general traffic (§4.7, §4.10).
type IngestHandler struct {
	manager *ingest.Manager
	limiter *ratelimit.Limiter
}

func NewIngestHandler(m *ingest.Manager, l *ratelimit.Limiter) *IngestHandler {
	return &IngestHandler{manager: m, limiter: l}
}

func (h *IngestHandler) allow(w http.ResponseWriter, r *http.Request, orgID string, tier ratelimit.Tier) bool {
	ok, err := h.limiter.Allow(r.Context(), orgID, tier)
	if err != nil {
		httpx.Error(w, apperror.Dependency("rate limit check failed", err))
		return false
	}
	if !ok {
		httpx.Error(w, apperror.RateLimited("rate limit exceeded for this operation"))
		return false
	}
	return true
}

type setupRequestBody struct {
	ProjectID       string `json:"projectId"`
	RunName         string `json:"runName"`
	Framework       string `json:"framework"`
	ReporterVersion string `json:"reporterVersion"`
	TotalTests      int    `json:"totalTests"`
	Environment     string `json:"environment"`
}

func (h *IngestHandler) Setup(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	if !h.allow(w, r, p.OrgID, ratelimit.TierIngestLifecycle) {
		return
	}

	var body setupRequestBody
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, apperror.Validation("malformed request body"))
		return
	}
	result, err := h.manager.Setup(r.Context(), p, ingest.SetupRequest{
		ProjectID: body.ProjectID, RunName: body.RunName, Framework: body.Framework,
		ReporterVersion: body.ReporterVersion, TotalTests: body.TotalTests, Environment: body.Environment,
	})
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Success(w, http.StatusCreated, map[string]interface{}{
		"sessionId": result.SessionID, "taskId": result.TaskID, "cycleId": result.CycleID,
	})
}

type eventRequestBody struct {
	SessionID string          `json:"sessionId"`
	Events    []ingest.Event  `json:"events"`
}

func (h *IngestHandler) Event(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	if !h.allow(w, r, p.OrgID, ratelimit.TierIngestEvent) {
		return
	}

	var body eventRequestBody
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, apperror.Validation("malformed request body"))
		return
	}
	if err := h.manager.Event(r.Context(), p, body.SessionID, body.Events); err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, nil)
}

type teardownRequestBody struct {
	SessionID string                `json:"sessionId"`
	Status    store.ExecutionStatus `json:"status"`
	Summary   store.CycleSummary    `json:"summary"`
}

func (h *IngestHandler) Teardown(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	if !h.allow(w, r, p.OrgID, ratelimit.TierIngestLifecycle) {
		return
	}

	var body teardownRequestBody
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, apperror.Validation("malformed request body"))
		return
	}
	if err := h.manager.Teardown(r.Context(), p, ingest.TeardownRequest{
		SessionID: body.SessionID, Status: body.Status, Summary: body.Summary,
	}); err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, nil)
}
