package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/agnox/producer/internal/apperror"
	"github.com/agnox/producer/internal/httpx"
	"github.com/agnox/producer/internal/identity"
	"github.com/agnox/producer/internal/store"
)

// TestCycleHandler implements §6's test-cycle CRUD (any role reads,
// developer/admin writes), named by the route table and shaped by §4.7's
// TestCycle/CycleItem invariants.
type TestCycleHandler struct {
	store *store.Store
}

func NewTestCycleHandler(s *store.Store) *TestCycleHandler {
	return &TestCycleHandler{store: s}
}

type createCycleRequest struct {
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
}

func (h *TestCycleHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	var req createCycleRequest
	if err := httpx.Decode(r, &req); err != nil || req.Name == "" {
		httpx.Error(w, apperror.Validation("name is required"))
		return
	}
	cycle := &store.TestCycle{
		ID: uuid.NewString(), OrgID: p.OrgID, ProjectID: req.ProjectID,
		Name: req.Name, Status: store.CycleStatusPending, CreatedAt: time.Now(),
	}
	if err := h.store.CreateTestCycle(r.Context(), cycle); err != nil {
		httpx.Error(w, apperror.Dependency("failed to create test cycle", err))
		return
	}
	httpx.Success(w, http.StatusCreated, map[string]interface{}{"cycle": cycle})
}

func (h *TestCycleHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	cycles, err := h.store.ListTestCycles(r.Context(), p.OrgID)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to list test cycles", err))
		return
	}
	httpx.OK(w, cycles)
}

func (h *TestCycleHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	cycle, err := h.store.GetTestCycle(r.Context(), p.OrgID, mux.Vars(r)["id"])
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to load test cycle", err))
		return
	}
	if cycle == nil {
		httpx.Error(w, apperror.NotFound("test cycle not found"))
		return
	}
	httpx.OK(w, cycle)
}

type updateCycleRequest struct {
	Name   string            `json:"name"`
	Status store.CycleStatus `json:"status"`
}

func (h *TestCycleHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	cycle, err := h.store.GetTestCycle(r.Context(), p.OrgID, mux.Vars(r)["id"])
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to load test cycle", err))
		return
	}
	if cycle == nil {
		httpx.Error(w, apperror.NotFound("test cycle not found"))
		return
	}
	var req updateCycleRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, apperror.Validation("malformed request body"))
		return
	}
	if req.Name != "" {
		cycle.Name = req.Name
	}
	if req.Status != "" {
		cycle.Status = req.Status
	}
	if err := h.store.UpdateTestCycle(r.Context(), cycle); err != nil {
		httpx.Error(w, apperror.Dependency("failed to update test cycle", err))
		return
	}
	httpx.Success(w, http.StatusOK, map[string]interface{}{"cycle": cycle})
}

type addCycleItemRequest struct {
	Title      string             `json:"title"`
	Type       store.CycleItemType `json:"type"`
	TestCaseID string             `json:"testCaseId"`
}

// AddItem implements POST /api/test-cycles/:id/items, appending a
// MANUAL or AUTOMATED CycleItem.
func (h *TestCycleHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	cycle, err := h.store.GetTestCycle(r.Context(), p.OrgID, mux.Vars(r)["id"])
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to load test cycle", err))
		return
	}
	if cycle == nil {
		httpx.Error(w, apperror.NotFound("test cycle not found"))
		return
	}
	var req addCycleItemRequest
	if err := httpx.Decode(r, &req); err != nil || req.Title == "" {
		httpx.Error(w, apperror.Validation("title is required"))
		return
	}
	item := store.CycleItem{
		ID: uuid.NewString(), TestCaseID: req.TestCaseID, Type: req.Type,
		Title: req.Title, Status: string(store.CycleStatusPending),
	}
	cycle.Items = append(cycle.Items, item)
	if err := h.store.UpdateTestCycle(r.Context(), cycle); err != nil {
		httpx.Error(w, apperror.Dependency("failed to add cycle item", err))
		return
	}
	httpx.Success(w, http.StatusCreated, map[string]interface{}{"item": item})
}

// UpdateItem implements PUT /api/test-cycles/:id/items/:itemId, for manual
// step completion / status changes on a single CycleItem.
func (h *TestCycleHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	vars := mux.Vars(r)
	cycle, err := h.store.GetTestCycle(r.Context(), p.OrgID, vars["id"])
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to load test cycle", err))
		return
	}
	if cycle == nil {
		httpx.Error(w, apperror.NotFound("test cycle not found"))
		return
	}

	var req struct {
		Status      string      `json:"status"`
		ManualSteps []store.Step `json:"manualSteps"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, apperror.Validation("malformed request body"))
		return
	}

	found := false
	for i := range cycle.Items {
		if cycle.Items[i].ID == vars["itemId"] {
			if req.Status != "" {
				cycle.Items[i].Status = req.Status
			}
			if req.ManualSteps != nil {
				cycle.Items[i].ManualSteps = req.ManualSteps
			}
			found = true
			break
		}
	}
	if !found {
		httpx.Error(w, apperror.NotFound("cycle item not found"))
		return
	}
	if err := h.store.UpdateTestCycle(r.Context(), cycle); err != nil {
		httpx.Error(w, apperror.Dependency("failed to update cycle item", err))
		return
	}
	httpx.Success(w, http.StatusOK, map[string]interface{}{"cycle": cycle})
}
