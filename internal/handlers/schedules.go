package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	robfigcron "github.com/robfig/cron/v3"

	"github.com/agnox/producer/internal/apperror"
	"github.com/agnox/producer/internal/cron"
	"github.com/agnox/producer/internal/httpx"
	"github.com/agnox/producer/internal/identity"
	"github.com/agnox/producer/internal/store"
)

var cronParser = robfigcron.NewParser(
	robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow,
)

// ScheduleHandler implements §6's schedule CRUD, wired to C9's
// AddJob/RemoveJob so mutations take effect without a restart (§4.8).
type ScheduleHandler struct {
	store     *store.Store
	scheduler *cron.Scheduler
}

func NewScheduleHandler(s *store.Store, sch *cron.Scheduler) *ScheduleHandler {
	return &ScheduleHandler{store: s, scheduler: sch}
}

type createScheduleRequest struct {
	ProjectID      string `json:"projectId"`
	Name           string `json:"name"`
	CronExpression string `json:"cronExpression"`
	Environment    string `json:"environment"`
	Image          string `json:"image"`
	Folder         string `json:"folder"`
	BaseURL        string `json:"baseUrl"`
	IsActive       bool   `json:"isActive"`
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	var req createScheduleRequest
	if err := httpx.Decode(r, &req); err != nil || req.Name == "" || req.Image == "" {
		httpx.Error(w, apperror.Validation("name and image are required"))
		return
	}
	if _, err := cronParser.Parse(req.CronExpression); err != nil {
		httpx.Error(w, apperror.Validation("invalid cron expression"))
		return
	}

	sch := &store.Schedule{
		ID: uuid.NewString(), OrgID: p.OrgID, ProjectID: req.ProjectID, Name: req.Name,
		CronExpression: req.CronExpression, Environment: req.Environment,
		IsActive: req.IsActive, Image: req.Image, Folder: req.Folder, BaseURL: req.BaseURL,
	}
	if err := h.store.CreateSchedule(r.Context(), sch); err != nil {
		httpx.Error(w, apperror.Dependency("failed to create schedule", err))
		return
	}
	if sch.IsActive {
		if err := h.scheduler.AddJob(*sch); err != nil {
			httpx.Error(w, apperror.Validation(err.Error()))
			return
		}
	}
	httpx.Success(w, http.StatusCreated, map[string]interface{}{"schedule": sch})
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	schedules, err := h.store.ListSchedules(r.Context(), p.OrgID)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to list schedules", err))
		return
	}
	httpx.OK(w, schedules)
}

// Delete implements DELETE /api/schedules/:id: removes the durable row and
// the live cron registration.
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	scheduleID := mux.Vars(r)["id"]

	sch, err := h.store.GetSchedule(r.Context(), p.OrgID, scheduleID)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to load schedule", err))
		return
	}
	if sch == nil {
		httpx.Error(w, apperror.NotFound("schedule not found"))
		return
	}
	if err := h.store.DeleteSchedule(r.Context(), p.OrgID, scheduleID); err != nil {
		httpx.Error(w, apperror.Dependency("failed to delete schedule", err))
		return
	}
	h.scheduler.RemoveJob(scheduleID)
	httpx.Success(w, http.StatusOK, nil)
}
