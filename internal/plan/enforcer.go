// Package plan is the Plan Enforcer: it checks per-org counters against
// plan limits before admitting create operations (§4.2).
package plan

import (
	"context"
	"time"

	"github.com/agnox/producer/internal/apperror"
	"github.com/agnox/producer/internal/store"
)

type Action string

const (
	ActionCreateProject Action = "createProject"
	ActionRunTest       Action = "runTest"
	ActionInviteUser    Action = "inviteUser"
)

// Status mirrors §4.2's {used, limit, exceeded} admission result.
type Status struct {
	Used     int  `json:"used"`
	Limit    int  `json:"limit"`
	Exceeded bool `json:"exceeded"`
}

type Enforcer struct {
	store *store.Store
}

func NewEnforcer(s *store.Store) *Enforcer {
	return &Enforcer{store: s}
}

// Check computes {used, limit, exceeded} for the given action without
// admitting or rejecting — callers combine it with Admit.
func (e *Enforcer) Check(ctx context.Context, orgID string, action Action) (Status, error) {
	org, err := e.store.GetOrganization(ctx, orgID)
	if err != nil {
		return Status{}, apperror.Dependency("failed to load organization", err)
	}
	if org == nil {
		return Status{}, apperror.NotFound("organization not found")
	}

	var used, limit int
	switch action {
	case ActionRunTest:
		start, end := currentMonthBoundsUTC()
		used, err = e.store.CountExecutionsInMonth(ctx, orgID, start, end)
		limit = org.Limits.MaxTestRuns
	case ActionCreateProject:
		used, err = e.store.CountProjects(ctx, orgID)
		limit = org.Limits.MaxProjects
	case ActionInviteUser:
		used, err = e.store.CountUsers(ctx, orgID)
		limit = org.Limits.MaxUsers
	default:
		return Status{}, apperror.Validation("unknown plan action")
	}
	if err != nil {
		return Status{}, apperror.Dependency("failed to count usage", err)
	}

	return Status{Used: used, Limit: limit, Exceeded: used >= limit}, nil
}

// Admit is Check plus the 403 admission decision §4.2 requires.
func (e *Enforcer) Admit(ctx context.Context, orgID string, action Action) error {
	status, err := e.Check(ctx, orgID, action)
	if err != nil {
		return err
	}
	if status.Exceeded {
		return apperror.WithDetail(apperror.KindForbidden, "plan limit exceeded", map[string]interface{}{
			"limit":   status.Limit,
			"current": status.Used,
		})
	}
	return nil
}

func currentMonthBoundsUTC() (time.Time, time.Time) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return start, end
}
