package handlers

import (
	"net/http"

	"github.com/agnox/producer/internal/httpx"
	"github.com/agnox/producer/internal/store"
)

// PlansCatalogue implements GET /api/plans (public, part of C1's allow-list):
// a static listing of plan limits hard-coded here (no configuration is
// read), supplemented beyond
// spec.md's distillation per SPEC_FULL.md.
func PlansCatalogue(w http.ResponseWriter, r *http.Request) {
	httpx.OK(w, map[string]store.OrgLimits{
		string(store.PlanFree):       {MaxProjects: 3, MaxTestRuns: 500, MaxUsers: 5, MaxConcurrentRuns: 2},
		string(store.PlanTeam):       {MaxProjects: 20, MaxTestRuns: 5000, MaxUsers: 25, MaxConcurrentRuns: 10},
		string(store.PlanEnterprise): {MaxProjects: 0, MaxTestRuns: 0, MaxUsers: 0, MaxConcurrentRuns: 50},
	})
}
