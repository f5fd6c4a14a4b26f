package handlers

import (
	"net/http"

	"github.com/agnox/producer/internal/analytics"
	"github.com/agnox/producer/internal/apperror"
	"github.com/agnox/producer/internal/httpx"
	"github.com/agnox/producer/internal/identity"
)

// AnalyticsHandler implements GET /api/analytics/kpis (§4.11).
type AnalyticsHandler struct {
	aggregator *analytics.Aggregator
}

func NewAnalyticsHandler(a *analytics.Aggregator) *AnalyticsHandler {
	return &AnalyticsHandler{aggregator: a}
}

func (h *AnalyticsHandler) KPIs(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	kpis, err := h.aggregator.KPIs(r.Context(), p.OrgID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, kpis)
}
