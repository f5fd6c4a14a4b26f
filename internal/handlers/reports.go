package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/agnox/producer/internal/apperror"
	"github.com/agnox/producer/internal/httpx"
	"github.com/agnox/producer/internal/reporttoken"
)

// ReportMiddleware gates static report assets under /reports/{orgId}/{taskId}/...
// per §4.9: accepts a query-string token or the scoped cookie, and sets the
// cookie on first successful query-string verification.
type ReportMiddleware struct {
	tokens *reporttoken.Service
	ttl    time.Duration
}

func NewReportMiddleware(tokens *reporttoken.Service, ttl time.Duration) *ReportMiddleware {
	return &ReportMiddleware{tokens: tokens, ttl: ttl}
}

// Wrap extracts (orgId, taskId) from the URL path and validates the
// report token before handing off to next (typically an http.FileServer).
func (m *ReportMiddleware) Wrap(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, taskID, ok := parseReportPath(r.URL.Path)
		if !ok {
			httpx.Error(w, apperror.Validation("malformed report path"))
			return
		}

		token := reporttoken.ExtractToken(r)
		if token == "" {
			httpx.Error(w, apperror.Unauthorized("missing report token"))
			return
		}
		if _, err := m.tokens.Verify(token, orgID, taskID); err != nil {
			httpx.Error(w, apperror.Unauthorized("invalid or expired report token"))
			return
		}

		if r.URL.Query().Get("token") != "" {
			reporttoken.SetScopeCookie(w, orgID, taskID, token, m.ttl)
		}
		next.ServeHTTP(w, r)
	}
}

// parseReportPath splits "/reports/{orgId}/{taskId}/..." into its two
// scoping segments.
func parseReportPath(path string) (orgID, taskID string, ok bool) {
	trimmed := strings.TrimPrefix(path, "/reports/")
	parts := strings.SplitN(trimmed, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
