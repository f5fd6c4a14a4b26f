package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agnox/producer/internal/store"
)

func handlerThatOKs(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func withPrincipal(p *Principal) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if p != nil {
		r = r.WithContext(WithPrincipal(r.Context(), p))
	}
	return r
}

func TestRequireRole_NoPrincipal401(t *testing.T) {
	w := httptest.NewRecorder()
	AdminOnly(handlerThatOKs)(w, withPrincipal(nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole_WrongRole403(t *testing.T) {
	w := httptest.NewRecorder()
	AdminOnly(handlerThatOKs)(w, withPrincipal(&Principal{UserID: "u1", OrgID: "o1", Role: store.RoleViewer}))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRole_AllowedRolePasses(t *testing.T) {
	w := httptest.NewRecorder()
	AdminOnly(handlerThatOKs)(w, withPrincipal(&Principal{UserID: "u1", OrgID: "o1", Role: store.RoleAdmin}))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeveloperOrAdmin_AcceptsBothRoles(t *testing.T) {
	for _, role := range []store.Role{store.RoleAdmin, store.RoleDeveloper} {
		w := httptest.NewRecorder()
		DeveloperOrAdmin(handlerThatOKs)(w, withPrincipal(&Principal{UserID: "u1", OrgID: "o1", Role: role}))
		assert.Equal(t, http.StatusOK, w.Code, "role %s should be allowed", role)
	}

	w := httptest.NewRecorder()
	DeveloperOrAdmin(handlerThatOKs)(w, withPrincipal(&Principal{UserID: "u1", OrgID: "o1", Role: store.RoleViewer}))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWorkerAuthenticator_RejectsWrongSecret(t *testing.T) {
	auth := NewWorkerAuthenticator("correct-secret", false)
	r := httptest.NewRequest(http.MethodPost, "/executions/update", nil)
	r.Header.Set("Authorization", "Bearer wrong-secret")

	w := httptest.NewRecorder()
	auth.RequireWorkerSecret(handlerThatOKs)(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWorkerAuthenticator_AcceptsCorrectSecret(t *testing.T) {
	auth := NewWorkerAuthenticator("correct-secret", false)
	r := httptest.NewRequest(http.MethodPost, "/executions/update", nil)
	r.Header.Set("Authorization", "Bearer correct-secret")

	w := httptest.NewRecorder()
	auth.RequireWorkerSecret(handlerThatOKs)(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWorkerAuthenticator_TransitionFlagAcceptsWithoutSecret(t *testing.T) {
	auth := NewWorkerAuthenticator("correct-secret", true)
	r := httptest.NewRequest(http.MethodPost, "/executions/update", nil)

	w := httptest.NewRecorder()
	auth.RequireWorkerSecret(handlerThatOKs)(w, r)
	assert.Equal(t, http.StatusOK, w.Code, "transition flag should let unauthenticated callbacks through with a warning")
}
