package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/agnox/producer/internal/apperror"
	"github.com/agnox/producer/internal/httpx"
	"github.com/agnox/producer/internal/identity"
)

// APIKeyHandler implements the supplemented API-key lifecycle endpoints
// (POST/GET/DELETE /api/keys): spec.md assumes API keys exist for §4.7's
// ingest auth but never specifies their management surface.
type APIKeyHandler struct {
	issuer *identity.APIKeyIssuer
}

func NewAPIKeyHandler(issuer *identity.APIKeyIssuer) *APIKeyHandler {
	return &APIKeyHandler{issuer: issuer}
}

type createAPIKeyRequest struct {
	Name string `json:"name"`
}

// Create mints a new key and returns its plaintext exactly once.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	var req createAPIKeyRequest
	if err := httpx.Decode(r, &req); err != nil || req.Name == "" {
		httpx.Error(w, apperror.Validation("name is required"))
		return
	}
	plaintext, key, err := h.issuer.Create(r.Context(), p.OrgID, req.Name)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to create api key", err))
		return
	}
	httpx.Success(w, http.StatusCreated, map[string]interface{}{
		"key":      plaintext,
		"keyId":    key.KeyID,
		"name":     key.Name,
		"createdAt": key.CreatedAt,
	})
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	keys, err := h.issuer.Store().ListAPIKeys(r.Context(), p.OrgID)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to list api keys", err))
		return
	}
	httpx.OK(w, keys)
}

func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	keyID := mux.Vars(r)["id"]
	if err := h.issuer.Store().DeleteAPIKey(r.Context(), p.OrgID, keyID); err != nil {
		httpx.Error(w, apperror.Dependency("failed to delete api key", err))
		return
	}
	httpx.Success(w, http.StatusOK, nil)
}
