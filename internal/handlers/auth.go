// Package handlers wires the HTTP surface onto the Producer's internal
// components, following the teacher's decode/branch/respond handler shape
// (cmd/api/main.go's HandleGovern/HandleEscrowRelease).
package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/agnox/producer/internal/apperror"
	"github.com/agnox/producer/internal/httpx"
	"github.com/agnox/producer/internal/identity"
	"github.com/agnox/producer/internal/store"
)

// AuthHandler implements §6's signup/login/me surface: named in spec.md's
// endpoint table but left to the Data Model's invariants for detail (first
// user in an org becomes admin, bcrypt-hashed passwords, JWT issuance).
type AuthHandler struct {
	store *store.Store
	jwt   *identity.JWTIssuer
}

func NewAuthHandler(s *store.Store, jwt *identity.JWTIssuer) *AuthHandler {
	return &AuthHandler{store: s, jwt: jwt}
}

type signupRequest struct {
	OrgName  string `json:"orgName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Signup creates an org plus its first admin user, per the Organization/
// User invariants in spec.md §3.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, apperror.Validation("malformed request body"))
		return
	}
	if req.OrgName == "" || req.Email == "" || len(req.Password) < 8 {
		httpx.Error(w, apperror.Validation("orgName, email, and an 8+ character password are required"))
		return
	}

	existing, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to check existing user", err))
		return
	}
	if existing != nil {
		httpx.Error(w, apperror.Conflict("an account with this email already exists"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to hash password", err))
		return
	}

	org := &store.Organization{
		ID:   uuid.NewString(),
		Name: req.OrgName,
		Slug: slugify(req.OrgName),
		Plan: store.PlanFree,
		Limits: store.OrgLimits{
			MaxProjects: 3, MaxTestRuns: 500, MaxUsers: 5, MaxConcurrentRuns: 2,
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := h.store.CreateOrganization(r.Context(), org); err != nil {
		httpx.Error(w, apperror.Dependency("failed to create organization", err))
		return
	}

	user := &store.User{
		ID:             uuid.NewString(),
		OrgID:          org.ID,
		Email:          req.Email,
		Name:           orDefault(req.Name, req.Email),
		HashedPassword: string(hash),
		Role:           store.RoleAdmin,
		Status:         "active",
		CreatedAt:      time.Now(),
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		httpx.Error(w, apperror.Dependency("failed to create user", err))
		return
	}

	token, err := h.jwt.Issue(user.ID, org.ID, user.Role)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to issue token", err))
		return
	}

	httpx.Success(w, http.StatusCreated, map[string]interface{}{
		"token": token,
		"user":  publicUser(user),
		"org":   org,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials and issues a fresh bearer JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, apperror.Validation("malformed request body"))
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to load user", err))
		return
	}
	if user == nil {
		httpx.Error(w, apperror.Unauthorized("invalid email or password"))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		httpx.Error(w, apperror.Unauthorized("invalid email or password"))
		return
	}

	token, err := h.jwt.Issue(user.ID, user.OrgID, user.Role)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to issue token", err))
		return
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := h.store.UpdateUser(r.Context(), user); err != nil {
		httpx.Error(w, apperror.Dependency("failed to record login", err))
		return
	}

	httpx.Success(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  publicUser(user),
	})
}

// Me returns the authenticated Principal plus its owning organization.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	org, err := h.store.GetOrganization(r.Context(), p.OrgID)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to load organization", err))
		return
	}
	httpx.OK(w, map[string]interface{}{
		"userId": p.UserID,
		"orgId":  p.OrgID,
		"role":   p.Role,
		"org":    org,
	})
}

func publicUser(u *store.User) map[string]interface{} {
	return map[string]interface{}{
		"id": u.ID, "orgId": u.OrgID, "email": u.Email, "name": u.Name, "role": u.Role, "status": u.Status,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func slugify(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ' || r == '-' || r == '_':
			out = append(out, '-')
		}
	}
	return string(out) + "-" + uuid.NewString()[:8]
}
