package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/agnox/producer/internal/apperror"
	"github.com/agnox/producer/internal/httpx"
	"github.com/agnox/producer/internal/identity"
	"github.com/agnox/producer/internal/plan"
	"github.com/agnox/producer/internal/store"
)

// UserHandler implements the org's user roster: listing, plan-limited
// invitation, and role changes guarded by the "every org has >= 1 admin"
// invariant from spec.md §3.
type UserHandler struct {
	store    *store.Store
	enforcer *plan.Enforcer
}

func NewUserHandler(s *store.Store, e *plan.Enforcer) *UserHandler {
	return &UserHandler{store: s, enforcer: e}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	users, err := h.store.ListUsers(r.Context(), p.OrgID)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to list users", err))
		return
	}
	out := make([]map[string]interface{}, 0, len(users))
	for i := range users {
		out = append(out, publicUser(&users[i]))
	}
	httpx.OK(w, out)
}

type inviteRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Invite admits a new user against the Plan Enforcer's inviteUser action
// (§4.2) before creating the row.
func (h *UserHandler) Invite(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	var req inviteRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, apperror.Validation("malformed request body"))
		return
	}
	if req.Email == "" || len(req.Password) < 8 {
		httpx.Error(w, apperror.Validation("email and an 8+ character password are required"))
		return
	}
	role := store.Role(req.Role)
	switch role {
	case store.RoleAdmin, store.RoleDeveloper, store.RoleViewer:
	default:
		role = store.RoleViewer
	}

	if err := h.enforcer.Admit(r.Context(), p.OrgID, plan.ActionInviteUser); err != nil {
		httpx.Error(w, err)
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

	user := &store.User{
		ID:             uuid.NewString(),
		OrgID:          p.OrgID,
		Email:          req.Email,
		Name:           orDefault(req.Name, req.Email),
		HashedPassword: string(hash),
		Role:           role,
		Status:         "active",
		CreatedAt:      time.Now(),
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		httpx.Error(w, apperror.Dependency("failed to create user", err))
		return
	}
	httpx.Success(w, http.StatusCreated, publicUser(user))
}

type roleChangeRequest struct {
	Role string `json:"role"`
}

// UpdateRole changes a user's role, rejecting the sole remaining admin's
// attempt to demote themselves (scenario 3 in spec.md §8).
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	targetID := mux.Vars(r)["id"]

	var req roleChangeRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, apperror.Validation("malformed request body"))
		return
	}
	newRole := store.Role(req.Role)
	switch newRole {
	case store.RoleAdmin, store.RoleDeveloper, store.RoleViewer:
	default:
		httpx.Error(w, apperror.Validation("role must be one of admin, developer, viewer"))
		return
	}

	target, err := h.store.GetUser(r.Context(), p.OrgID, targetID)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to load user", err))
		return
	}
	if target == nil {
		httpx.Error(w, apperror.NotFound("user not found"))
		return
	}

	if target.ID == p.UserID && target.Role == store.RoleAdmin && newRole != store.RoleAdmin {
		admins, err := h.store.CountAdmins(r.Context(), p.OrgID)
		if err != nil {
			httpx.Error(w, apperror.Dependency("failed to count admins", err))
			return
		}
		if admins <= 1 {
			httpx.Error(w, apperror.Forbidden("you cannot change your own role"))
			return
		}
	}

	target.Role = newRole
	if err := h.store.UpdateUser(r.Context(), target); err != nil {
		httpx.Error(w, apperror.Dependency("failed to update user", err))
		return
	}
	httpx.OK(w, publicUser(target))
}
