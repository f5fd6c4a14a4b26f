package handlers

import (
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/agnox/producer/internal/apperror"
	"github.com/agnox/producer/internal/httpx"
	"github.com/agnox/producer/internal/identity"
	"github.com/agnox/producer/internal/plan"
	"github.com/agnox/producer/internal/store"
)

// ProjectHandler implements §6's project CRUD, plan-limited on create.
type ProjectHandler struct {
	store    *store.Store
	enforcer *plan.Enforcer
}

func NewProjectHandler(s *store.Store, e *plan.Enforcer) *ProjectHandler {
	return &ProjectHandler{store: s, enforcer: e}
}

type createProjectRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	var req createProjectRequest
	if err := httpx.Decode(r, &req); err != nil || req.Name == "" {
		httpx.Error(w, apperror.Validation("name is required"))
		return
	}
	if err := h.enforcer.Admit(r.Context(), p.OrgID, plan.ActionCreateProject); err != nil {
		httpx.Error(w, err)
		return
	}

	slug := orDefault(req.Slug, slugify(req.Name))
	existing, err := h.store.GetProjectBySlug(r.Context(), p.OrgID, slug)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to check project slug", err))
		return
	}
	if existing != nil {
		httpx.Error(w, apperror.Conflict("a project with this slug already exists"))
		return
	}

	project := &store.Project{
		ID: uuid.NewString(), OrgID: p.OrgID, Name: req.Name, Slug: slug, CreatedAt: time.Now(),
	}
	if err := h.store.CreateProject(r.Context(), project); err != nil {
		httpx.Error(w, apperror.Dependency("failed to create project", err))
		return
	}
	httpx.Success(w, http.StatusCreated, map[string]interface{}{"project": project})
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	projects, err := h.store.ListProjects(r.Context(), p.OrgID)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to list projects", err))
		return
	}
	httpx.OK(w, projects)
}

func (h *ProjectHandler) loadOwned(r *http.Request) (*identity.Principal, *store.Project, error) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		return nil, nil, apperror.Unauthorized("authentication required")
	}
	project, err := h.store.GetProject(r.Context(), p.OrgID, mux.Vars(r)["id"])
	if err != nil {
		return nil, nil, apperror.Dependency("failed to load project", err)
	}
	if project == nil {
		return nil, nil, apperror.NotFound("project not found")
	}
	return p, project, nil
}

func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	_, project, err := h.loadOwned(r)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	var req createProjectRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, apperror.Validation("malformed request body"))
		return
	}
	if req.Name != "" {
		project.Name = req.Name
	}
	if req.Slug != "" {
		project.Slug = req.Slug
	}
	if err := h.store.UpdateProject(r.Context(), project); err != nil {
		httpx.Error(w, apperror.Dependency("failed to update project", err))
		return
	}
	httpx.Success(w, http.StatusOK, map[string]interface{}{"project": project})
}

func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, project, err := h.loadOwned(r)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	if err := h.store.DeleteProject(r.Context(), p.OrgID, project.ID); err != nil {
		httpx.Error(w, apperror.Dependency("failed to delete project", err))
		return
	}
	httpx.Success(w, http.StatusOK, nil)
}

// ============================================================================
// Project env vars (secrets masked on every read path, per §3's invariant).
// ============================================================================

var envVarKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const maxEnvVarsPerProject = 50
const maxEnvVarValueLen = 4096

type EnvVarHandler struct {
	store  *store.Store
	crypto *store.EnvCrypto
}

func NewEnvVarHandler(s *store.Store, c *store.EnvCrypto) *EnvVarHandler {
	return &EnvVarHandler{store: s, crypto: c}
}

type envVarRequest struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	IsSecret bool   `json:"isSecret"`
}

func maskedEnvVar(v store.ProjectEnvVar) store.ProjectEnvVar {
	if v.IsSecret {
		v.Value = store.SecretMask
		v.IV, v.Ciphertext, v.Tag = "", "", ""
	}
	return v
}

func (h *EnvVarHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	projectID := mux.Vars(r)["id"]
	vars, err := h.store.ListEnvVars(r.Context(), p.OrgID, projectID)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to list env vars", err))
		return
	}
	masked := make([]store.ProjectEnvVar, len(vars))
	for i, v := range vars {
		masked[i] = maskedEnvVar(v)
	}
	httpx.OK(w, masked)
}

func (h *EnvVarHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	projectID := mux.Vars(r)["id"]

	var req envVarRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, apperror.Validation("malformed request body"))
		return
	}
	if !envVarKeyPattern.MatchString(req.Key) {
		httpx.Error(w, apperror.Validation("key must match [A-Za-z_][A-Za-z0-9_]*"))
		return
	}
	if len(req.Value) > maxEnvVarValueLen {
		httpx.Error(w, apperror.Validation("value exceeds 4096 characters"))
		return
	}

	count, err := h.store.CountEnvVars(r.Context(), p.OrgID, projectID)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to count env vars", err))
		return
	}
	if count >= maxEnvVarsPerProject {
		httpx.Error(w, apperror.WithDetail(apperror.KindForbidden, "env var limit exceeded", map[string]interface{}{
			"limit": maxEnvVarsPerProject, "current": count,
		}))
		return
	}

	existing, err := h.store.GetEnvVarByKey(r.Context(), p.OrgID, projectID, req.Key)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to check env var key", err))
		return
	}
	if existing != nil {
		httpx.Error(w, apperror.Conflict("an env var with this key already exists"))
		return
	}

	v := &store.ProjectEnvVar{
		ID: uuid.NewString(), OrgID: p.OrgID, ProjectID: projectID, Key: req.Key,
		IsSecret: req.IsSecret, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if req.IsSecret {
		iv, ct, tag, err := h.crypto.Seal(req.Value)
		if err != nil {
			httpx.Error(w, apperror.Dependency("failed to encrypt env var", err))
			return
		}
		v.IV, v.Ciphertext, v.Tag = iv, ct, tag
	} else {
		v.Value = req.Value
	}
	if err := h.store.CreateEnvVar(r.Context(), v); err != nil {
		httpx.Error(w, apperror.Dependency("failed to create env var", err))
		return
	}
	httpx.Success(w, http.StatusCreated, map[string]interface{}{"envVar": maskedEnvVar(*v)})
}

func (h *EnvVarHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	vars := mux.Vars(r)
	projectID, varID := vars["id"], vars["varId"]

	v, err := h.store.GetEnvVar(r.Context(), p.OrgID, projectID, varID)
	if err != nil {
		httpx.Error(w, apperror.Dependency("failed to load env var", err))
		return
	}
	if v == nil {
		httpx.Error(w, apperror.NotFound("env var not found"))
		return
	}

	var req envVarRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, apperror.Validation("malformed request body"))
		return
	}
	if len(req.Value) > maxEnvVarValueLen {
		httpx.Error(w, apperror.Validation("value exceeds 4096 characters"))
		return
	}

	v.IsSecret = req.IsSecret
	v.UpdatedAt = time.Now()
	if req.IsSecret {
		iv, ct, tag, err := h.crypto.Seal(req.Value)
		if err != nil {
			httpx.Error(w, apperror.Dependency("failed to encrypt env var", err))
			return
		}
		v.IV, v.Ciphertext, v.Tag = iv, ct, tag
		v.Value = ""
	} else {
		v.Value = req.Value
		v.IV, v.Ciphertext, v.Tag = "", "", ""
	}
	if err := h.store.UpdateEnvVar(r.Context(), v); err != nil {
		httpx.Error(w, apperror.Dependency("failed to update env var", err))
		return
	}
	httpx.Success(w, http.StatusOK, map[string]interface{}{"envVar": maskedEnvVar(*v)})
}

func (h *EnvVarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.Error(w, apperror.Unauthorized("authentication required"))
		return
	}
	vars := mux.Vars(r)
	projectID, varID := vars["id"], vars["varId"]

	if err := h.store.DeleteEnvVar(r.Context(), p.OrgID, projectID, varID); err != nil {
		httpx.Error(w, apperror.Dependency("failed to delete env var", err))
		return
	}
	httpx.Success(w, http.StatusOK, nil)
}
