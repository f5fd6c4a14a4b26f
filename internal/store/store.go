// Package store is the Tenant-Scoped Store: durable persistence for every
// org-owned entity, backed by Supabase's Postgres-REST client. Every
// list/get query is scoped by org_id so a lookup outside the caller's
// organization returns "not found" rather than leaking existence.
package store

import (
	"context"
	"fmt"
	"os"
	"time"

	supabase "github.com/supabase-community/supabase-go"
)

type Store struct {
	client *supabase.Client
}

func New() (*Store, error) {
	url := os.Getenv("SUPABASE_URL")
	key := os.Getenv("SUPABASE_SERVICE_KEY")
	if url == "" || key == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set")
	}
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &Store{client: client}, nil
}

func NewWithCredentials(url, key string) (*Store, error) {
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &Store{client: client}, nil
}

// ============================================================================
// ORGANIZATION
// ============================================================================

func (s *Store) CreateOrganization(ctx context.Context, org *Organization) error {
	var result []Organization
	_, err := s.client.From("organizations").Insert(org, false, "", "", "").ExecuteTo(&result)
	return err
}

func (s *Store) GetOrganization(ctx context.Context, orgID string) (*Organization, error) {
	var orgs []Organization
	_, err := s.client.From("organizations").
		Select("*", "", false).
		Eq("id", orgID).
		ExecuteTo(&orgs)
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	if len(orgs) == 0 {
		return nil, nil
	}
	return &orgs[0], nil
}

func (s *Store) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	var orgs []Organization
	_, err := s.client.From("organizations").
		Select("*", "", false).
		Eq("slug", slug).
		ExecuteTo(&orgs)
	if err != nil {
		return nil, fmt.Errorf("get organization by slug: %w", err)
	}
	if len(orgs) == 0 {
		return nil, nil
	}
	return &orgs[0], nil
}

func (s *Store) UpdateOrganization(ctx context.Context, org *Organization) error {
	var result []Organization
	_, err := s.client.From("organizations").
		Update(org, "", "").
		Eq("id", org.ID).
		ExecuteTo(&result)
	return err
}

// ============================================================================
// USER
// ============================================================================

func (s *Store) CreateUser(ctx context.Context, u *User) error {
	var result []User
	_, err := s.client.From("users").Insert(u, false, "", "", "").ExecuteTo(&result)
	return err
}

func (s *Store) GetUser(ctx context.Context, orgID, userID string) (*User, error) {
	var users []User
	_, err := s.client.From("users").
		Select("*", "", false).
		Eq("id", userID).
		Eq("org_id", orgID).
		ExecuteTo(&users)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

// GetUserByEmail looks up a user across all orgs — email is globally unique.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var users []User
	_, err := s.client.From("users").
		Select("*", "", false).
		Eq("email", email).
		ExecuteTo(&users)
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

func (s *Store) ListUsers(ctx context.Context, orgID string) ([]User, error) {
	var users []User
	_, err := s.client.From("users").
		Select("*", "", false).
		Eq("org_id", orgID).
		Order("created_at", nil).
		ExecuteTo(&users)
	return users, err
}

func (s *Store) UpdateUser(ctx context.Context, u *User) error {
	var result []User
	_, err := s.client.From("users").
		Update(u, "", "").
		Eq("id", u.ID).
		Eq("org_id", u.OrgID).
		ExecuteTo(&result)
	return err
}

func (s *Store) CountUsers(ctx context.Context, orgID string) (int, error) {
	users, err := s.ListUsers(ctx, orgID)
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

// CountAdmins returns the number of admins in an org (any status), used to
// enforce the "every org has >=1 admin" invariant at role-change time.
func (s *Store) CountAdmins(ctx context.Context, orgID string) (int, error) {
	var users []User
	_, err := s.client.From("users").
		Select("*", "", false).
		Eq("org_id", orgID).
		Eq("role", string(RoleAdmin)).
		ExecuteTo(&users)
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return len(users), nil
}

// ============================================================================
// PROJECT
// ============================================================================

func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	var result []Project
	_, err := s.client.From("projects").Insert(p, false, "", "", "").ExecuteTo(&result)
	return err
}

func (s *Store) GetProject(ctx context.Context, orgID, projectID string) (*Project, error) {
	var projects []Project
	_, err := s.client.From("projects").
		Select("*", "", false).
		Eq("id", projectID).
		Eq("org_id", orgID).
		ExecuteTo(&projects)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if len(projects) == 0 {
		return nil, nil
	}
	return &projects[0], nil
}

func (s *Store) GetProjectBySlug(ctx context.Context, orgID, slug string) (*Project, error) {
	var projects []Project
	_, err := s.client.From("projects").
		Select("*", "", false).
		Eq("org_id", orgID).
		Eq("slug", slug).
		ExecuteTo(&projects)
	if err != nil {
		return nil, fmt.Errorf("get project by slug: %w", err)
	}
	if len(projects) == 0 {
		return nil, nil
	}
	return &projects[0], nil
}

func (s *Store) ListProjects(ctx context.Context, orgID string) ([]Project, error) {
	var projects []Project
	_, err := s.client.From("projects").
		Select("*", "", false).
		Eq("org_id", orgID).
		Order("created_at", nil).
		ExecuteTo(&projects)
	return projects, err
}

func (s *Store) UpdateProject(ctx context.Context, p *Project) error {
	var result []Project
	_, err := s.client.From("projects").
		Update(p, "", "").
		Eq("id", p.ID).
		Eq("org_id", p.OrgID).
		ExecuteTo(&result)
	return err
}

func (s *Store) DeleteProject(ctx context.Context, orgID, projectID string) error {
	var result []Project
	_, err := s.client.From("projects").
		Delete("", "").
		Eq("id", projectID).
		Eq("org_id", orgID).
		ExecuteTo(&result)
	return err
}

func (s *Store) CountProjects(ctx context.Context, orgID string) (int, error) {
	projects, err := s.ListProjects(ctx, orgID)
	if err != nil {
		return 0, err
	}
	return len(projects), nil
}

// ============================================================================
// PROJECT ENV VAR
// ============================================================================

func (s *Store) CreateEnvVar(ctx context.Context, v *ProjectEnvVar) error {
	var result []ProjectEnvVar
	_, err := s.client.From("project_env_vars").Insert(v, false, "", "", "").ExecuteTo(&result)
	return err
}

func (s *Store) GetEnvVar(ctx context.Context, orgID, projectID, varID string) (*ProjectEnvVar, error) {
	var vars []ProjectEnvVar
	_, err := s.client.From("project_env_vars").
		Select("*", "", false).
		Eq("id", varID).
		Eq("project_id", projectID).
		Eq("org_id", orgID).
		ExecuteTo(&vars)
	if err != nil {
		return nil, fmt.Errorf("get env var: %w", err)
	}
	if len(vars) == 0 {
		return nil, nil
	}
	return &vars[0], nil
}

func (s *Store) GetEnvVarByKey(ctx context.Context, orgID, projectID, key string) (*ProjectEnvVar, error) {
	var vars []ProjectEnvVar
	_, err := s.client.From("project_env_vars").
		Select("*", "", false).
		Eq("project_id", projectID).
		Eq("org_id", orgID).
		Eq("key", key).
		ExecuteTo(&vars)
	if err != nil {
		return nil, fmt.Errorf("get env var by key: %w", err)
	}
	if len(vars) == 0 {
		return nil, nil
	}
	return &vars[0], nil
}

func (s *Store) ListEnvVars(ctx context.Context, orgID, projectID string) ([]ProjectEnvVar, error) {
	var vars []ProjectEnvVar
	_, err := s.client.From("project_env_vars").
		Select("*", "", false).
		Eq("project_id", projectID).
		Eq("org_id", orgID).
		ExecuteTo(&vars)
	return vars, err
}

func (s *Store) UpdateEnvVar(ctx context.Context, v *ProjectEnvVar) error {
	var result []ProjectEnvVar
	_, err := s.client.From("project_env_vars").
		Update(v, "", "").
		Eq("id", v.ID).
		Eq("org_id", v.OrgID).
		ExecuteTo(&result)
	return err
}

func (s *Store) DeleteEnvVar(ctx context.Context, orgID, projectID, varID string) error {
	var result []ProjectEnvVar
	_, err := s.client.From("project_env_vars").
		Delete("", "").
		Eq("id", varID).
		Eq("project_id", projectID).
		Eq("org_id", orgID).
		ExecuteTo(&result)
	return err
}

func (s *Store) CountEnvVars(ctx context.Context, orgID, projectID string) (int, error) {
	vars, err := s.ListEnvVars(ctx, orgID, projectID)
	if err != nil {
		return 0, err
	}
	return len(vars), nil
}

// ============================================================================
// EXECUTION
// ============================================================================

// UpsertExecution writes the Execution keyed by (task_id, org_id); safe to
// call twice for the same taskId (idempotent dispatch).
func (s *Store) UpsertExecution(ctx context.Context, e *Execution) error {
	var result []Execution
	_, err := s.client.From("executions").
		Upsert(e, "task_id,org_id", "", "").
		ExecuteTo(&result)
	return err
}

func (s *Store) GetExecution(ctx context.Context, orgID, taskID string) (*Execution, error) {
	var execs []Execution
	_, err := s.client.From("executions").
		Select("*", "", false).
		Eq("task_id", taskID).
		Eq("org_id", orgID).
		ExecuteTo(&execs)
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	if len(execs) == 0 {
		return nil, nil
	}
	return &execs[0], nil
}

func (s *Store) ListExecutions(ctx context.Context, orgID string, limit, offset int) ([]Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var execs []Execution
	_, err := s.client.From("executions").
		Select("*", "", false).
		Eq("org_id", orgID).
		Order("start_time", nil).
		Range(offset, offset+limit-1, "").
		ExecuteTo(&execs)
	return execs, err
}

func (s *Store) UpdateExecution(ctx context.Context, e *Execution) error {
	var result []Execution
	_, err := s.client.From("executions").
		Update(e, "", "").
		Eq("task_id", e.TaskID).
		Eq("org_id", e.OrgID).
		ExecuteTo(&result)
	return err
}

func (s *Store) DeleteExecution(ctx context.Context, orgID, taskID string) error {
	var result []Execution
	_, err := s.client.From("executions").
		Delete("", "").
		Eq("task_id", taskID).
		Eq("org_id", orgID).
		ExecuteTo(&result)
	return err
}

// CountExecutionsInMonth counts executions in [monthStart, monthEnd) for plan
// enforcement; callers pass UTC calendar-month boundaries.
func (s *Store) CountExecutionsInMonth(ctx context.Context, orgID string, monthStart, monthEnd time.Time) (int, error) {
	var execs []Execution
	_, err := s.client.From("executions").
		Select("*", "", false).
		Eq("org_id", orgID).
		Gte("start_time", monthStart.Format(time.RFC3339)).
		Lt("start_time", monthEnd.Format(time.RFC3339)).
		ExecuteTo(&execs)
	if err != nil {
		return 0, fmt.Errorf("count executions in month: %w", err)
	}
	return len(execs), nil
}

// ExecutionsSince returns executions with start_time >= since, for the
// Analytics Aggregator's monthly rollup.
func (s *Store) ExecutionsSince(ctx context.Context, orgID string, since time.Time) ([]Execution, error) {
	var execs []Execution
	_, err := s.client.From("executions").
		Select("*", "", false).
		Eq("org_id", orgID).
		Gte("start_time", since.Format(time.RFC3339)).
		ExecuteTo(&execs)
	return execs, err
}

// ============================================================================
// TEST CYCLE
// ============================================================================

func (s *Store) CreateTestCycle(ctx context.Context, c *TestCycle) error {
	var result []TestCycle
	_, err := s.client.From("test_cycles").Insert(c, false, "", "", "").ExecuteTo(&result)
	return err
}

func (s *Store) GetTestCycle(ctx context.Context, orgID, cycleID string) (*TestCycle, error) {
	var cycles []TestCycle
	_, err := s.client.From("test_cycles").
		Select("*", "", false).
		Eq("id", cycleID).
		Eq("org_id", orgID).
		ExecuteTo(&cycles)
	if err != nil {
		return nil, fmt.Errorf("get test cycle: %w", err)
	}
	if len(cycles) == 0 {
		return nil, nil
	}
	return &cycles[0], nil
}

func (s *Store) ListTestCycles(ctx context.Context, orgID string) ([]TestCycle, error) {
	var cycles []TestCycle
	_, err := s.client.From("test_cycles").
		Select("*", "", false).
		Eq("org_id", orgID).
		Order("created_at", nil).
		ExecuteTo(&cycles)
	return cycles, err
}

func (s *Store) UpdateTestCycle(ctx context.Context, c *TestCycle) error {
	var result []TestCycle
	_, err := s.client.From("test_cycles").
		Update(c, "", "").
		Eq("id", c.ID).
		Eq("org_id", c.OrgID).
		ExecuteTo(&result)
	return err
}

// ============================================================================
// SCHEDULE
// ============================================================================

func (s *Store) CreateSchedule(ctx context.Context, sch *Schedule) error {
	var result []Schedule
	_, err := s.client.From("schedules").Insert(sch, false, "", "", "").ExecuteTo(&result)
	return err
}

func (s *Store) GetSchedule(ctx context.Context, orgID, scheduleID string) (*Schedule, error) {
	var schedules []Schedule
	_, err := s.client.From("schedules").
		Select("*", "", false).
		Eq("id", scheduleID).
		Eq("org_id", orgID).
		ExecuteTo(&schedules)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	if len(schedules) == 0 {
		return nil, nil
	}
	return &schedules[0], nil
}

func (s *Store) ListSchedules(ctx context.Context, orgID string) ([]Schedule, error) {
	var schedules []Schedule
	_, err := s.client.From("schedules").
		Select("*", "", false).
		Eq("org_id", orgID).
		ExecuteTo(&schedules)
	return schedules, err
}

// ListActiveSchedules returns every active schedule across all orgs, loaded
// once at startup by the Cron Scheduler.
func (s *Store) ListActiveSchedules(ctx context.Context) ([]Schedule, error) {
	var schedules []Schedule
	_, err := s.client.From("schedules").
		Select("*", "", false).
		Eq("is_active", "true").
		ExecuteTo(&schedules)
	return schedules, err
}

func (s *Store) DeleteSchedule(ctx context.Context, orgID, scheduleID string) error {
	var result []Schedule
	_, err := s.client.From("schedules").
		Delete("", "").
		Eq("id", scheduleID).
		Eq("org_id", orgID).
		ExecuteTo(&result)
	return err
}

// ============================================================================
// INGEST SESSION ARCHIVE
// ============================================================================

func (s *Store) ArchiveIngestSession(ctx context.Context, archive *IngestSessionArchive) error {
	var result []IngestSessionArchive
	_, err := s.client.From("ingest_session_archives").
		Insert(archive, false, "", "", "").
		ExecuteTo(&result)
	return err
}

// ============================================================================
// API KEY
// ============================================================================

func (s *Store) CreateAPIKey(ctx context.Context, key *APIKey) error {
	var result []APIKey
	_, err := s.client.From("api_keys").Insert(key, false, "", "", "").ExecuteTo(&result)
	return err
}

func (s *Store) GetAPIKeyByKeyID(ctx context.Context, keyID string) (*APIKey, error) {
	var keys []APIKey
	_, err := s.client.From("api_keys").
		Select("*", "", false).
		Eq("key_id", keyID).
		ExecuteTo(&keys)
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return &keys[0], nil
}

func (s *Store) ListAPIKeys(ctx context.Context, orgID string) ([]APIKey, error) {
	var keys []APIKey
	_, err := s.client.From("api_keys").
		Select("*", "", false).
		Eq("org_id", orgID).
		ExecuteTo(&keys)
	return keys, err
}

func (s *Store) DeleteAPIKey(ctx context.Context, orgID, keyID string) error {
	var result []APIKey
	_, err := s.client.From("api_keys").
		Delete("", "").
		Eq("key_id", keyID).
		Eq("org_id", orgID).
		ExecuteTo(&result)
	return err
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, keyID string, when time.Time) {
	var result []APIKey
	// Best-effort: last-used tracking never blocks the request path.
	s.client.From("api_keys").
		Update(map[string]interface{}{"last_used_at": when.Format(time.RFC3339)}, "", "").
		Eq("key_id", keyID).
		ExecuteTo(&result)
}
