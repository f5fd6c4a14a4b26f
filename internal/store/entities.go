package store

import "time"

// ============================================================================
// DATA MODELS — durable, org-scoped entities (Tenant-Scoped Store)
// ============================================================================

type Plan string

const (
	PlanFree       Plan = "free"
	PlanTeam       Plan = "team"
	PlanEnterprise Plan = "enterprise"
)

type OrgLimits struct {
	MaxProjects      int `json:"maxProjects"`
	MaxTestRuns      int `json:"maxTestRuns"`
	MaxUsers         int `json:"maxUsers"`
	MaxConcurrentRuns int `json:"maxConcurrentRuns"`
}

// Organization is the tenant root; it owns every other entity.
type Organization struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Slug      string                 `json:"slug"`
	Plan      Plan                   `json:"plan"`
	Limits    OrgLimits              `json:"limits"`
	Features  map[string]interface{} `json:"features"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
	RoleViewer    Role = "viewer"
)

type User struct {
	ID             string     `json:"id"`
	OrgID          string     `json:"org_id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	HashedPassword string     `json:"hashed_password"`
	Role           Role       `json:"role"`
	Status         string     `json:"status"`
	LastLoginAt    *time.Time `json:"last_login_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

type Project struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// ProjectEnvVar stores either a plaintext Value or an encrypted secret
// payload (IV/ciphertext/tag, envcrypto.go). Never both.
type ProjectEnvVar struct {
	ID         string    `json:"id"`
	OrgID      string    `json:"org_id"`
	ProjectID  string    `json:"project_id"`
	Key        string    `json:"key"`
	Value      string    `json:"value,omitempty"`
	IsSecret   bool      `json:"is_secret"`
	IV         string    `json:"iv,omitempty"`
	Ciphertext string    `json:"ciphertext,omitempty"`
	Tag        string    `json:"tag,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "PENDING"
	StatusRunning   ExecutionStatus = "RUNNING"
	StatusPassed    ExecutionStatus = "PASSED"
	StatusFailed    ExecutionStatus = "FAILED"
	StatusError     ExecutionStatus = "ERROR"
	StatusUnstable  ExecutionStatus = "UNSTABLE"
	StatusAnalyzing ExecutionStatus = "ANALYZING"
)

type ExecutionSource string

const (
	SourceAgnoxHosted ExecutionSource = "agnox-hosted"
	SourceExternalCI  ExecutionSource = "external-ci"
)

// SentinelImage marks Executions that never trigger a container run.
const SentinelImage = "external-ci"

type ExecutionConfig struct {
	Environment   string            `json:"environment"`
	BaseURL       string            `json:"baseUrl,omitempty"`
	RetryAttempts int               `json:"retryAttempts"`
	EnvVars       map[string]string `json:"envVars,omitempty"`
}

type TestResult struct {
	TestID    string  `json:"testId"`
	Status    string  `json:"status"`
	Duration  float64 `json:"duration"`
	Error     string  `json:"error,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

type IngestMeta struct {
	Framework       string `json:"framework"`
	ReporterVersion string `json:"reporterVersion"`
}

type Execution struct {
	TaskID      string          `json:"task_id"`
	OrgID       string          `json:"org_id"`
	Source      ExecutionSource `json:"source"`
	Status      ExecutionStatus `json:"status"`
	Image       string          `json:"image"`
	Command     string          `json:"command"`
	Folder      string          `json:"folder,omitempty"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     *time.Time      `json:"end_time,omitempty"`
	Config      ExecutionConfig `json:"config"`
	Tests       []TestResult    `json:"tests,omitempty"`
	Output      string          `json:"output,omitempty"`
	Trigger     string          `json:"trigger,omitempty"`
	GroupName   string          `json:"group_name,omitempty"`
	BatchID     string          `json:"batch_id,omitempty"`
	CycleID     string          `json:"cycle_id,omitempty"`
	CycleItemID string          `json:"cycle_item_id,omitempty"`
	IngestMeta  *IngestMeta     `json:"ingest_meta,omitempty"`
}

type CycleItemType string

const (
	CycleItemManual    CycleItemType = "MANUAL"
	CycleItemAutomated CycleItemType = "AUTOMATED"
)

type Step struct {
	Description string `json:"description"`
	Done        bool   `json:"done"`
}

type CycleItem struct {
	ID          string        `json:"id"`
	TestCaseID  string        `json:"testCaseId"`
	Type        CycleItemType `json:"type"`
	Title       string        `json:"title"`
	Status      string        `json:"status"`
	ExecutionID string        `json:"executionId,omitempty"`
	ManualSteps []Step        `json:"manualSteps,omitempty"`
}

type CycleSummary struct {
	Total          int     `json:"total"`
	Passed         int     `json:"passed"`
	Failed         int     `json:"failed"`
	AutomationRate float64 `json:"automationRate"`
}

type CycleStatus string

const (
	CycleStatusPending   CycleStatus = "PENDING"
	CycleStatusRunning   CycleStatus = "RUNNING"
	CycleStatusCompleted CycleStatus = "COMPLETED"
)

type TestCycle struct {
	ID        string       `json:"id"`
	OrgID     string       `json:"org_id"`
	ProjectID string       `json:"project_id"`
	Name      string       `json:"name"`
	Status    CycleStatus  `json:"status"`
	Items     []CycleItem  `json:"items"`
	Summary   CycleSummary `json:"summary"`
	CreatedAt time.Time    `json:"created_at"`
}

type Schedule struct {
	ID             string `json:"id"`
	OrgID          string `json:"org_id"`
	ProjectID      string `json:"project_id,omitempty"`
	Name           string `json:"name"`
	CronExpression string `json:"cron_expression"`
	Environment    string `json:"environment"`
	IsActive       bool   `json:"is_active"`
	Image          string `json:"image"`
	Folder         string `json:"folder"`
	BaseURL        string `json:"base_url,omitempty"`
}

// IngestSessionArchive is the durable record written at teardown for a
// transient IngestSession (the live copy lives only in cache).
type IngestSessionArchive struct {
	SessionID       string    `json:"session_id"`
	OrgID           string    `json:"org_id"`
	ProjectID       string    `json:"project_id"`
	TaskID          string    `json:"task_id"`
	CycleID         string    `json:"cycle_id"`
	CycleItemID     string    `json:"cycle_item_id"`
	Framework       string    `json:"framework"`
	ReporterVersion string    `json:"reporter_version"`
	TotalTests      int       `json:"total_tests"`
	Status          string    `json:"status"`
	StartTime       time.Time `json:"start_time"`
	CreatedAt       time.Time `json:"created_at"`
}

// APIKey never stores the secret, only its bcrypt hash — see internal/identity/apikey.go.
type APIKey struct {
	KeyID      string     `json:"key_id"`
	OrgID      string     `json:"org_id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"key_hash"`
	IsActive   bool       `json:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
}
