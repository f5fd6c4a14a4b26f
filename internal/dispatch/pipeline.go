// Package dispatch is the Dispatch Pipeline (C4): validates an
// ExecutionRequest, resolves and decrypts project env-vars, stamps
// org/task identifiers, upserts an Execution in PENDING, publishes a
// priority-tagged task, and broadcasts PENDING to the org room (§4.3).
//
// Grounded on the teacher's many-collaborators-injected-into-one-handler
// wiring style (cmd/api/main.go's HandleGovern construction).
package dispatch

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/agnox/producer/internal/apperror"
	"github.com/agnox/producer/internal/identity"
	"github.com/agnox/producer/internal/plan"
	"github.com/agnox/producer/internal/queue"
	"github.com/agnox/producer/internal/realtime"
	"github.com/agnox/producer/internal/store"
)

// validEnvironments enumerates the allowed config.environment values per §4.3's
// validated input (`config.environment ∈ {dev,staging,prod}`).
var validEnvironments = map[string]bool{"dev": true, "staging": true, "prod": true}

// reservedPrefix is dropped from user-supplied envVars before hand-off to
// workers. Asserted here (the first of the two layers spec.md §9 calls
// for); a worker implementation is expected to re-assert it before
// container launch.
const reservedPrefix = "PLATFORM_"

// Request is the validated ExecutionRequest input to §4.3.
type Request struct {
	TaskID        string
	ProjectID     string
	Image         string
	Command       string
	Folder        string
	Tests         []string
	Environment   string
	BaseURL       string
	RetryAttempts int
	EnvVars       map[string]string
	GroupName     string
	BatchID       string
	Trigger       string
	Framework     string
	CycleID       string
	CycleItemID   string
}

// Result is returned to the caller on successful admission.
type Result struct {
	TaskID string
}

type Pipeline struct {
	store         *store.Store
	crypto        *store.EnvCrypto
	enforcer      *plan.Enforcer
	queue         queue.Queue
	hub           *realtime.Hub
	injectEnvVars []string
}

func NewPipeline(s *store.Store, crypto *store.EnvCrypto, enforcer *plan.Enforcer, q queue.Queue, hub *realtime.Hub, injectEnvVars []string) *Pipeline {
	return &Pipeline{
		store:         s,
		crypto:        crypto,
		enforcer:      enforcer,
		queue:         q,
		hub:           hub,
		injectEnvVars: injectEnvVars,
	}
}

// Dispatch implements §4.3 steps 1-8. Step 1 (identity + developerOrAdmin)
// is enforced by the caller's middleware chain before this is invoked; the
// resolved Principal is passed through for orgId stamping.
func (p *Pipeline) Dispatch(ctx context.Context, principal *identity.Principal, req Request) (Result, error) {
	if req.Image == "" {
		return Result{}, apperror.Validation("image is required")
	}
	if req.TaskID == "" {
		return Result{}, apperror.Validation("taskId is required")
	}
	if req.RetryAttempts < 0 || req.RetryAttempts > 5 {
		return Result{}, apperror.Validation("retryAttempts must be in [0,5]")
	}
	if !validEnvironments[req.Environment] {
		return Result{}, apperror.Validation("environment must be one of dev, staging, prod")
	}

	if err := p.enforcer.Admit(ctx, principal.OrgID, plan.ActionRunTest); err != nil {
		return Result{}, err
	}

	envVars, err := p.resolveEnvVars(ctx, principal.OrgID, req.ProjectID, req.EnvVars)
	if err != nil {
		return Result{}, err
	}
	p.injectServerEnv(envVars)
	filterReservedPrefix(envVars)

	now := time.Now()
	exec := &store.Execution{
		TaskID: req.TaskID,
		OrgID:  principal.OrgID,
		Source: store.SourceAgnoxHosted,
		Status: store.StatusPending,
		Image:  req.Image,
		Command: req.Command,
		Folder:  req.Folder,
		StartTime: now,
		Config: store.ExecutionConfig{
			Environment:   req.Environment,
			BaseURL:       req.BaseURL,
			RetryAttempts: req.RetryAttempts,
			EnvVars:       envVars,
		},
		Trigger:     orDefault(req.Trigger, "manual"),
		GroupName:   req.GroupName,
		BatchID:     req.BatchID,
		CycleID:     req.CycleID,
		CycleItemID: req.CycleItemID,
	}
	if err := p.store.UpsertExecution(ctx, exec); err != nil {
		return Result{}, apperror.Dependency("failed to persist execution", err)
	}

	task := queue.Task{
		TaskID:         req.TaskID,
		Image:          req.Image,
		Command:        req.Command,
		Folder:         req.Folder,
		OrganizationID: principal.OrgID,
		Config: queue.TaskConfig{
			Environment:   req.Environment,
			BaseURL:       req.BaseURL,
			EnvVars:       envVars,
			RetryAttempts: req.RetryAttempts,
		},
		Tests:       req.Tests,
		Trigger:     exec.Trigger,
		GroupName:   req.GroupName,
		BatchID:     req.BatchID,
		Framework:   req.Framework,
		CycleID:     req.CycleID,
		CycleItemID: req.CycleItemID,
	}
	priority := queue.PriorityManual
	if exec.Trigger == "cron" {
		priority = queue.PriorityCronOrPrefetch
	}
	if err := p.queue.Publish(ctx, task, priority); err != nil {
		return Result{}, apperror.Dependency("failed to enqueue task", err)
	}

	p.hub.Broadcast(principal.OrgID, "execution-updated", executionPayload(exec))

	return Result{TaskID: req.TaskID}, nil
}

// DispatchFromSchedule implements the Cron Scheduler's invocation of "step
// 5+" (store + queue + broadcast only — no plan check, no env-var
// resolution) per spec.md §4.8.
func (p *Pipeline) DispatchFromSchedule(ctx context.Context, orgID, taskID string, sch store.Schedule) error {
	now := time.Now()
	exec := &store.Execution{
		TaskID: taskID,
		OrgID:  orgID,
		Source: store.SourceAgnoxHosted,
		Status: store.StatusPending,
		Image:  sch.Image,
		Folder: sch.Folder,
		StartTime: now,
		Config: store.ExecutionConfig{
			Environment: sch.Environment,
			BaseURL:     sch.BaseURL,
		},
		Trigger:   "cron",
		GroupName: sch.Name,
	}
	if err := p.store.UpsertExecution(ctx, exec); err != nil {
		return apperror.Dependency("failed to persist scheduled execution", err)
	}

	task := queue.Task{
		TaskID:         taskID,
		Image:          sch.Image,
		Folder:         sch.Folder,
		OrganizationID: orgID,
		Config: queue.TaskConfig{
			Environment: sch.Environment,
			BaseURL:     sch.BaseURL,
		},
		Trigger:   "cron",
		GroupName: sch.Name,
	}
	if err := p.queue.Publish(ctx, task, queue.PriorityCronOrPrefetch); err != nil {
		return apperror.Dependency("failed to enqueue scheduled task", err)
	}

	p.hub.Broadcast(orgID, "execution-updated", executionPayload(exec))
	return nil
}

// resolveEnvVars loads the project's ProjectEnvVars, decrypts secrets, and
// merges them with user-supplied values (which win on key collision), per
// §4.3 step 3.
func (p *Pipeline) resolveEnvVars(ctx context.Context, orgID, projectID string, userSupplied map[string]string) (map[string]string, error) {
	merged := make(map[string]string)
	if projectID != "" {
		vars, err := p.store.ListEnvVars(ctx, orgID, projectID)
		if err != nil {
			return nil, apperror.Dependency("failed to load project env vars", err)
		}
		for _, v := range vars {
			if v.IsSecret {
				plaintext, err := p.crypto.Open(v.IV, v.Ciphertext, v.Tag)
				if err != nil {
					return nil, apperror.Dependency("failed to decrypt env var "+v.Key, err)
				}
				merged[v.Key] = plaintext
			} else {
				merged[v.Key] = v.Value
			}
		}
	}
	for k, v := range userSupplied {
		merged[k] = v
	}
	return merged, nil
}

// injectServerEnv copies each INJECT_ENV_VARS-listed name from the process
// environment into envVars, per §4.3 step 4.
func (p *Pipeline) injectServerEnv(envVars map[string]string) {
	for _, name := range p.injectEnvVars {
		if v, ok := os.LookupEnv(name); ok {
			envVars[name] = v
		}
	}
}

// filterReservedPrefix drops any PLATFORM_*-prefixed key before the task
// reaches the worker (§6, §9 — double-enforced, this is layer one).
func filterReservedPrefix(envVars map[string]string) {
	for k := range envVars {
		if strings.HasPrefix(k, reservedPrefix) {
			delete(envVars, k)
		}
	}
}

func executionPayload(e *store.Execution) map[string]interface{} {
	return map[string]interface{}{
		"taskId": e.TaskID,
		"status": e.Status,
		"image":  e.Image,
		"trigger": e.Trigger,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
