package dispatch

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agnox/producer/internal/apperror"
	"github.com/agnox/producer/internal/identity"
	"github.com/agnox/producer/internal/store"
)

func TestDispatch_ValidatesBeforeTouchingAnyCollaborator(t *testing.T) {
	// All collaborators are left nil: a validation failure must return
	// before any of them are dereferenced.
	p := &Pipeline{}
	principal := &identity.Principal{OrgID: "org-1"}

	_, err := p.Dispatch(context.Background(), principal, Request{TaskID: "t1"})
	ae, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindValidation, ae.Kind)
	assert.Contains(t, ae.Message, "image")

	_, err = p.Dispatch(context.Background(), principal, Request{Image: "img:1"})
	ae, ok = apperror.As(err)
	require.True(t, ok)
	assert.Contains(t, ae.Message, "taskId")

	_, err = p.Dispatch(context.Background(), principal, Request{Image: "img:1", TaskID: "t1", RetryAttempts: 6})
	ae, ok = apperror.As(err)
	require.True(t, ok)
	assert.Contains(t, ae.Message, "retryAttempts")

	_, err = p.Dispatch(context.Background(), principal, Request{Image: "img:1", TaskID: "t1", Environment: "qa"})
	ae, ok = apperror.As(err)
	require.True(t, ok)
	assert.Contains(t, ae.Message, "environment")
}

func TestDispatch_AcceptsEachValidEnvironment(t *testing.T) {
	for _, env := range []string{"dev", "staging", "prod"} {
		assert.True(t, validEnvironments[env], "expected %q to be a valid environment", env)
	}
	assert.False(t, validEnvironments["qa"])
	assert.False(t, validEnvironments[""])
}

func TestFilterReservedPrefix_DropsPlatformPrefixedKeys(t *testing.T) {
	env := map[string]string{
		"PLATFORM_SECRET": "x",
		"APP_DEBUG":       "true",
		"PLATFORM_":       "edge-case",
	}
	filterReservedPrefix(env)

	_, hasSecret := env["PLATFORM_SECRET"]
	_, hasEdge := env["PLATFORM_"]
	assert.False(t, hasSecret)
	assert.False(t, hasEdge)
	assert.Equal(t, "true", env["APP_DEBUG"])
	assert.Len(t, env, 1)
}

func TestInjectServerEnv_CopiesOnlyConfiguredNames(t *testing.T) {
	os.Setenv("AGNOX_TEST_INJECT_VAR", "injected-value")
	defer os.Unsetenv("AGNOX_TEST_INJECT_VAR")

	p := &Pipeline{injectEnvVars: []string{"AGNOX_TEST_INJECT_VAR", "AGNOX_TEST_UNSET_VAR"}}
	env := map[string]string{"EXISTING": "keep"}
	p.injectServerEnv(env)

	assert.Equal(t, "injected-value", env["AGNOX_TEST_INJECT_VAR"])
	assert.Equal(t, "keep", env["EXISTING"])
	_, present := env["AGNOX_TEST_UNSET_VAR"]
	assert.False(t, present, "unset process env vars must not appear as empty-string entries")
}

func TestExecutionPayload_CarriesCoreFields(t *testing.T) {
	e := &store.Execution{TaskID: "t1", Status: store.StatusPending, Image: "img:1", Trigger: "manual"}
	payload := executionPayload(e)
	assert.Equal(t, "t1", payload["taskId"])
	assert.Equal(t, store.StatusPending, payload["status"])
	assert.Equal(t, "manual", payload["trigger"])
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, "fallback", orDefault("", "fallback"))
	assert.Equal(t, "explicit", orDefault("explicit", "fallback"))
}
