package apperror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindToStatusMapping(t *testing.T) {
	cases := map[*Error]int{
		Validation("x"):       http.StatusBadRequest,
		Unauthorized("x"):     http.StatusUnauthorized,
		Forbidden("x"):        http.StatusForbidden,
		NotFound("x"):         http.StatusNotFound,
		Conflict("x"):         http.StatusConflict,
		RateLimited("x"):      http.StatusTooManyRequests,
		Dependency("x", nil):  http.StatusServiceUnavailable,
	}
	for err, status := range cases {
		assert.Equal(t, status, err.Status())
	}
}

func TestWithDetail_CarriesStructuredPayload(t *testing.T) {
	err := WithDetail(KindForbidden, "plan limit exceeded", map[string]interface{}{
		"limit": 5, "current": 5,
	})
	assert.Equal(t, http.StatusForbidden, err.Status())
	assert.Equal(t, 5, err.Detail["limit"])
	assert.Equal(t, 5, err.Detail["current"])
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindDependency, "dependency failed", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.Equal(t, "dependency failed", err.Error())
}

func TestAs_UnwrapsTaggedError(t *testing.T) {
	err := NotFound("missing")
	ae, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, KindNotFound, ae.Kind)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)

	_, ok = As(nil)
	assert.False(t, ok)
}
