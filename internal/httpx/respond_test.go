package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agnox/producer/internal/apperror"
)

func TestOK_WritesPlainPayload(t *testing.T) {
	w := httptest.NewRecorder()
	OK(w, map[string]string{"id": "1"})

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "1", body["id"])
}

func TestError_TaggedErrorUsesItsStatusAndMessage(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, apperror.NotFound("project not found"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "project not found", body["error"])
}

func TestError_WithDetailMergesFieldsIntoBody(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, apperror.WithDetail(apperror.KindForbidden, "plan limit exceeded", map[string]interface{}{
		"limit": 5, "current": 5,
	}))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(5), body["limit"])
	assert.Equal(t, float64(5), body["current"])
}

func TestError_BareErrorMapsTo503WithoutLeakingDetail(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, errors.New("some internal detail that should not leak"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, strings.Contains(w.Body.String(), "should not leak"))
}

func TestSuccess_WritesEnvelopeWithFields(t *testing.T) {
	w := httptest.NewRecorder()
	Success(w, http.StatusCreated, map[string]interface{}{"id": "abc"})

	assert.Equal(t, http.StatusCreated, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "abc", body["id"])
}

func TestDecode_PopulatesDestination(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	var dst struct {
		Name string `json:"name"`
	}
	require.NoError(t, Decode(r, &dst))
	assert.Equal(t, "x", dst.Name)
}
