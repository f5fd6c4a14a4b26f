package reporttoken

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerify_RoundTrip(t *testing.T) {
	svc := NewService("test-secret", 5*time.Minute)

	token, err := svc.Generate("org-a", "task-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Verify(token, "org-a", "task-1")
	require.NoError(t, err)
	assert.Equal(t, "org-a", claims.OrgID)
	assert.Equal(t, "task-1", claims.TaskID)
}

func TestVerify_WrongOrgOrTask(t *testing.T) {
	svc := NewService("test-secret", 5*time.Minute)
	token, err := svc.Generate("org-a", "task-1")
	require.NoError(t, err)

	_, err = svc.Verify(token, "org-b", "task-1")
	assert.Error(t, err, "token scoped to org-a must not verify for org-b")

	_, err = svc.Verify(token, "org-a", "task-2")
	assert.Error(t, err, "token scoped to task-1 must not verify for task-2")
}

func TestVerify_Expired(t *testing.T) {
	svc := NewService("test-secret", -1*time.Second)
	token, err := svc.Generate("org-a", "task-1")
	require.NoError(t, err)

	_, err = svc.Verify(token, "org-a", "task-1")
	assert.Error(t, err)
}

func TestVerify_MalformedToken(t *testing.T) {
	svc := NewService("test-secret", 5*time.Minute)

	_, err := svc.Verify("not-a-token", "org-a", "task-1")
	assert.Error(t, err)

	_, err = svc.Verify("garbage.signature", "org-a", "task-1")
	assert.Error(t, err)
}

func TestVerify_TamperedSignature(t *testing.T) {
	svc := NewService("test-secret", 5*time.Minute)
	token, err := svc.Generate("org-a", "task-1")
	require.NoError(t, err)

	// The first signature character carries six full bits, so replacing it
	// always changes the decoded signature.
	sigStart := strings.Index(token, ".") + 1
	replacement := "A"
	if token[sigStart] == 'A' {
		replacement = "B"
	}
	tampered := token[:sigStart] + replacement + token[sigStart+1:]
	_, err = svc.Verify(tampered, "org-a", "task-1")
	assert.Error(t, err)
}

func TestExtractToken_QueryThenCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/reports/org-a/task-1/index.html?token=qs-token", nil)
	assert.Equal(t, "qs-token", ExtractToken(r))

	r2 := httptest.NewRequest(http.MethodGet, "/reports/org-a/task-1/index.html", nil)
	r2.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie-token"})
	assert.Equal(t, "cookie-token", ExtractToken(r2))

	r3 := httptest.NewRequest(http.MethodGet, "/reports/org-a/task-1/index.html", nil)
	assert.Equal(t, "", ExtractToken(r3))
}

func TestSetScopeCookie_ScopedPath(t *testing.T) {
	w := httptest.NewRecorder()
	SetScopeCookie(w, "org-a", "task-1", "tok", 5*time.Minute)

	resp := w.Result()
	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, "/reports/org-a/task-1/", cookies[0].Path)
	assert.True(t, cookies[0].HttpOnly)
}
