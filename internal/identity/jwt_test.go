package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agnox/producer/internal/store"
)

func TestJWTIssuer_IssueVerify_RoundTrip(t *testing.T) {
	issuer := NewJWTIssuer("secret", time.Hour)

	token, err := issuer.Issue("user-1", "org-1", store.RoleAdmin)
	require.NoError(t, err)

	p, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, "org-1", p.OrgID)
	assert.Equal(t, store.RoleAdmin, p.Role)
}

func TestJWTIssuer_Verify_ExpiredToken(t *testing.T) {
	issuer := NewJWTIssuer("secret", -time.Second)
	token, err := issuer.Issue("user-1", "org-1", store.RoleViewer)
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.Error(t, err)
}

func TestJWTIssuer_Verify_WrongSecretRejected(t *testing.T) {
	issuer := NewJWTIssuer("secret-a", time.Hour)
	token, err := issuer.Issue("user-1", "org-1", store.RoleDeveloper)
	require.NoError(t, err)

	other := NewJWTIssuer("secret-b", time.Hour)
	_, err = other.Verify(token)
	assert.Error(t, err)
}

func TestJWTIssuer_Verify_MalformedToken(t *testing.T) {
	issuer := NewJWTIssuer("secret", time.Hour)
	_, err := issuer.Verify("not.a.jwt")
	assert.Error(t, err)
}
