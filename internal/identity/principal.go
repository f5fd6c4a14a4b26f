// Package identity is the Identity Gate: it resolves every inbound request
// to a Principal via bearer JWT or API key, or rejects it, and provides the
// role-authorization and worker/report-token checks layered on top.
package identity

import (
	"context"

	"github.com/agnox/producer/internal/store"
)

// Principal is the authenticated caller identity threaded through every
// handler.
type Principal struct {
	UserID string
	OrgID  string
	Role   store.Role
}

type contextKey string

const principalKey contextKey = "identity.principal"

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == store.RoleAdmin
}

func (p *Principal) IsDeveloperOrAdmin() bool {
	return p != nil && (p.Role == store.RoleAdmin || p.Role == store.RoleDeveloper)
}
