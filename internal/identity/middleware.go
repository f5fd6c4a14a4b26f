package identity

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/agnox/producer/internal/apperror"
	"github.com/agnox/producer/internal/httpx"
	"github.com/agnox/producer/internal/store"
)

// Authenticator resolves every inbound request to a Principal per §4.1:
// x-api-key header first, else a bearer JWT. Generalizes the teacher's
// TenantMiddleware header-extraction shape to the JWT-or-API-key contract.
type Authenticator struct {
	jwt    *JWTIssuer
	keys   *APIKeyIssuer
	worker *WorkerAuthenticator
}

func NewAuthenticator(jwt *JWTIssuer, keys *APIKeyIssuer, worker *WorkerAuthenticator) *Authenticator {
	return &Authenticator{jwt: jwt, keys: keys, worker: worker}
}

// Authenticate implements §4.1's authenticate(request) → Principal | 401.
func (a *Authenticator) Authenticate(r *http.Request) (*Principal, error) {
	if apiKey := r.Header.Get("x-api-key"); apiKey != "" {
		p, err := a.keys.Validate(r.Context(), apiKey)
		if err != nil {
			return nil, apperror.Unauthorized("invalid API key")
		}
		return p, nil
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return nil, apperror.Unauthorized("missing credentials")
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	p, err := a.jwt.Verify(token)
	if err != nil {
		return nil, apperror.Unauthorized("invalid or expired token")
	}
	return p, nil
}

// Middleware resolves a Principal and rejects the request (401) if none can
// be resolved. Allow-listed routes must be mounted outside this subrouter.
func (a *Authenticator) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := a.Authenticate(r)
		if err != nil {
			httpx.Error(w, err)
			return
		}
		next(w, r.WithContext(WithPrincipal(r.Context(), p)))
	}
}

// RequireRole returns 403 if the resolved Principal's role is not among
// allowed, 401 if no Principal is present at all.
func RequireRole(allowed ...store.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok || p == nil {
				httpx.Error(w, apperror.Unauthorized("authentication required"))
				return
			}
			for _, role := range allowed {
				if p.Role == role {
					next(w, r)
					return
				}
			}
			httpx.Error(w, apperror.Forbidden("Insufficient permissions"))
		}
	}
}

func AdminOnly(next http.HandlerFunc) http.HandlerFunc {
	return RequireRole(store.RoleAdmin)(next)
}

func DeveloperOrAdmin(next http.HandlerFunc) http.HandlerFunc {
	return RequireRole(store.RoleAdmin, store.RoleDeveloper)(next)
}

// WorkerAuthenticator gates the Worker Callback Sink with a shared secret
// distinct from user JWTs, per §4.1 and §4.5.
type WorkerAuthenticator struct {
	secret      []byte
	transition  bool // WORKER_CALLBACK_TRANSITION, default off — see §9
}

func NewWorkerAuthenticator(secret string, transition bool) *WorkerAuthenticator {
	return &WorkerAuthenticator{secret: []byte(secret), transition: transition}
}

// RequireWorkerSecret constant-time-compares Authorization against the
// worker shared secret. When the transition flag is on, a missing/invalid
// secret is accepted with a slog.Warn instead of rejected — never for
// tenant-scoped user auth, only this callback path, and only until the
// flag is removed.
func (w *WorkerAuthenticator) RequireWorkerSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		provided := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		match := len(provided) == len(w.secret) &&
			subtle.ConstantTimeCompare([]byte(provided), w.secret) == 1

		if !match {
			if w.transition {
				slog.Warn("identity: worker callback accepted without valid secret (WORKER_CALLBACK_TRANSITION)",
					"path", r.URL.Path, "remote", r.RemoteAddr)
			} else {
				httpx.Error(rw, apperror.Unauthorized("invalid worker credentials"))
				return
			}
		}
		next(rw, r)
	}
}
