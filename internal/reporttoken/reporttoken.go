// Package reporttoken is the Report Token Service (C10): short-TTL
// HMAC-SHA256 signed tokens scoped to {orgId, taskId} gating static report
// assets. Grounded on the HMAC sign/verify/base64url shape previously used
// for the teacher's JIT token broker, trimmed to the stateless
// generate/verify-only contract spec.md §4.9 requires — there is no active
// token registry here; a 5-minute-TTL token is never revoked, only expired.
package reporttoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Claims is the payload signed into every report token.
type Claims struct {
	OrgID  string `json:"orgId"`
	TaskID string `json:"taskId"`
	Exp    int64  `json:"exp"`
}

// Service issues and verifies §4.9 report tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
}

func NewService(secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{secret: []byte(secret), ttl: ttl}
}

// Generate implements §4.9 generate(orgId, taskId): payload base64url
// encoded, appended with ".HMAC-SHA256(secret, payload)".
func (s *Service) Generate(orgID, taskID string) (string, error) {
	claims := Claims{OrgID: orgID, TaskID: taskID, Exp: time.Now().Add(s.ttl).Unix()}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("reporttoken: marshal claims: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	sig := s.sign(encoded)
	return encoded + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verify implements §4.9 verify(token, orgId, taskId) steps 1-5.
func (s *Service) Verify(token, orgID, taskID string) (*Claims, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("reporttoken: malformed token")
	}
	encoded, sigPart := parts[0], parts[1]

	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return nil, fmt.Errorf("reporttoken: malformed signature")
	}
	if !hmac.Equal(sig, s.sign(encoded)) {
		return nil, fmt.Errorf("reporttoken: signature mismatch")
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("reporttoken: malformed payload")
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("reporttoken: malformed claims")
	}

	if claims.Exp <= time.Now().Unix() {
		return nil, fmt.Errorf("reporttoken: expired")
	}
	if claims.OrgID != orgID || claims.TaskID != taskID {
		return nil, fmt.Errorf("reporttoken: scope mismatch")
	}
	return &claims, nil
}

func (s *Service) sign(data string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

// CookieName is the path-scoped cookie set after a successful query-string
// token verification, per §4.9's static-report middleware.
const CookieName = "report_token"

// ExtractToken pulls a token from ?token= first, falling back to the
// report_token cookie, matching the middleware's accept-either contract.
func ExtractToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// SetScopeCookie sets the sub-resource auto-auth cookie on first successful
// query-string verification, scoped to /reports/{orgId}/{taskId}/.
func SetScopeCookie(w http.ResponseWriter, orgID, taskID, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     fmt.Sprintf("/reports/%s/%s/", orgID, taskID),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
