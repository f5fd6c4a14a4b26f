package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/agnox/producer/internal/store"
)

// keyPrefix distinguishes Agnox API keys from bearer JWTs on the wire.
const keyPrefix = "agx_"

// APIKeyIssuer mints and validates org-scoped API keys for the external-CI
// ingest path (§4.7) and the worker-callback-free CRUD surface.
type APIKeyIssuer struct {
	store *store.Store
}

func NewAPIKeyIssuer(s *store.Store) *APIKeyIssuer {
	return &APIKeyIssuer{store: s}
}

// Store exposes the backing store for key-lifecycle list/delete handlers.
func (a *APIKeyIssuer) Store() *store.Store {
	return a.store
}

// Create generates a new key of the form agx_<keyID>.<secret>; only the
// bcrypt hash of the secret is ever persisted.
func (a *APIKeyIssuer) Create(ctx context.Context, orgID, name string) (plaintext string, key *store.APIKey, err error) {
	keyIDBytes := make([]byte, 8)
	if _, err = rand.Read(keyIDBytes); err != nil {
		return "", nil, err
	}
	secretBytes := make([]byte, 24)
	if _, err = rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	keyID := hex.EncodeToString(keyIDBytes)
	secret := hex.EncodeToString(secretBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}

	record := &store.APIKey{
		KeyID:     keyID,
		OrgID:     orgID,
		Name:      name,
		KeyHash:   string(hash),
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	if err := a.store.CreateAPIKey(ctx, record); err != nil {
		return "", nil, fmt.Errorf("create api key: %w", err)
	}
	return keyPrefix + keyID + "." + secret, record, nil
}

// Validate parses and verifies a raw "agx_<keyID>.<secret>" key, returning
// the resolved Principal (always role=developer for API-key callers).
func (a *APIKeyIssuer) Validate(ctx context.Context, raw string) (*Principal, error) {
	if !strings.HasPrefix(raw, keyPrefix) {
		return nil, fmt.Errorf("malformed api key")
	}
	body := strings.TrimPrefix(raw, keyPrefix)
	parts := strings.SplitN(body, ".", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed api key")
	}
	keyID, secret := parts[0], parts[1]

	record, err := a.store.GetAPIKeyByKeyID(ctx, keyID)
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	if record == nil || !record.IsActive {
		return nil, fmt.Errorf("invalid api key")
	}
	if record.ExpiresAt != nil && record.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("api key expired")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(record.KeyHash), []byte(secret)); err != nil {
		return nil, fmt.Errorf("invalid api key")
	}

	a.store.UpdateAPIKeyLastUsed(ctx, keyID, time.Now())

	return &Principal{OrgID: record.OrgID, Role: store.RoleDeveloper}, nil
}
