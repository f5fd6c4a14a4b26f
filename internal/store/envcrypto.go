package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// EnvCrypto encrypts ProjectEnvVar secret values at rest with AES-256-GCM.
// No ecosystem helper library in the retrieved pack wraps this primitive
// beyond what crypto/aes + crypto/cipher already provide, so this stays on
// the standard library (see DESIGN.md).
type EnvCrypto struct {
	key []byte // 32 bytes
}

func NewEnvCrypto(hexKey string) (*EnvCrypto, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("env crypto: invalid key encoding: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("env crypto: key must be 32 bytes, got %d", len(key))
	}
	return &EnvCrypto{key: key}, nil
}

// Seal encrypts plaintext, returning hex-encoded iv/ciphertext/tag.
func (c *EnvCrypto) Seal(plaintext string) (iv, ciphertext, tag string, err error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", "", "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", "", "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", "", err
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	// gcm.Seal appends the tag to the ciphertext; split it back out so the
	// stored shape matches the {iv,ciphertext,tag} invariant in the data model.
	ctLen := len(sealed) - gcm.Overhead()
	return hex.EncodeToString(nonce), hex.EncodeToString(sealed[:ctLen]), hex.EncodeToString(sealed[ctLen:]), nil
}

// Open decrypts a {iv,ciphertext,tag} triple back to plaintext.
func (c *EnvCrypto) Open(iv, ciphertext, tag string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce, err := hex.DecodeString(iv)
	if err != nil {
		return "", fmt.Errorf("env crypto: bad iv: %w", err)
	}
	ct, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("env crypto: bad ciphertext: %w", err)
	}
	t, err := hex.DecodeString(tag)
	if err != nil {
		return "", fmt.Errorf("env crypto: bad tag: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, append(ct, t...), nil)
	if err != nil {
		return "", fmt.Errorf("env crypto: decryption failed: %w", err)
	}
	return string(plaintext), nil
}

// SecretMask is returned from every read-path response in place of plaintext.
const SecretMask = "********"
