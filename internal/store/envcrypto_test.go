package store

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() string {
	return hex.EncodeToString(make([]byte, 32))
}

func TestEnvCrypto_SealOpen_RoundTrip(t *testing.T) {
	c, err := NewEnvCrypto(testKey())
	require.NoError(t, err)

	iv, ct, tag, err := c.Seal("super-secret-value")
	require.NoError(t, err)
	assert.NotEmpty(t, iv)
	assert.NotEmpty(t, ct)
	assert.NotEmpty(t, tag)

	plaintext, err := c.Open(iv, ct, tag)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-value", plaintext)
}

func TestEnvCrypto_TamperedCiphertextFailsToOpen(t *testing.T) {
	c, err := NewEnvCrypto(testKey())
	require.NoError(t, err)

	iv, ct, tag, err := c.Seal("value")
	require.NoError(t, err)

	tamperedBytes, err := hex.DecodeString(ct)
	require.NoError(t, err)
	tamperedBytes[0] ^= 0xFF
	tampered := hex.EncodeToString(tamperedBytes)

	_, err = c.Open(iv, tampered, tag)
	assert.Error(t, err)
}

func TestEnvCrypto_DistinctNoncesPerSeal(t *testing.T) {
	c, err := NewEnvCrypto(testKey())
	require.NoError(t, err)

	iv1, ct1, _, err := c.Seal("same-plaintext")
	require.NoError(t, err)
	iv2, ct2, _, err := c.Seal("same-plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, iv1, iv2, "each seal must use a fresh nonce")
	assert.NotEqual(t, ct1, ct2, "ciphertext must differ when nonces differ")
}

func TestNewEnvCrypto_RejectsBadKeyLength(t *testing.T) {
	_, err := NewEnvCrypto(hex.EncodeToString(make([]byte, 16)))
	assert.Error(t, err)

	_, err = NewEnvCrypto("not-hex-at-all!!")
	assert.Error(t, err)
}
