package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These exercise the in-memory fallback path only (rdb=nil) since a live
// Redis instance is not available in this environment; the Redis-backed
// Allow path mirrors the same INCR+EXPIRE contract.

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	l := New(nil, map[Tier]int{TierGeneral: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "org-a", TierGeneral)
		require.NoError(t, err)
		assert.True(t, ok, "call %d should be allowed within the limit", i+1)
	}

	ok, err := l.Allow(ctx, "org-a", TierGeneral)
	require.NoError(t, err)
	assert.False(t, ok, "4th call should exceed the limit of 3")
}

func TestLimiter_TiersAndOrgsAreIndependent(t *testing.T) {
	l := New(nil, map[Tier]int{TierGeneral: 1, TierIngestEvent: 1})
	ctx := context.Background()

	ok, err := l.Allow(ctx, "org-a", TierGeneral)
	require.NoError(t, err)
	assert.True(t, ok)

	// Different tier, same org: independent bucket.
	ok, err = l.Allow(ctx, "org-a", TierIngestEvent)
	require.NoError(t, err)
	assert.True(t, ok)

	// Same tier, different org: independent bucket.
	ok, err = l.Allow(ctx, "org-b", TierGeneral)
	require.NoError(t, err)
	assert.True(t, ok)

	// org-a/general is now exhausted.
	ok, err = l.Allow(ctx, "org-a", TierGeneral)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLimiter_DefaultsTo100WhenUnconfigured(t *testing.T) {
	l := New(nil, map[Tier]int{})
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		ok, err := l.Allow(ctx, "org-a", TierGeneral)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "org-a", TierGeneral)
	require.NoError(t, err)
	assert.False(t, ok)
}
