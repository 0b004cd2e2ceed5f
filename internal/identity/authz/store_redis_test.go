// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package authz_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veyralabs/veyra/internal/identity/authz"
)

func newTestCache(t *testing.T) (*authz.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return authz.NewCache(client), server
}

/*
TestRedisCache_RoundTrip verifies storage and retrieval of a permission set.
*/
func TestRedisCache_RoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	codes := []string{"billing.read", "reports.export"}
	require.NoError(t, cache.Set(ctx, "ten-1", "acc-1", codes, 10*time.Minute))

	got, found, err := cache.Get(ctx, "ten-1", "acc-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, codes, got)
}

/*
TestRedisCache_MissIsNotAnError verifies that an absent key reports
found=false with a nil error.
*/
func TestRedisCache_MissIsNotAnError(t *testing.T) {
	cache, _ := newTestCache(t)

	_, found, err := cache.Get(context.Background(), "ten-1", "acc-unknown")
	require.NoError(t, err)
	assert.False(t, found)
}

/*
TestRedisCache_SafetyTTLExpires verifies that entries evaporate after the
safety TTL even when no invalidation ever arrives.
*/
func TestRedisCache_SafetyTTLExpires(t *testing.T) {
	cache, server := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "ten-1", "acc-1", []string{"billing.read"}, time.Minute))

	server.FastForward(61 * time.Second)

	_, found, err := cache.Get(ctx, "ten-1", "acc-1")
	require.NoError(t, err)
	assert.False(t, found)
}

/*
TestRedisCache_DeleteIsIdempotent verifies that deleting an absent key is
not an error.
*/
func TestRedisCache_DeleteIsIdempotent(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "ten-1", "acc-1", []string{"billing.read"}, time.Minute))
	require.NoError(t, cache.Delete(ctx, "ten-1", "acc-1"))
	require.NoError(t, cache.Delete(ctx, "ten-1", "acc-1"))

	_, found, err := cache.Get(ctx, "ten-1", "acc-1")
	require.NoError(t, err)
	assert.False(t, found)
}
