// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package ratelimit_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veyralabs/veyra/internal/identity/ratelimit"
	"github.com/veyralabs/veyra/internal/platform/apperr"
)

// newTestLimiter spins up an in-memory Redis and a limiter wired to it.
func newTestLimiter(t *testing.T, cfg ratelimit.Config) (*ratelimit.Limiter, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := ratelimit.NewRedisCounterStore(client)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return ratelimit.NewLimiter(store, cfg, logger), server
}

func authOnlyConfig(limit int, window time.Duration, failOpen bool) ratelimit.Config {
	return ratelimit.Config{
		Policies: map[ratelimit.Category]ratelimit.Policy{
			ratelimit.CategoryAuthentication: {Limit: limit, Window: window},
		},
		FailOpen: failOpen,
	}
}

/*
TestLimiter_CeilingExact verifies that exactly the configured ceiling of
requests is admitted per window, and that the next request is denied with a
RetryAfter bounded by the window length.
*/
func TestLimiter_CeilingExact(t *testing.T) {
	limiter, server := newTestLimiter(t, authOnlyConfig(10, time.Minute, true))
	ctx := context.Background()

	// 1. All 10 requests within the window are admitted
	for i := 0; i < 10; i++ {
		decision, err := limiter.Check(ctx, "203.0.113.7", ratelimit.CategoryAuthentication)
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "request %d should be admitted", i+1)
	}

	// 2. The 11th is denied with a bounded RetryAfter
	decision, err := limiter.Check(ctx, "203.0.113.7", ratelimit.CategoryAuthentication)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, decision.RetryAfter, time.Minute)

	// 3. After the window fully elapses, a new request is admitted
	server.FastForward(61 * time.Second)
	decision, err = limiter.Check(ctx, "203.0.113.7", ratelimit.CategoryAuthentication)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

/*
TestLimiter_IndependentIdentities verifies that counters are scoped per
client identity.
*/
func TestLimiter_IndependentIdentities(t *testing.T) {
	limiter, _ := newTestLimiter(t, authOnlyConfig(1, time.Minute, true))
	ctx := context.Background()

	first, err := limiter.Check(ctx, "198.51.100.1", ratelimit.CategoryAuthentication)
	require.NoError(t, err)
	assert.True(t, first.Allowed)

	denied, err := limiter.Check(ctx, "198.51.100.1", ratelimit.CategoryAuthentication)
	require.NoError(t, err)
	assert.False(t, denied.Allowed)

	// A different identity still has its full budget
	other, err := limiter.Check(ctx, "198.51.100.2", ratelimit.CategoryAuthentication)
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

/*
TestLimiter_IndependentCategories verifies that each category counts
separately for the same identity.
*/
func TestLimiter_IndependentCategories(t *testing.T) {
	cfg := ratelimit.Config{
		Policies: map[ratelimit.Category]ratelimit.Policy{
			ratelimit.CategoryAuthentication: {Limit: 1, Window: time.Minute},
			ratelimit.CategoryRegistration:   {Limit: 1, Window: time.Hour},
		},
		FailOpen: true,
	}
	limiter, _ := newTestLimiter(t, cfg)
	ctx := context.Background()

	auth, err := limiter.Check(ctx, "203.0.113.9", ratelimit.CategoryAuthentication)
	require.NoError(t, err)
	assert.True(t, auth.Allowed)

	denied, err := limiter.Check(ctx, "203.0.113.9", ratelimit.CategoryAuthentication)
	require.NoError(t, err)
	assert.False(t, denied.Allowed)

	// The registration budget is untouched by authentication traffic
	registration, err := limiter.Check(ctx, "203.0.113.9", ratelimit.CategoryRegistration)
	require.NoError(t, err)
	assert.True(t, registration.Allowed)
}

/*
TestLimiter_Allowlist verifies that allowlisted identities (exact IP, CIDR
block, API key) bypass counting entirely.
*/
func TestLimiter_Allowlist(t *testing.T) {
	cfg := authOnlyConfig(1, time.Minute, true)
	cfg.Allowlist = []string{"192.0.2.10", "10.8.0.0/16", "svc-key-batch-importer"}
	limiter, _ := newTestLimiter(t, cfg)
	ctx := context.Background()

	tests := []struct {
		name     string
		identity string
	}{
		{"exact_ip", "192.0.2.10"},
		{"cidr_member", "10.8.44.3"},
		{"api_key", "svc-key-batch-importer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Far beyond the ceiling of 1: never denied
			for i := 0; i < 5; i++ {
				decision, err := limiter.Check(ctx, tt.identity, ratelimit.CategoryAuthentication)
				require.NoError(t, err)
				assert.True(t, decision.Allowed)
			}
		})
	}

	// A non-allowlisted neighbor is still limited
	_, err := limiter.Check(ctx, "10.9.0.1", ratelimit.CategoryAuthentication)
	require.NoError(t, err)
	denied, err := limiter.Check(ctx, "10.9.0.1", ratelimit.CategoryAuthentication)
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
}

/*
TestLimiter_FailOpen verifies that a dead counter store admits traffic when
fail-open is configured.
*/
func TestLimiter_FailOpen(t *testing.T) {
	limiter, server := newTestLimiter(t, authOnlyConfig(1, time.Minute, true))
	server.Close()

	decision, err := limiter.Check(context.Background(), "203.0.113.1", ratelimit.CategoryAuthentication)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

/*
TestLimiter_FailClosed verifies that a dead counter store rejects traffic
with a dependency error when fail-closed is configured.
*/
func TestLimiter_FailClosed(t *testing.T) {
	limiter, server := newTestLimiter(t, authOnlyConfig(1, time.Minute, false))
	server.Close()

	_, err := limiter.Check(context.Background(), "203.0.113.1", ratelimit.CategoryAuthentication)
	require.Error(t, err)

	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", ae.Code)
}
