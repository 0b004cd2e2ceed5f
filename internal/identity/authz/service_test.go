// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package authz_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veyralabs/veyra/internal/identity/authz"
)

// fakeAuthority serves grant relationships from in-memory maps and counts
// reads so tests can assert cache behavior.
type fakeAuthority struct {
	permissions map[string][]string // accountID -> codes
	roles       map[string][]string // accountID -> role names
	holders     map[string][]string // roleID -> accountIDs
	reads       int
	err         error
}

func (authority *fakeAuthority) PermissionCodes(_ context.Context, _, accountID string) ([]string, error) {
	authority.reads++
	if authority.err != nil {
		return nil, authority.err
	}
	return authority.permissions[accountID], nil
}

func (authority *fakeAuthority) RoleNames(_ context.Context, _, accountID string) ([]string, error) {
	return authority.roles[accountID], nil
}

func (authority *fakeAuthority) RoleHolders(_ context.Context, _, roleID string) ([]string, error) {
	if authority.err != nil {
		return nil, authority.err
	}
	return authority.holders[roleID], nil
}

// fakeCache is an in-memory CacheRepository with switchable failure modes.
type fakeCache struct {
	entries map[string][]string
	getErr  error
	setErr  error
	delErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]string{}}
}

func (cache *fakeCache) key(tenantID, accountID string) string {
	return tenantID + ":" + accountID
}

func (cache *fakeCache) Get(_ context.Context, tenantID, accountID string) ([]string, bool, error) {
	if cache.getErr != nil {
		return nil, false, cache.getErr
	}
	codes, found := cache.entries[cache.key(tenantID, accountID)]
	return codes, found, nil
}

func (cache *fakeCache) Set(_ context.Context, tenantID, accountID string, codes []string, _ time.Duration) error {
	if cache.setErr != nil {
		return cache.setErr
	}
	cache.entries[cache.key(tenantID, accountID)] = codes
	return nil
}

func (cache *fakeCache) Delete(_ context.Context, tenantID, accountID string) error {
	if cache.delErr != nil {
		return cache.delErr
	}
	delete(cache.entries, cache.key(tenantID, accountID))
	return nil
}

func newTestService(authority *fakeAuthority, cache *fakeCache) *authz.Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return authz.NewService(authority, cache, 10*time.Minute, logger)
}

/*
TestService_Resolve_Deduplicates verifies that codes granted through both a
role and a direct grant appear once in the effective set.
*/
func TestService_Resolve_Deduplicates(t *testing.T) {
	authority := &fakeAuthority{
		permissions: map[string][]string{
			"acc-1": {"billing.read", "billing.read", "reports.export"},
		},
	}
	service := newTestService(authority, newFakeCache())

	codes, err := service.Resolve(context.Background(), "ten-1", "acc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"billing.read", "reports.export"}, codes)
}

/*
TestService_Resolve_CacheHitSkipsAuthority verifies that a second resolution
is served from cache without touching the database.
*/
func TestService_Resolve_CacheHitSkipsAuthority(t *testing.T) {
	authority := &fakeAuthority{
		permissions: map[string][]string{"acc-1": {"billing.read"}},
	}
	service := newTestService(authority, newFakeCache())

	_, err := service.Resolve(context.Background(), "ten-1", "acc-1")
	require.NoError(t, err)

	codes, err := service.Resolve(context.Background(), "ten-1", "acc-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"billing.read"}, codes)
	assert.Equal(t, 1, authority.reads, "second resolution must be a cache hit")
}

/*
TestService_InvalidateThenResolve verifies that a resolution after an
invalidation reflects grant changes immediately.
*/
func TestService_InvalidateThenResolve(t *testing.T) {
	authority := &fakeAuthority{
		permissions: map[string][]string{"acc-1": {"billing.read"}},
	}
	cache := newFakeCache()
	service := newTestService(authority, cache)

	_, err := service.Resolve(context.Background(), "ten-1", "acc-1")
	require.NoError(t, err)

	// Grants change; the admin layer invalidates before reporting success.
	authority.permissions["acc-1"] = []string{"billing.read", "billing.write"}
	require.NoError(t, service.Invalidate(context.Background(), "ten-1", "acc-1"))

	codes, err := service.Resolve(context.Background(), "ten-1", "acc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"billing.read", "billing.write"}, codes)
}

/*
TestService_Resolve_FailsOpenOnCacheError verifies that a broken cache
backend degrades to direct authority reads instead of failing the request.
*/
func TestService_Resolve_FailsOpenOnCacheError(t *testing.T) {
	authority := &fakeAuthority{
		permissions: map[string][]string{"acc-1": {"billing.read"}},
	}
	cache := newFakeCache()
	cache.getErr = errors.New("connection refused")
	cache.setErr = errors.New("connection refused")
	service := newTestService(authority, cache)

	codes, err := service.Resolve(context.Background(), "ten-1", "acc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"billing.read"}, codes)
}

/*
TestService_Resolve_AuthorityErrorSurfaces verifies that the source of truth
being unreachable is a hard failure, not an empty permission set.
*/
func TestService_Resolve_AuthorityErrorSurfaces(t *testing.T) {
	authority := &fakeAuthority{err: errors.New("pool closed")}
	service := newTestService(authority, newFakeCache())

	_, err := service.Resolve(context.Background(), "ten-1", "acc-1")
	require.Error(t, err)
}

/*
TestService_ResolveModule_Filters verifies the in-process module filter over
the full cached set.
*/
func TestService_ResolveModule_Filters(t *testing.T) {
	authority := &fakeAuthority{
		permissions: map[string][]string{
			"acc-1": {"billing.read", "billing.write", "reports.export"},
		},
	}
	service := newTestService(authority, newFakeCache())

	codes, err := service.ResolveModule(context.Background(), "ten-1", "acc-1", "billing")
	require.NoError(t, err)
	assert.Equal(t, []string{"billing.read", "billing.write"}, codes)

	empty, err := service.ResolveModule(context.Background(), "ten-1", "acc-1", "admin")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

/*
TestService_HasPermission exercises membership checks against the resolved
set.
*/
func TestService_HasPermission(t *testing.T) {
	authority := &fakeAuthority{
		permissions: map[string][]string{"acc-1": {"billing.read"}},
	}
	service := newTestService(authority, newFakeCache())

	granted, err := service.HasPermission(context.Background(), "ten-1", "acc-1", "billing.read")
	require.NoError(t, err)
	assert.True(t, granted)

	denied, err := service.HasPermission(context.Background(), "ten-1", "acc-1", "billing.write")
	require.NoError(t, err)
	assert.False(t, denied)
}

/*
TestService_InvalidateRole_FansOut verifies that a role-level invalidation
drops the cached set of every holder, and only of holders.
*/
func TestService_InvalidateRole_FansOut(t *testing.T) {
	authority := &fakeAuthority{
		permissions: map[string][]string{
			"acc-1": {"billing.read"},
			"acc-2": {"billing.read"},
			"acc-3": {"reports.export"},
		},
		holders: map[string][]string{
			"role-billing": {"acc-1", "acc-2"},
		},
	}
	cache := newFakeCache()
	service := newTestService(authority, cache)

	for _, accountID := range []string{"acc-1", "acc-2", "acc-3"} {
		_, err := service.Resolve(context.Background(), "ten-1", accountID)
		require.NoError(t, err)
	}

	require.NoError(t, service.InvalidateRole(context.Background(), "ten-1", "role-billing"))

	_, holderCached := cache.entries["ten-1:acc-1"]
	assert.False(t, holderCached)
	_, holderCached = cache.entries["ten-1:acc-2"]
	assert.False(t, holderCached)
	_, bystanderCached := cache.entries["ten-1:acc-3"]
	assert.True(t, bystanderCached, "accounts outside the role keep their cache entry")
}

/*
TestService_Invalidate_SwallowsCacheError verifies that invalidation never
blocks the caller when the cache backend is down.
*/
func TestService_Invalidate_SwallowsCacheError(t *testing.T) {
	cache := newFakeCache()
	cache.delErr = errors.New("connection refused")
	service := newTestService(&fakeAuthority{}, cache)

	assert.NoError(t, service.Invalidate(context.Background(), "ten-1", "acc-1"))
}
