// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package authz

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// # Service Layer

/*
Service resolves effective permissions with a cache-aside Redis layer in
front of the Postgres authority.

Resolution order: cache hit wins; a miss computes from the authority and
populates the cache with the configured safety TTL. Cache backend failures on
either side fall open to the authority so an unreachable Redis degrades
latency, not correctness.
*/
type Service struct {
	authority AuthorityRepository
	cache     CacheRepository
	cacheTTL  time.Duration
	logger    *slog.Logger
}

// NewService creates the authorization service.
func NewService(authority AuthorityRepository, cache CacheRepository, cacheTTL time.Duration, logger *slog.Logger) *Service {
	return &Service{
		authority: authority,
		cache:     cache,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

/*
Resolve returns the effective permission set of an account: the deduplicated
union of role-path and direct-path codes. No ordering guarantee.

Parameters:
  - context: context.Context
  - tenantID: string
  - accountID: string

Returns:
  - []string: Effective permission codes
  - error: Authority read errors (cache errors never surface)
*/
func (service *Service) Resolve(context context.Context, tenantID, accountID string) ([]string, error) {
	codes, found, err := service.cache.Get(context, tenantID, accountID)
	if err != nil {
		service.logger.Warn("permission cache read failed, falling back to authority",
			"tenant_id", tenantID, "account_id", accountID, "error", err)
	} else if found {
		return codes, nil
	}

	codes, err = service.authority.PermissionCodes(context, tenantID, accountID)
	if err != nil {
		return nil, err
	}
	codes = dedupe(codes)

	if err := service.cache.Set(context, tenantID, accountID, codes, service.cacheTTL); err != nil {
		service.logger.Warn("permission cache write failed",
			"tenant_id", tenantID, "account_id", accountID, "error", err)
	}

	return codes, nil
}

/*
ResolveModule returns the subset of the effective permission set whose codes
belong to one module.

Filtering is in-process over the full cached set, so the cache holds exactly
one key per (tenant, account) pair.

Parameters:
  - context: context.Context
  - tenantID: string
  - accountID: string
  - module: string (the part of the code before the dot)

Returns:
  - []string: Matching permission codes
  - error: Authority read errors
*/
func (service *Service) ResolveModule(context context.Context, tenantID, accountID, module string) ([]string, error) {
	codes, err := service.Resolve(context, tenantID, accountID)
	if err != nil {
		return nil, err
	}

	prefix := module + "."
	filtered := []string{}
	for _, code := range codes {
		if strings.HasPrefix(code, prefix) {
			filtered = append(filtered, code)
		}
	}
	return filtered, nil
}

/*
HasPermission reports whether an account holds one specific permission.

Parameters:
  - context: context.Context
  - tenantID: string
  - accountID: string
  - code: string

Returns:
  - bool: true when the code is in the effective set
  - error: Authority read errors
*/
func (service *Service) HasPermission(context context.Context, tenantID, accountID, code string) (bool, error) {
	codes, err := service.Resolve(context, tenantID, accountID)
	if err != nil {
		return false, err
	}
	for _, candidate := range codes {
		if candidate == code {
			return true, nil
		}
	}
	return false, nil
}

/*
Roles returns the role names assigned to an account, for token claims.

Role names are read straight from the authority; they change rarely and are
only embedded in short-lived tokens, so they are not cached.

Parameters:
  - context: context.Context
  - tenantID: string
  - accountID: string

Returns:
  - []string: Role names
  - error: Authority read errors
*/
func (service *Service) Roles(context context.Context, tenantID, accountID string) ([]string, error) {
	return service.authority.RoleNames(context, tenantID, accountID)
}

/*
Invalidate drops the cached permission set for one account.

The operation is idempotent and never blocks the caller: a cache backend
failure is logged and swallowed, because the safety TTL already bounds how
long a stale set can survive.

Parameters:
  - context: context.Context
  - tenantID: string
  - accountID: string

Returns:
  - error: Always nil today; kept for interface stability
*/
func (service *Service) Invalidate(context context.Context, tenantID, accountID string) error {
	if err := service.cache.Delete(context, tenantID, accountID); err != nil {
		service.logger.Warn("permission cache invalidation failed",
			"tenant_id", tenantID, "account_id", accountID, "error", err)
	}
	return nil
}

/*
InvalidateRole drops the cached permission set of every current holder of a
role. Used after a role's permission bundle changes.

Parameters:
  - context: context.Context
  - tenantID: string
  - roleID: string

Returns:
  - error: Authority read errors (the holder list must be known to fan out)
*/
func (service *Service) InvalidateRole(context context.Context, tenantID, roleID string) error {
	holders, err := service.authority.RoleHolders(context, tenantID, roleID)
	if err != nil {
		return err
	}

	for _, accountID := range holders {
		_ = service.Invalidate(context, tenantID, accountID)
	}
	return nil
}

// dedupe removes duplicate codes and sorts for stable cache payloads.
func dedupe(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	unique := []string{}
	for _, code := range codes {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		unique = append(unique, code)
	}
	sort.Strings(unique)
	return unique
}
