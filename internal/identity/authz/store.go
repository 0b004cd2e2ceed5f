// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package authz

import (
	"context"
	"time"
)

// # Repository Interfaces

/*
AuthorityRepository reads grant relationships from the persistent store.

It is the source of truth for every authorization decision; the cache layer
only memoizes its answers.
*/
type AuthorityRepository interface {
	// PermissionCodes returns the deduplicated union of role-path and
	// direct-path permission codes for an account within a tenant.
	PermissionCodes(context context.Context, tenantID, accountID string) ([]string, error)

	// RoleNames returns the names of the roles assigned to an account.
	RoleNames(context context.Context, tenantID, accountID string) ([]string, error)

	// RoleHolders returns the IDs of every account currently holding a role.
	RoleHolders(context context.Context, tenantID, roleID string) ([]string, error)
}

/*
CacheRepository memoizes resolved permission sets.

Implementations distinguish "no cached value" (found=false, nil error) from
backend failure (non-nil error) so the service can fail open on the latter.
*/
type CacheRepository interface {
	// Get retrieves the cached permission set for an account.
	Get(context context.Context, tenantID, accountID string) (codes []string, found bool, err error)

	// Set stores the permission set with a safety TTL bounding staleness.
	Set(context context.Context, tenantID, accountID string, codes []string, timeToLive time.Duration) error

	// Delete removes the cached set. Deleting an absent key is not an error.
	Delete(context context.Context, tenantID, accountID string) error
}
