// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package principal

import (
	"context"
	"time"
)

// # Repository Interface

/*
Repository defines the persistence contract for account records.

Lookups are tenant-scoped: two tenants may hold accounts with the same email
or username, so the tenant identifier is part of every natural-key query.

The lockout mutators are atomic so that concurrent failed logins against the
same account never lose an increment or double-apply a lock.
*/
type Repository interface {
	// Create persists a new account record.
	Create(context context.Context, account *Principal) error

	// FindByID retrieves an account by its primary key.
	FindByID(context context.Context, id string) (*Principal, error)

	// FindByEmail retrieves an account by email within a tenant.
	FindByEmail(context context.Context, tenantID, email string) (*Principal, error)

	// FindByUsername retrieves an account by username within a tenant.
	FindByUsername(context context.Context, tenantID, username string) (*Principal, error)

	// UpdatePassword replaces the stored credential hash.
	UpdatePassword(context context.Context, id, passwordHash string) error

	// MarkVerified flags the account's email address as confirmed.
	MarkVerified(context context.Context, id string) error

	// RecordFailure atomically increments the failed-attempt counter and,
	// when maxAttempts is positive and the new count reaches it, stamps the
	// lockout expiry in the same statement. It returns the post-increment
	// counter and the effective lockout expiry, if any.
	RecordFailure(context context.Context, id string, maxAttempts int, lockUntil time.Time) (int, *time.Time, error)

	// ResetLockout clears the failed-attempt counter and any lockout expiry.
	ResetLockout(context context.Context, id string) error

	// TouchLastLogin records a successful authentication timestamp.
	TouchLastLogin(context context.Context, id string, at time.Time) error
}
