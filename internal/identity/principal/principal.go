// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

/*
Package principal defines the account entity and its data access contract.

It holds the security-relevant account state the lifecycle manager mutates:
failed-attempt counters, lockout expiry, and the last successful login
timestamp. Profile fields (display name, avatar) belong to the out-of-scope
profile-management layer.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no
external dependencies and encapsulate all business rules related to identity.
*/
package principal

import (
	"time"
)

// # Domain Entities

// Principal represents a registered account within one tenant.
type Principal struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"` // Explicitly omitted from JSON for security.
	DisplayName  string `json:"display_name"`

	// IsActive gates authentication and session validation.
	IsActive bool `json:"is_active"`
	// IsVerified reports whether the email address has been confirmed.
	IsVerified bool `json:"is_verified"`

	// FailedAttempts counts consecutive credential failures since the last
	// successful authentication.
	FailedAttempts int `json:"-"`
	// LockoutUntil, when set and in the future, blocks authentication
	// regardless of credential correctness.
	LockoutUntil *time.Time `json:"-"`
	// LastLoginAt records the most recent successful authentication.
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
