// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

/*
Package tenant provides the read path over tenants, the isolation boundary
for principals, roles, and permissions.

Tenants are administered by the management plane; this core only reads them
to enforce per-tenant policy (activity, lockout, verified-email requirement)
during authentication and authorization.
*/
package tenant

import (
	"time"
)

// # Domain Entities

// LockoutPolicy is a tenant's brute-force protection configuration.
type LockoutPolicy struct {
	// Enabled switches lockout enforcement for this tenant.
	Enabled bool `json:"enabled"`
	// MaxAttempts is the number of consecutive failures that triggers a lockout.
	MaxAttempts int `json:"max_attempts"`
	// Duration is how long a triggered lockout lasts.
	Duration time.Duration `json:"duration"`
}

// Tenant represents one isolated application namespace.
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	// IsActive gates every operation in the tenant: an inactive tenant
	// rejects all authentication and session validation.
	IsActive bool `json:"is_active"`

	// RequireVerifiedEmail blocks login for unverified principals.
	RequireVerifiedEmail bool `json:"require_verified_email"`

	Lockout LockoutPolicy `json:"lockout"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
