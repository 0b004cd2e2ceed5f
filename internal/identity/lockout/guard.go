// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

/*
Package lockout enforces per-tenant account lockout policy.

The guard layers policy decisions over the account repository's atomic
counter primitives: the repository guarantees race-free increments, the
guard decides whether a lock applies and when it has expired.
*/
package lockout

import (
	"context"
	"time"

	"github.com/veyralabs/veyra/internal/identity/principal"
	"github.com/veyralabs/veyra/internal/identity/tenant"
)

// Counters is the subset of the account repository the guard mutates.
type Counters interface {
	RecordFailure(context context.Context, id string, maxAttempts int, lockUntil time.Time) (int, *time.Time, error)
	ResetLockout(context context.Context, id string) error
}

// Guard applies a tenant's lockout policy to authentication attempts.
type Guard struct {
	counters Counters
	now      func() time.Time
}

// NewGuard creates a lockout guard over the given counter store.
func NewGuard(counters Counters) *Guard {
	return &Guard{counters: counters, now: time.Now}
}

/*
IsLocked reports whether an account is currently locked under the policy.

A lockout expiry in the past means the lock has lapsed; the stale counter is
cleared by ResetOnSuccess after the next successful authentication. A
disabled policy never locks, even when an expiry is stamped from before the
policy was switched off.

Parameters:
  - account: *principal.Principal
  - policy: tenant.LockoutPolicy

Returns:
  - bool: true when authentication must be rejected
*/
func (guard *Guard) IsLocked(account *principal.Principal, policy tenant.LockoutPolicy) bool {
	if !policy.Enabled {
		return false
	}
	return account.LockoutUntil != nil && account.LockoutUntil.After(guard.now())
}

/*
RecordFailure registers one failed credential check and engages the lock
when the tenant's threshold is reached.

The increment and the conditional lock happen in one atomic repository call,
so concurrent failures cannot overshoot or skip the threshold. With the
policy disabled the counter still advances but the threshold is never armed.

Parameters:
  - context: context.Context
  - account: *principal.Principal
  - policy: tenant.LockoutPolicy

Returns:
  - bool: true when this failure engaged the lock
  - *time.Time: active lockout expiry, nil when not locked
  - error: Repository errors
*/
func (guard *Guard) RecordFailure(context context.Context, account *principal.Principal, policy tenant.LockoutPolicy) (bool, *time.Time, error) {
	maxAttempts := 0
	if policy.Enabled {
		maxAttempts = policy.MaxAttempts
	}

	attempts, lockedUntil, err := guard.counters.RecordFailure(
		context, account.ID, maxAttempts, guard.now().Add(policy.Duration))
	if err != nil {
		return false, nil, err
	}

	engaged := policy.Enabled && maxAttempts > 0 && attempts >= maxAttempts
	return engaged, lockedUntil, nil
}

/*
ResetOnSuccess clears the failure counter and any lockout expiry after a
successful authentication or credential reset.

Parameters:
  - context: context.Context
  - accountID: string

Returns:
  - error: Repository errors
*/
func (guard *Guard) ResetOnSuccess(context context.Context, accountID string) error {
	return guard.counters.ResetLockout(context, accountID)
}
