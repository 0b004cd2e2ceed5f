// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veyralabs/veyra/internal/identity/principal"
	"github.com/veyralabs/veyra/internal/identity/tenant"
)

// fakeCounters mirrors the conditional-lock semantics of the SQL increment.
type fakeCounters struct {
	attempts    int
	lockedUntil *time.Time
}

func (counters *fakeCounters) RecordFailure(_ context.Context, _ string, maxAttempts int, lockUntil time.Time) (int, *time.Time, error) {
	counters.attempts++
	if maxAttempts > 0 && counters.attempts >= maxAttempts {
		until := lockUntil
		counters.lockedUntil = &until
	}
	return counters.attempts, counters.lockedUntil, nil
}

func (counters *fakeCounters) ResetLockout(_ context.Context, _ string) error {
	counters.attempts = 0
	counters.lockedUntil = nil
	return nil
}

func newTestGuard(counters *fakeCounters, at time.Time) *Guard {
	guard := NewGuard(counters)
	guard.now = func() time.Time { return at }
	return guard
}

var testPolicy = tenant.LockoutPolicy{
	Enabled:     true,
	MaxAttempts: 5,
	Duration:    15 * time.Minute,
}

/*
TestGuard_LockEngagesAtThreshold walks an account through five consecutive
failures and verifies the lock engages exactly on the fifth.
*/
func TestGuard_LockEngagesAtThreshold(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	counters := &fakeCounters{}
	guard := newTestGuard(counters, now)
	account := &principal.Principal{ID: "acc-1"}

	for i := 0; i < 4; i++ {
		engaged, _, err := guard.RecordFailure(context.Background(), account, testPolicy)
		require.NoError(t, err)
		assert.False(t, engaged, "failure %d must not lock", i+1)
	}

	engaged, until, err := guard.RecordFailure(context.Background(), account, testPolicy)
	require.NoError(t, err)
	assert.True(t, engaged)
	require.NotNil(t, until)
	assert.Equal(t, now.Add(15*time.Minute), *until)
}

/*
TestGuard_IsLocked_RejectsDuringWindow verifies that a locked account is
rejected while the expiry is in the future and accepted after it lapses.
*/
func TestGuard_IsLocked_RejectsDuringWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(15 * time.Minute)
	account := &principal.Principal{ID: "acc-1", FailedAttempts: 5, LockoutUntil: &until}

	guard := newTestGuard(&fakeCounters{}, now.Add(14*time.Minute))
	assert.True(t, guard.IsLocked(account, testPolicy))

	guard = newTestGuard(&fakeCounters{}, now.Add(16*time.Minute))
	assert.False(t, guard.IsLocked(account, testPolicy), "lock lapses after the window")
}

/*
TestGuard_DisabledPolicy verifies that a disabled policy tracks counters but
never engages or honors a lock.
*/
func TestGuard_DisabledPolicy(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	disabled := tenant.LockoutPolicy{Enabled: false, MaxAttempts: 5, Duration: 15 * time.Minute}
	counters := &fakeCounters{}
	guard := newTestGuard(counters, now)
	account := &principal.Principal{ID: "acc-1"}

	for i := 0; i < 10; i++ {
		engaged, _, err := guard.RecordFailure(context.Background(), account, disabled)
		require.NoError(t, err)
		assert.False(t, engaged)
	}
	assert.Equal(t, 10, counters.attempts, "counter still advances when disabled")

	// A stale expiry from before the policy was switched off is ignored.
	until := now.Add(time.Hour)
	account.LockoutUntil = &until
	assert.False(t, guard.IsLocked(account, disabled))
}

/*
TestGuard_ResetOnSuccess verifies that a successful authentication clears
the counter and any lock.
*/
func TestGuard_ResetOnSuccess(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	counters := &fakeCounters{}
	guard := newTestGuard(counters, now)
	account := &principal.Principal{ID: "acc-1"}

	for i := 0; i < 3; i++ {
		_, _, err := guard.RecordFailure(context.Background(), account, testPolicy)
		require.NoError(t, err)
	}

	require.NoError(t, guard.ResetOnSuccess(context.Background(), "acc-1"))
	assert.Zero(t, counters.attempts)
	assert.Nil(t, counters.lockedUntil)

	// A fresh failure after the reset starts counting from one.
	engaged, _, err := guard.RecordFailure(context.Background(), account, testPolicy)
	require.NoError(t, err)
	assert.False(t, engaged)
	assert.Equal(t, 1, counters.attempts)
}
