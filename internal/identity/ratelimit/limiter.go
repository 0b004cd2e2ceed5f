// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

/*
Package ratelimit implements shared, per-category admission control.

Every sensitive endpoint family (authentication, registration, credential
reset) has an independent ceiling of requests per window per client identity.
Counters live in Redis so the ceiling holds across all API instances; a
process-local limiter would silently multiply the effective limit by the
instance count.

# Windowing

The limiter uses a fixed-window approximation: the first request for a
(category, identity) pair creates a counter whose TTL equals the window
length, and every subsequent request increments it. The counter is never
reset before its TTL elapses, so a denied client waits at most one full
window. A true sliding log would cost a sorted set per client; the
approximation is deliberate and documented here.

# Failure Policy

The limiter is defense-in-depth layered atop authentication and lockout. When
the counter store is unreachable, behavior is configurable: fail open (allow,
log a warning — the default) or fail closed (reject with a dependency error).
*/
package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/veyralabs/veyra/internal/platform/apperr"
)

// # Categories

// Category identifies an endpoint family with its own ceiling and window.
type Category string

const (
	// CategoryGeneral covers all endpoints without a stricter policy.
	CategoryGeneral Category = "general"

	// CategoryAuthentication covers login and refresh attempts.
	CategoryAuthentication Category = "authentication"

	// CategoryRegistration covers account creation.
	CategoryRegistration Category = "registration"

	// CategoryCredentialReset covers forgot/reset password flows.
	CategoryCredentialReset Category = "credential_reset"
)

// # Contracts & Types

// Policy is the ceiling and window length for one category.
type Policy struct {
	// Limit is the maximum number of requests allowed per window.
	Limit int
	// Window is the length of the counting window.
	Window time.Duration
}

// Decision is the outcome of an admission check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool
	// RetryAfter is how long a denied client should wait. Always bounded by
	// the category's window length. Zero when Allowed.
	RetryAfter time.Duration
}

// CounterStore defines the contract for the shared window counters.
type CounterStore interface {

	/*
		Increment atomically increments the counter for the given key,
		arming a TTL equal to the window on first increment.

		Parameters:
		  - context: context.Context
		  - key: string (fully-qualified counter key)
		  - window: time.Duration

		Returns:
		  - int64: Counter value after the increment
		  - time.Duration: Remaining TTL of the counter
		  - error: Store connectivity failures
	*/
	Increment(context context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Config holds the immutable limiter configuration snapshot.
//
// It is injected at construction (never read from process-wide globals) so
// tests can exercise arbitrary policies.
type Config struct {
	// Policies maps each category to its ceiling and window.
	Policies map[Category]Policy

	// Allowlist holds client identities that bypass counting entirely.
	// Entries may be exact IPs, CIDR blocks, or API keys.
	Allowlist []string

	// FailOpen selects the behavior when the counter store is unreachable.
	FailOpen bool
}

// Limiter performs sliding-window admission control against a shared store.
type Limiter struct {
	store      CounterStore
	policies   map[Category]Policy
	allowExact map[string]struct{}
	allowCIDRs []*net.IPNet
	failOpen   bool
	logger     *slog.Logger
}

// NewLimiter constructs a [Limiter] from an immutable configuration snapshot.
func NewLimiter(store CounterStore, cfg Config, logger *slog.Logger) *Limiter {
	limiter := &Limiter{
		store:      store,
		policies:   cfg.Policies,
		allowExact: make(map[string]struct{}, len(cfg.Allowlist)),
		failOpen:   cfg.FailOpen,
		logger:     logger,
	}

	// Pre-parse the allowlist: CIDR entries get range matching, everything
	// else (plain IPs, API keys) is matched exactly.
	for _, entry := range cfg.Allowlist {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			if _, network, err := net.ParseCIDR(entry); err == nil {
				limiter.allowCIDRs = append(limiter.allowCIDRs, network)
				continue
			}
		}
		limiter.allowExact[entry] = struct{}{}
	}

	return limiter
}

// # Admission

/*
Check decides whether one request from the given client identity may proceed
in the given category.

Description: Allowlisted identities bypass counting entirely. Otherwise the
shared counter is atomically incremented and compared against the category
ceiling; the counter is incremented before any decision is returned, so a
Deny always reflects a recorded attempt.

Parameters:
  - context: context.Context
  - identity: string (client IP or API key)
  - category: Category

Returns:
  - Decision: Allow, or Deny with a bounded RetryAfter
  - error: apperr.Dependency only when the store is down AND fail-closed is configured
*/
func (limiter *Limiter) Check(context context.Context, identity string, category Category) (Decision, error) {

	// Resolve the category policy; unknown categories fall back to general.
	policy, found := limiter.policies[category]
	if !found {
		policy = limiter.policies[CategoryGeneral]
	}

	// A zero ceiling disables the category entirely.
	if policy.Limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	// Allowlisted identities are never counted.
	if limiter.isAllowlisted(identity) {
		return Decision{Allowed: true}, nil
	}

	key := counterKey(category, identity)
	count, remaining, err := limiter.store.Increment(context, key, policy.Window)

	// Store unreachable: apply the configured failure policy.
	if err != nil {
		if limiter.failOpen {
			limiter.logger.WarnContext(context, "ratelimit_store_unreachable_failing_open",
				slog.String("category", string(category)),
				slog.Any("error", err),
			)
			return Decision{Allowed: true}, nil
		}
		return Decision{}, apperr.Dependency("Rate limiter", err)
	}

	// Within the ceiling: admit.
	if count <= int64(policy.Limit) {
		return Decision{Allowed: true}, nil
	}

	// Over the ceiling: deny with the counter's remaining lifetime.
	retryAfter := remaining
	if retryAfter <= 0 || retryAfter > policy.Window {
		retryAfter = policy.Window
	}

	return Decision{Allowed: false, RetryAfter: retryAfter}, nil
}

// isAllowlisted reports whether the identity bypasses counting.
func (limiter *Limiter) isAllowlisted(identity string) bool {
	if _, found := limiter.allowExact[identity]; found {
		return true
	}

	if ip := net.ParseIP(identity); ip != nil {
		for _, network := range limiter.allowCIDRs {
			if network.Contains(ip) {
				return true
			}
		}
	}

	return false
}
