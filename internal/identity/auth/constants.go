// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package auth

import "time"

// # Authentication Constraints

const (
	// DefaultAccessTokenTTL is the duration a JWT access token remains valid
	// unless overridden by configuration. Short (15m) so that permission and
	// revocation changes propagate within one token lifetime.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultSessionTTL is the duration a refresh session remains valid
	// unless overridden by configuration.
	DefaultSessionTTL = 7 * 24 * time.Hour

	// SessionTokenLength is the byte length of the random session secret.
	// 32 bytes gives 256 bits of entropy.
	SessionTokenLength = 32

	// ResetTokenTTL is the duration a password reset token remains valid.
	// Short-lived (1 hour) for security.
	ResetTokenTTL = 1 * time.Hour

	// ResetTokenLength is the byte length of the random password reset token.
	ResetTokenLength = 32

	// VerificationTokenTTL is the duration an email verification token remains
	// valid. Long-lived (24 hours) as users might not check email immediately.
	VerificationTokenTTL = 24 * time.Hour

	// VerificationTokenLength is the byte length of the random verification token.
	VerificationTokenLength = 32
)
