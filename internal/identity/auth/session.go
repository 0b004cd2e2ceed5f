// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

/*
Package auth implements the token and session lifecycle of the identity
platform.

It covers registration, credential verification with lockout enforcement,
RS256 access-token issuance, opaque refresh sessions, and credential
recovery. Sessions are the revocable unit: access tokens are short-lived and
stateless, refresh sessions are tracked rows whose revocation takes effect
immediately.

# Architecture

  - Service: Orchestrates the authentication flows.
  - Repository: Abstracted interfaces for Postgres (sessions) and Redis
    (volatile recovery tokens).
  - Security: Bcrypt credential hashing, RSA-signed JWTs, SHA-256 hashed
    session secrets.
*/
package auth

import (
	"time"
)

// # Domain Entities

// Session represents an active refresh-token session.
//
// The opaque secret handed to the client is never stored; TokenHash holds
// its SHA-256 digest, so a database leak exposes no usable credentials.
type Session struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	TenantID  string `json:"tenant_id"`
	TokenHash string `json:"-"` // Hashed value of the session secret. Omitted for security.
	UserAgent string `json:"user_agent"`
	IPAddress string `json:"ip_address"`

	ExpiresAt time.Time  `json:"expires_at"`
	IsRevoked bool       `json:"is_revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`

	// LastUsedAt is bumped best-effort on validation; concurrent refreshes
	// are last-write-wins.
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`

	// Current marks the caller's own session in listings. Never persisted.
	Current bool `json:"current"`
}

// Expired reports whether the session's lifetime has lapsed at the given time.
func (session *Session) Expired(now time.Time) bool {
	return !session.ExpiresAt.After(now)
}

// # Field Identifiers

// Global field names for validation and identity mapping in the authentication domain.
const (
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldDisplayName     = "display_name"
	FieldLogin           = "login"
	FieldTenant          = "tenant"
	FieldToken           = "token"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldAccessToken     = "access_token"
	FieldTokenType       = "token_type"
	FieldExpiresIn       = "expires_in"
	FieldAccount         = "account"
	FieldSessions        = "sessions"
	FieldPermissions     = "permissions"
	FieldMessage         = "message"
)
