// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/veyralabs/veyra/internal/identity/event"
	"github.com/veyralabs/veyra/internal/identity/lockout"
	"github.com/veyralabs/veyra/internal/identity/principal"
	"github.com/veyralabs/veyra/internal/identity/tenant"
	"github.com/veyralabs/veyra/internal/platform/apperr"
	"github.com/veyralabs/veyra/internal/platform/sec"
	"github.com/veyralabs/veyra/pkg/pagination"
	"github.com/veyralabs/veyra/pkg/uuid"
)

// # Contracts & Types

// TokenProvider defines the contract for generating signed access tokens.
type TokenProvider interface {
	// GenerateAccessToken creates a signed JWT embedding the account's
	// tenant, roles and effective permissions.
	GenerateAccessToken(userID, tenantID string, roles, permissions []string, timeToLive time.Duration) (string, error)
}

// Authorizer resolves the effective permission set embedded in access tokens.
type Authorizer interface {
	Resolve(context context.Context, tenantID, accountID string) ([]string, error)
	Roles(context context.Context, tenantID, accountID string) ([]string, error)
}

// Service implements the authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, lockout,
// or session logic must be reviewed by the security team.
type Service struct {
	tenantRepository            tenant.Repository
	accountRepository           principal.Repository
	sessionRepository           SessionRepository
	resetTokenRepository        ResetTokenRepository
	verificationTokenRepository VerificationTokenRepository
	tokenProvider               TokenProvider
	authorizer                  Authorizer
	guard                       *lockout.Guard
	events                      event.Emitter
	logger                      *slog.Logger

	accessTokenTTL time.Duration
	sessionTTL     time.Duration
}

// Options bundles the service dependencies to keep the constructor readable.
type Options struct {
	Tenants            tenant.Repository
	Accounts           principal.Repository
	Sessions           SessionRepository
	ResetTokens        ResetTokenRepository
	VerificationTokens VerificationTokenRepository
	Tokens             TokenProvider
	Authorizer         Authorizer
	Guard              *lockout.Guard
	Events             event.Emitter
	Logger             *slog.Logger

	// AccessTokenTTL and SessionTTL fall back to package defaults when zero.
	AccessTokenTTL time.Duration
	SessionTTL     time.Duration
}

// NewService constructs a new authentication [Service].
func NewService(options Options) *Service {
	if options.AccessTokenTTL <= 0 {
		options.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if options.SessionTTL <= 0 {
		options.SessionTTL = DefaultSessionTTL
	}

	return &Service{
		tenantRepository:            options.Tenants,
		accountRepository:           options.Accounts,
		sessionRepository:           options.Sessions,
		resetTokenRepository:        options.ResetTokens,
		verificationTokenRepository: options.VerificationTokens,
		tokenProvider:               options.Tokens,
		authorizer:                  options.Authorizer,
		guard:                       options.Guard,
		events:                      options.Events,
		logger:                      options.Logger,
		accessTokenTTL:              options.AccessTokenTTL,
		sessionTTL:                  options.SessionTTL,
	}
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new account.
type RegisterInput struct {
	TenantSlug  string
	Username    string
	Email       string
	Password    string
	DisplayName string
}

/*
Register validates, hashes, and persists a brand new account within a tenant.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *principal.Principal: Created entity
  - error: Conflict (if identity exists), NotFound (unknown tenant), or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*principal.Principal, error) {
	owner, err := service.activeTenant(context, input.TenantSlug)
	if err != nil {
		return nil, err
	}

	email := normalizeEmail(input.Email)

	// Verify uniqueness within the tenant. Return a client-safe Conflict err.
	_, err = service.accountRepository.FindByEmail(context, owner.ID, email)
	if err == nil {
		return nil, apperr.Conflict("Email is already registered")
	}
	_, err = service.accountRepository.FindByUsername(context, owner.ID, input.Username)
	if err == nil {
		return nil, apperr.Conflict("Username is already taken")
	}

	// Prevent storing plain-text passwords. Default cost is used for balance
	// between security and CPU utilization during registration spikes.
	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	now := time.Now()
	account := &principal.Principal{
		ID:           uuid.New(),
		TenantID:     owner.ID,
		Username:     input.Username,
		Email:        email,
		PasswordHash: hashedPassword,
		DisplayName:  input.DisplayName,
		IsActive:     true,
		IsVerified:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := service.accountRepository.Create(context, account); err != nil {
		return nil, fmt.Errorf("auth_service_register_failed: %w", err)
	}

	// Generate and store a verification token in Redis as an async-ready side effect
	token, err := sec.GenerateSecureToken(VerificationTokenLength)
	if err == nil {
		_ = service.verificationTokenRepository.Set(context, token, account.ID, VerificationTokenTTL)
		// TODO: Trigger email service with the verification link
	}

	return account, nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	TenantSlug string
	Login      string // Can be Username or Email
	Password   string
	UserAgent  string
	IPAddress  string
}

// LoginSession represents a successfully established session.
type LoginSession struct {
	AccessToken           string
	SessionToken          string
	SessionTokenExpiresAt time.Time
	Account               *principal.Principal
}

/*
Login validates credentials under the tenant's lockout policy and issues
security tokens.

Order of checks is deliberate: the lockout gate runs before the credential
comparison, so a locked account is rejected whether or not the submitted
password is correct.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginSession: Transport-ready session identifiers
  - error: Unauthorized, Locked, or internal failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginSession, error) {
	owner, err := service.activeTenant(context, input.TenantSlug)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// Flexible login: look up by Email or Username within the tenant.
	account, err := service.accountRepository.FindByEmail(context, owner.ID, normalizeEmail(input.Login))
	if err != nil {
		account, err = service.accountRepository.FindByUsername(context, owner.ID, input.Login)
	}

	// If (err != nil) the account does not exist. Generic message to prevent enumeration.
	if err != nil {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// Lockout gate. Runs before the password comparison so the credential
	// result cannot matter for a locked account.
	if service.guard.IsLocked(account, owner.Lockout) {
		return nil, apperr.Locked("Account is temporarily locked")
	}

	// Verify password hash using constant-time comparison in bcrypt to prevent timing attacks
	if !sec.CheckPasswordHash(input.Password, account.PasswordHash) {
		service.recordFailedLogin(context, account, owner, input.IPAddress)
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	if !account.IsActive {
		return nil, apperr.Unauthorized("Account is disabled")
	}
	if owner.RequireVerifiedEmail && !account.IsVerified {
		return nil, apperr.Unauthorized("Email address is not verified")
	}

	// Successful authentication clears the failure counter and any lapsed lock.
	if err := service.guard.ResetOnSuccess(context, account.ID); err != nil {
		return nil, fmt.Errorf("auth_service_lockout_reset_failed: %w", err)
	}
	if err := service.accountRepository.TouchLastLogin(context, account.ID, time.Now()); err != nil {
		service.logger.Warn("last login stamp failed", "account_id", account.ID, "error", err)
	}

	return service.establishSession(context, owner.ID, account, input.UserAgent, input.IPAddress)
}

// recordFailedLogin advances the lockout counter and emits security events.
func (service *Service) recordFailedLogin(context context.Context, account *principal.Principal, owner *tenant.Tenant, ipAddress string) {
	engaged, until, err := service.guard.RecordFailure(context, account, owner.Lockout)
	if err != nil {
		service.logger.Error("lockout counter update failed", "account_id", account.ID, "error", err)
		return
	}

	service.events.Emit(event.Event{
		Type:      event.TypeLoginFailure,
		TenantID:  owner.ID,
		AccountID: account.ID,
		Metadata:  map[string]string{"ip": ipAddress},
	})

	if engaged && until != nil {
		service.events.Emit(event.Event{
			Type:      event.TypeLockoutEngaged,
			TenantID:  owner.ID,
			AccountID: account.ID,
			Metadata:  map[string]string{"locked_until": until.Format(time.RFC3339)},
		})
	}
}

// establishSession resolves claims, mints the token pair, and persists the
// tracking session.
func (service *Service) establishSession(context context.Context, tenantID string, account *principal.Principal, userAgent, ipAddress string) (*LoginSession, error) {
	permissions, err := service.authorizer.Resolve(context, tenantID, account.ID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_permission_resolve_failed: %w", err)
	}
	roles, err := service.authorizer.Roles(context, tenantID, account.ID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_role_resolve_failed: %w", err)
	}

	// A signing failure is an operational fault, never an authentication verdict.
	accessToken, err := service.tokenProvider.GenerateAccessToken(account.ID, tenantID, roles, permissions, service.accessTokenTTL)
	if err != nil {
		return nil, apperr.Dependency("token_signer", err)
	}

	sessionToken, err := sec.GenerateSecureToken(SessionTokenLength)
	if err != nil {
		return nil, fmt.Errorf("auth_service_session_token_failed: %w", err)
	}

	expiresAt := time.Now().Add(service.sessionTTL)
	session := &Session{
		ID:        uuid.New(),
		AccountID: account.ID,
		TenantID:  tenantID,
		TokenHash: sec.HashToken(sessionToken),
		UserAgent: userAgent,
		IPAddress: ipAddress,
		ExpiresAt: expiresAt,
		IsRevoked: false,
		CreatedAt: time.Now(),
	}

	if err := service.sessionRepository.Create(context, session); err != nil {
		return nil, fmt.Errorf("auth_service_session_creation_failed: %w", err)
	}

	return &LoginSession{
		AccessToken:           accessToken,
		SessionToken:          sessionToken,
		SessionTokenExpiresAt: expiresAt,
		Account:               account,
	}, nil
}

// # Session Management

/*
ValidateSession authenticates an opaque session secret.

A session is valid only while the record exists, is not revoked, has not
expired, and both its account and tenant remain active. Revocation is
store-authoritative: the verdict always reflects the current row, never a
cached copy.

Parameters:
  - context: context.Context
  - sessionToken: string

Returns:
  - *Session: The validated session
  - *principal.Principal: Its account
  - error: apperr.Unauthorized for every invalid state
*/
func (service *Service) ValidateSession(context context.Context, sessionToken string) (*Session, *principal.Principal, error) {
	session, err := service.sessionRepository.FindByTokenHash(context, sec.HashToken(sessionToken))
	if err != nil {
		return nil, nil, apperr.Unauthorized("Invalid or expired session")
	}
	if session.IsRevoked || session.Expired(time.Now()) {
		return nil, nil, apperr.Unauthorized("Invalid or expired session")
	}

	account, err := service.accountRepository.FindByID(context, session.AccountID)
	if err != nil || !account.IsActive {
		return nil, nil, apperr.Unauthorized("Invalid or expired session")
	}

	owner, err := service.tenantRepository.FindByID(context, session.TenantID)
	if err != nil || !owner.IsActive {
		return nil, nil, apperr.Unauthorized("Invalid or expired session")
	}

	// Best-effort usage stamp; a failure here must not fail validation.
	if err := service.sessionRepository.TouchLastUsed(context, session.ID, time.Now()); err != nil {
		service.logger.Warn("session usage stamp failed", "session_id", session.ID, "error", err)
	}

	return session, account, nil
}

/*
Refresh exchanges a valid session secret for a fresh access token and a new
session.

The used session is deliberately left active until it expires or is revoked:
clients may hold the same secret across concurrently refreshing tabs, and
revocation-on-refresh would turn that race into a forced logout. Mass
revocation remains available to cut all secrets at once.

Parameters:
  - context: context.Context
  - sessionToken: string
  - userAgent: string
  - ipAddress: string

Returns:
  - *LoginSession: New session credentials
  - error: Unauthorized or storage failures
*/
func (service *Service) Refresh(context context.Context, sessionToken, userAgent, ipAddress string) (*LoginSession, error) {
	session, account, err := service.ValidateSession(context, sessionToken)
	if err != nil {
		return nil, err
	}

	return service.establishSession(context, session.TenantID, account, userAgent, ipAddress)
}

/*
Logout permanently revokes the session identified by the secret.

Idempotent: an unknown or already-revoked secret still reports success.

Parameters:
  - context: context.Context
  - sessionToken: string

Returns:
  - error: Revocation failures
*/
func (service *Service) Logout(context context.Context, sessionToken string) error {
	session, err := service.sessionRepository.FindByTokenHash(context, sec.HashToken(sessionToken))
	if err != nil {
		return nil
	}

	if err := service.sessionRepository.Revoke(context, session.ID); err != nil {
		return fmt.Errorf("auth_service_logout_failed: %w", err)
	}

	service.events.Emit(event.Event{
		Type:      event.TypeSessionRevoked,
		TenantID:  session.TenantID,
		AccountID: session.AccountID,
		Metadata:  map[string]string{"session_id": session.ID},
	})
	return nil
}

/*
RevokeSession revokes one of the caller's sessions by ID.

Parameters:
  - context: context.Context
  - accountID: string (the caller; ownership is enforced)
  - sessionID: string

Returns:
  - error: apperr.NotFound for unknown or foreign sessions, storage failures
*/
func (service *Service) RevokeSession(context context.Context, accountID, sessionID string) error {
	session, err := service.sessionRepository.FindByID(context, sessionID)
	if err != nil {
		return err
	}

	// A foreign session is reported as absent, not forbidden, so session IDs
	// of other accounts cannot be probed.
	if session.AccountID != accountID {
		return apperr.NotFound("Session")
	}

	if err := service.sessionRepository.Revoke(context, session.ID); err != nil {
		return fmt.Errorf("auth_service_revoke_session_failed: %w", err)
	}

	service.events.Emit(event.Event{
		Type:      event.TypeSessionRevoked,
		TenantID:  session.TenantID,
		AccountID: session.AccountID,
		Metadata:  map[string]string{"session_id": session.ID},
	})
	return nil
}

/*
ListSessions returns the caller's active sessions, newest first, with the
session matching currentTokenHash flagged as current.

Parameters:
  - context: context.Context
  - accountID: string
  - currentTokenHash: string (may be empty when the caller sent no session secret)
  - params: pagination.Params

Returns:
  - []*Session: Page of sessions
  - int: Total active session count
  - error: Retrieval failures
*/
func (service *Service) ListSessions(context context.Context, accountID, currentTokenHash string, params pagination.Params) ([]*Session, int, error) {
	sessions, total, err := service.sessionRepository.ListActive(context, accountID, params)
	if err != nil {
		return nil, 0, fmt.Errorf("auth_service_list_sessions_failed: %w", err)
	}

	for _, session := range sessions {
		session.Current = currentTokenHash != "" && session.TokenHash == currentTokenHash
	}
	return sessions, total, nil
}

/*
RevokeOthers revokes every session of the account except the current one,
after re-proving the credential.

Mass revocation is a destructive, security-sensitive action; holding a valid
access token is not enough, the caller must present the password again.

Parameters:
  - context: context.Context
  - accountID: string
  - currentSessionToken: string
  - password: string

Returns:
  - error: Unauthorized when the password fails, storage failures
*/
func (service *Service) RevokeOthers(context context.Context, accountID, currentSessionToken, password string) error {
	account, err := service.accountRepository.FindByID(context, accountID)
	if err != nil {
		return err
	}

	if !sec.CheckPasswordHash(password, account.PasswordHash) {
		return apperr.Unauthorized("Current password is incorrect")
	}

	current, err := service.sessionRepository.FindByTokenHash(context, sec.HashToken(currentSessionToken))
	if err != nil {
		return apperr.Unauthorized("Invalid or expired session")
	}

	if err := service.sessionRepository.RevokeOthers(context, accountID, current.ID); err != nil {
		return fmt.Errorf("auth_service_revoke_others_failed: %w", err)
	}

	service.events.Emit(event.Event{
		Type:      event.TypeMassRevocation,
		TenantID:  account.TenantID,
		AccountID: account.ID,
		Metadata:  map[string]string{"kept_session_id": current.ID},
	})
	return nil
}

// # Password Recovery

/*
RequestPasswordReset initiates the forgot-password flow.

NOTE: An unknown email returns success with an empty token to prevent
account enumeration.

Parameters:
  - context: context.Context
  - tenantSlug: string
  - email: string

Returns:
  - string: Reset token (empty for unknown accounts)
  - error: Generation errors
*/
func (service *Service) RequestPasswordReset(context context.Context, tenantSlug, email string) (string, error) {
	owner, err := service.activeTenant(context, tenantSlug)
	if err != nil {
		return "", nil
	}

	account, err := service.accountRepository.FindByEmail(context, owner.ID, normalizeEmail(email))
	if err != nil {
		return "", nil
	}

	token, err := sec.GenerateSecureToken(ResetTokenLength)
	if err != nil {
		return "", fmt.Errorf("auth_service_generate_reset_token_failed: %w", err)
	}

	if err := service.resetTokenRepository.Set(context, token, account.ID, ResetTokenTTL); err != nil {
		return "", fmt.Errorf("auth_service_save_reset_token_failed: %w", err)
	}

	return token, nil
}

/*
ResetPassword completes the forgot-password flow.

A successful reset proves control of the mailbox, so it also clears any
lockout state and revokes every active session.

Parameters:
  - context: context.Context
  - token: string
  - newPassword: string

Returns:
  - error: Validation or update failures
*/
func (service *Service) ResetPassword(context context.Context, token, newPassword string) error {
	accountID, err := service.resetTokenRepository.Get(context, token)
	if err != nil {
		return err
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_reset_password_hash_failed: %w", err)
	}

	if err := service.accountRepository.UpdatePassword(context, accountID, hashedPassword); err != nil {
		return fmt.Errorf("auth_service_reset_password_update_failed: %w", err)
	}

	// The mailbox owner has re-proven control; stale failure counters go too.
	_ = service.guard.ResetOnSuccess(context, accountID)

	// Security Cleanup: Revoke EVERY active session for this account
	_ = service.sessionRepository.RevokeAll(context, accountID)
	_ = service.resetTokenRepository.Delete(context, token)

	if account, err := service.accountRepository.FindByID(context, accountID); err == nil {
		service.events.Emit(event.Event{
			Type:      event.TypePasswordReset,
			TenantID:  account.TenantID,
			AccountID: account.ID,
		})
	}

	return nil
}

/*
ChangePassword allows an authenticated account to update its credentials.

Verifies the current password and then revokes all OTHER sessions to force
re-login on other devices.

Parameters:
  - context: context.Context
  - accountID: string
  - currentPassword: string
  - newPassword: string
  - currentSessionToken: string

Returns:
  - error: Unauthorized or storage failures
*/
func (service *Service) ChangePassword(context context.Context, accountID, currentPassword, newPassword, currentSessionToken string) error {
	account, err := service.accountRepository.FindByID(context, accountID)
	if err != nil {
		return err
	}

	if !sec.CheckPasswordHash(currentPassword, account.PasswordHash) {
		return apperr.Unauthorized("Current password is incorrect")
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_change_password_hash_failed: %w", err)
	}

	if err := service.accountRepository.UpdatePassword(context, accountID, hashedPassword); err != nil {
		return fmt.Errorf("auth_service_change_password_update_failed: %w", err)
	}

	// Security Side Effect: Revoke all other sessions to force re-login on other devices
	session, err := service.sessionRepository.FindByTokenHash(context, sec.HashToken(currentSessionToken))
	if err == nil {
		_ = service.sessionRepository.RevokeOthers(context, accountID, session.ID)
		service.events.Emit(event.Event{
			Type:      event.TypeMassRevocation,
			TenantID:  account.TenantID,
			AccountID: account.ID,
			Metadata:  map[string]string{"kept_session_id": session.ID},
		})
	}

	return nil
}

/*
VerifyEmail confirms an account's email address using a secure token.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - error: Database or resolution errors
*/
func (service *Service) VerifyEmail(context context.Context, token string) error {
	accountID, err := service.verificationTokenRepository.Get(context, token)
	if err != nil {
		return err
	}

	if err := service.accountRepository.MarkVerified(context, accountID); err != nil {
		return fmt.Errorf("auth_service_verify_email_failed: %w", err)
	}

	_ = service.verificationTokenRepository.Delete(context, token)
	return nil
}

// # Helpers

// activeTenant resolves a slug to an active tenant.
func (service *Service) activeTenant(context context.Context, slug string) (*tenant.Tenant, error) {
	owner, err := service.tenantRepository.FindBySlug(context, slug)
	if err != nil {
		return nil, err
	}
	if !owner.IsActive {
		return nil, apperr.NotFound("Tenant")
	}
	return owner, nil
}

// normalizeEmail lowercases and trims an email for storage and lookup.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
