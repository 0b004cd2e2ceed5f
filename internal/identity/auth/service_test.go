// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veyralabs/veyra/internal/identity/auth"
	"github.com/veyralabs/veyra/internal/identity/event"
	"github.com/veyralabs/veyra/internal/identity/lockout"
	"github.com/veyralabs/veyra/internal/identity/principal"
	"github.com/veyralabs/veyra/internal/identity/tenant"
	"github.com/veyralabs/veyra/internal/platform/apperr"
	"github.com/veyralabs/veyra/internal/platform/sec"
	"github.com/veyralabs/veyra/pkg/pagination"
)

// # In-Memory Fakes

type fakeTenantRepo struct {
	tenants map[string]*tenant.Tenant // keyed by slug
}

func (repo *fakeTenantRepo) FindByID(_ context.Context, id string) (*tenant.Tenant, error) {
	for _, owner := range repo.tenants {
		if owner.ID == id {
			return owner, nil
		}
	}
	return nil, apperr.NotFound("Tenant")
}

func (repo *fakeTenantRepo) FindBySlug(_ context.Context, slug string) (*tenant.Tenant, error) {
	if owner, ok := repo.tenants[slug]; ok {
		return owner, nil
	}
	return nil, apperr.NotFound("Tenant")
}

type fakeAccountRepo struct {
	accounts map[string]*principal.Principal // keyed by ID
}

func (repo *fakeAccountRepo) Create(_ context.Context, account *principal.Principal) error {
	repo.accounts[account.ID] = account
	return nil
}

func (repo *fakeAccountRepo) FindByID(_ context.Context, id string) (*principal.Principal, error) {
	if account, ok := repo.accounts[id]; ok {
		return account, nil
	}
	return nil, apperr.NotFound("Account")
}

func (repo *fakeAccountRepo) FindByEmail(_ context.Context, tenantID, email string) (*principal.Principal, error) {
	for _, account := range repo.accounts {
		if account.TenantID == tenantID && account.Email == email {
			return account, nil
		}
	}
	return nil, apperr.NotFound("Account")
}

func (repo *fakeAccountRepo) FindByUsername(_ context.Context, tenantID, username string) (*principal.Principal, error) {
	for _, account := range repo.accounts {
		if account.TenantID == tenantID && account.Username == username {
			return account, nil
		}
	}
	return nil, apperr.NotFound("Account")
}

func (repo *fakeAccountRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	account, ok := repo.accounts[id]
	if !ok {
		return apperr.NotFound("Account")
	}
	account.PasswordHash = passwordHash
	return nil
}

func (repo *fakeAccountRepo) MarkVerified(_ context.Context, id string) error {
	account, ok := repo.accounts[id]
	if !ok {
		return apperr.NotFound("Account")
	}
	account.IsVerified = true
	return nil
}

// RecordFailure mirrors the conditional-lock semantics of the SQL statement.
func (repo *fakeAccountRepo) RecordFailure(_ context.Context, id string, maxAttempts int, lockUntil time.Time) (int, *time.Time, error) {
	account, ok := repo.accounts[id]
	if !ok {
		return 0, nil, apperr.NotFound("Account")
	}
	account.FailedAttempts++
	if maxAttempts > 0 && account.FailedAttempts >= maxAttempts {
		until := lockUntil
		account.LockoutUntil = &until
	}
	return account.FailedAttempts, account.LockoutUntil, nil
}

func (repo *fakeAccountRepo) ResetLockout(_ context.Context, id string) error {
	account, ok := repo.accounts[id]
	if !ok {
		return apperr.NotFound("Account")
	}
	account.FailedAttempts = 0
	account.LockoutUntil = nil
	return nil
}

func (repo *fakeAccountRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	account, ok := repo.accounts[id]
	if !ok {
		return apperr.NotFound("Account")
	}
	account.LastLoginAt = &at
	return nil
}

type fakeSessionRepo struct {
	sessions map[string]*auth.Session // keyed by ID
}

func (repo *fakeSessionRepo) Create(_ context.Context, session *auth.Session) error {
	copied := *session
	repo.sessions[session.ID] = &copied
	return nil
}

func (repo *fakeSessionRepo) FindByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	for _, session := range repo.sessions {
		if session.TokenHash == tokenHash {
			copied := *session
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("Session")
}

func (repo *fakeSessionRepo) FindByID(_ context.Context, sessionID string) (*auth.Session, error) {
	if session, ok := repo.sessions[sessionID]; ok {
		copied := *session
		return &copied, nil
	}
	return nil, apperr.NotFound("Session")
}

func (repo *fakeSessionRepo) Revoke(_ context.Context, sessionID string) error {
	if session, ok := repo.sessions[sessionID]; ok && !session.IsRevoked {
		now := time.Now()
		session.IsRevoked = true
		session.RevokedAt = &now
	}
	return nil
}

func (repo *fakeSessionRepo) RevokeAll(_ context.Context, accountID string) error {
	for _, session := range repo.sessions {
		if session.AccountID == accountID {
			session.IsRevoked = true
		}
	}
	return nil
}

func (repo *fakeSessionRepo) RevokeOthers(_ context.Context, accountID, currentSessionID string) error {
	for _, session := range repo.sessions {
		if session.AccountID == accountID && session.ID != currentSessionID {
			session.IsRevoked = true
		}
	}
	return nil
}

func (repo *fakeSessionRepo) ListActive(_ context.Context, accountID string, _ pagination.Params) ([]*auth.Session, int, error) {
	active := []*auth.Session{}
	for _, session := range repo.sessions {
		if session.AccountID == accountID && !session.IsRevoked && session.ExpiresAt.After(time.Now()) {
			copied := *session
			active = append(active, &copied)
		}
	}
	return active, len(active), nil
}

func (repo *fakeSessionRepo) TouchLastUsed(_ context.Context, sessionID string, at time.Time) error {
	if session, ok := repo.sessions[sessionID]; ok {
		session.LastUsedAt = &at
	}
	return nil
}

func (repo *fakeSessionRepo) DeleteExpired(_ context.Context) error { return nil }

type fakeTokenStore struct {
	values map[string]string
}

func (store *fakeTokenStore) Set(_ context.Context, token, accountID string, _ time.Duration) error {
	store.values[token] = accountID
	return nil
}

func (store *fakeTokenStore) Get(_ context.Context, token string) (string, error) {
	if accountID, ok := store.values[token]; ok {
		return accountID, nil
	}
	return "", apperr.NotFound("Token")
}

func (store *fakeTokenStore) Delete(_ context.Context, token string) error {
	delete(store.values, token)
	return nil
}

type fakeTokenProvider struct {
	fail bool
}

func (provider *fakeTokenProvider) GenerateAccessToken(userID, _ string, _, _ []string, _ time.Duration) (string, error) {
	if provider.fail {
		return "", errors.New("signing key unavailable")
	}
	return "signed-jwt-" + userID, nil
}

type fakeAuthorizer struct {
	permissions map[string][]string
	roles       map[string][]string
}

func (authorizer *fakeAuthorizer) Resolve(_ context.Context, _, accountID string) ([]string, error) {
	return authorizer.permissions[accountID], nil
}

func (authorizer *fakeAuthorizer) Roles(_ context.Context, _, accountID string) ([]string, error) {
	return authorizer.roles[accountID], nil
}

type captureEmitter struct {
	events []event.Event
}

func (emitter *captureEmitter) Emit(evt event.Event) {
	emitter.events = append(emitter.events, evt)
}

func (emitter *captureEmitter) typesSeen() []event.Type {
	types := []event.Type{}
	for _, evt := range emitter.events {
		types = append(types, evt.Type)
	}
	return types
}

// # Fixture

type fixture struct {
	service  *auth.Service
	tenants  *fakeTenantRepo
	accounts *fakeAccountRepo
	sessions *fakeSessionRepo
	provider *fakeTokenProvider
	emitter  *captureEmitter
}

const testPassword = "correct horse battery staple"

func newFixture(t *testing.T) *fixture {
	t.Helper()

	hash, err := sec.HashPassword(testPassword)
	require.NoError(t, err)

	tenants := &fakeTenantRepo{tenants: map[string]*tenant.Tenant{
		"acme": {
			ID:       "ten-1",
			Name:     "Acme",
			Slug:     "acme",
			IsActive: true,
			Lockout:  tenant.LockoutPolicy{Enabled: true, MaxAttempts: 5, Duration: 15 * time.Minute},
		},
	}}

	accounts := &fakeAccountRepo{accounts: map[string]*principal.Principal{
		"acc-1": {
			ID:           "acc-1",
			TenantID:     "ten-1",
			Username:     "ada",
			Email:        "ada@example.com",
			PasswordHash: hash,
			IsActive:     true,
			IsVerified:   true,
		},
	}}

	sessions := &fakeSessionRepo{sessions: map[string]*auth.Session{}}
	provider := &fakeTokenProvider{}
	emitter := &captureEmitter{}

	service := auth.NewService(auth.Options{
		Tenants:            tenants,
		Accounts:           accounts,
		Sessions:           sessions,
		ResetTokens:        &fakeTokenStore{values: map[string]string{}},
		VerificationTokens: &fakeTokenStore{values: map[string]string{}},
		Tokens:             provider,
		Authorizer: &fakeAuthorizer{
			permissions: map[string][]string{"acc-1": {"billing.read"}},
			roles:       map[string][]string{"acc-1": {"member"}},
		},
		Guard:  lockout.NewGuard(accounts),
		Events: emitter,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	return &fixture{
		service:  service,
		tenants:  tenants,
		accounts: accounts,
		sessions: sessions,
		provider: provider,
		emitter:  emitter,
	}
}

func (f *fixture) login(t *testing.T, password string) (*auth.LoginSession, error) {
	t.Helper()
	return f.service.Login(context.Background(), auth.LoginInput{
		TenantSlug: "acme",
		Login:      "ada@example.com",
		Password:   password,
		UserAgent:  "test-agent",
		IPAddress:  "192.0.2.10",
	})
}

// # Authentication Tests

/*
TestLogin_Success verifies the happy path: token pair issued, session
persisted with only the secret's hash, last login stamped.
*/
func TestLogin_Success(t *testing.T) {
	f := newFixture(t)

	session, err := f.login(t, testPassword)
	require.NoError(t, err)

	assert.Equal(t, "signed-jwt-acc-1", session.AccessToken)
	assert.NotEmpty(t, session.SessionToken)
	assert.Equal(t, "acc-1", session.Account.ID)

	require.Len(t, f.sessions.sessions, 1)
	for _, stored := range f.sessions.sessions {
		assert.Equal(t, sec.HashToken(session.SessionToken), stored.TokenHash)
		assert.NotEqual(t, session.SessionToken, stored.TokenHash, "plaintext secret must never be stored")
		assert.Equal(t, "ten-1", stored.TenantID)
	}

	require.NotNil(t, f.accounts.accounts["acc-1"].LastLoginAt)
}

/*
TestLogin_WrongPassword returns a generic verdict and advances the failure
counter.
*/
func TestLogin_WrongPassword(t *testing.T) {
	f := newFixture(t)

	_, err := f.login(t, "wrong")
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
	assert.Equal(t, 1, f.accounts.accounts["acc-1"].FailedAttempts)
	assert.Contains(t, f.emitter.typesSeen(), event.TypeLoginFailure)
}

/*
TestLogin_LockoutEngagesAtThreshold drives five consecutive failures and
verifies the account locks, that the correct password is then rejected with
a distinguishable verdict, and that the lockout event fired.
*/
func TestLogin_LockoutEngagesAtThreshold(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 5; i++ {
		_, err := f.login(t, "wrong")
		require.Error(t, err)
	}

	assert.Contains(t, f.emitter.typesSeen(), event.TypeLockoutEngaged)

	// The correct credential cannot defeat an active lock.
	_, err := f.login(t, testPassword)
	require.Error(t, err)
	assert.Equal(t, "ACCOUNT_LOCKED", apperr.As(err).Code)
}

/*
TestLogin_SuccessResetsCounter verifies that failures below the threshold
are forgiven by one successful authentication.
*/
func TestLogin_SuccessResetsCounter(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 4; i++ {
		_, err := f.login(t, "wrong")
		require.Error(t, err)
	}

	_, err := f.login(t, testPassword)
	require.NoError(t, err)
	assert.Zero(t, f.accounts.accounts["acc-1"].FailedAttempts)

	// The slate is clean: four more failures still do not lock.
	for i := 0; i < 4; i++ {
		_, err := f.login(t, "wrong")
		require.Error(t, err)
	}
	assert.Nil(t, f.accounts.accounts["acc-1"].LockoutUntil)
}

/*
TestLogin_UnknownIdentities verifies generic rejection for unknown tenants
and accounts.
*/
func TestLogin_UnknownIdentities(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Login(context.Background(), auth.LoginInput{
		TenantSlug: "ghost", Login: "ada@example.com", Password: testPassword,
	})
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)

	_, err = f.service.Login(context.Background(), auth.LoginInput{
		TenantSlug: "acme", Login: "ghost@example.com", Password: testPassword,
	})
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
}

/*
TestLogin_InactiveStates verifies that disabled tenants and accounts, and
unverified accounts under a strict tenant, cannot authenticate.
*/
func TestLogin_InactiveStates(t *testing.T) {
	f := newFixture(t)

	f.tenants.tenants["acme"].IsActive = false
	_, err := f.login(t, testPassword)
	require.Error(t, err)

	f.tenants.tenants["acme"].IsActive = true
	f.accounts.accounts["acc-1"].IsActive = false
	_, err = f.login(t, testPassword)
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)

	f.accounts.accounts["acc-1"].IsActive = true
	f.accounts.accounts["acc-1"].IsVerified = false
	f.tenants.tenants["acme"].RequireVerifiedEmail = true
	_, err = f.login(t, testPassword)
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
}

/*
TestLogin_SignerFailureIsNotUnauthorized verifies that an unusable signing
key surfaces as a dependency fault, never as a credential verdict.
*/
func TestLogin_SignerFailureIsNotUnauthorized(t *testing.T) {
	f := newFixture(t)
	f.provider.fail = true

	_, err := f.login(t, testPassword)
	require.Error(t, err)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", apperr.As(err).Code)
}

// # Session Tests

/*
TestValidateSession_RevokedIsPermanent verifies that a revoked session never
validates again, even though the row still exists and is unexpired.
*/
func TestValidateSession_RevokedIsPermanent(t *testing.T) {
	f := newFixture(t)

	session, err := f.login(t, testPassword)
	require.NoError(t, err)

	_, _, err = f.service.ValidateSession(context.Background(), session.SessionToken)
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(context.Background(), session.SessionToken))

	for i := 0; i < 3; i++ {
		_, _, err = f.service.ValidateSession(context.Background(), session.SessionToken)
		require.Error(t, err)
		assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
	}
}

/*
TestValidateSession_InactiveOwnerRejected verifies that deactivating the
account or tenant invalidates existing sessions immediately.
*/
func TestValidateSession_InactiveOwnerRejected(t *testing.T) {
	f := newFixture(t)

	session, err := f.login(t, testPassword)
	require.NoError(t, err)

	f.accounts.accounts["acc-1"].IsActive = false
	_, _, err = f.service.ValidateSession(context.Background(), session.SessionToken)
	require.Error(t, err)

	f.accounts.accounts["acc-1"].IsActive = true
	f.tenants.tenants["acme"].IsActive = false
	_, _, err = f.service.ValidateSession(context.Background(), session.SessionToken)
	require.Error(t, err)
}

/*
TestRefresh_LeavesUsedSessionActive pins the refresh semantics: the secret
presented for a refresh remains valid alongside the newly minted session.
*/
func TestRefresh_LeavesUsedSessionActive(t *testing.T) {
	f := newFixture(t)

	first, err := f.login(t, testPassword)
	require.NoError(t, err)

	second, err := f.service.Refresh(context.Background(), first.SessionToken, "test-agent", "192.0.2.10")
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionToken, second.SessionToken)

	// The used secret is still valid; revocation-on-refresh would break
	// concurrently refreshing clients holding the same secret.
	_, _, err = f.service.ValidateSession(context.Background(), first.SessionToken)
	require.NoError(t, err)
	_, _, err = f.service.ValidateSession(context.Background(), second.SessionToken)
	require.NoError(t, err)

	assert.Len(t, f.sessions.sessions, 2)
}

/*
TestLogout_Idempotent verifies that logging out twice, or with an unknown
secret, reports success.
*/
func TestLogout_Idempotent(t *testing.T) {
	f := newFixture(t)

	session, err := f.login(t, testPassword)
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(context.Background(), session.SessionToken))
	require.NoError(t, f.service.Logout(context.Background(), session.SessionToken))
	require.NoError(t, f.service.Logout(context.Background(), "never-issued"))
}

/*
TestRevokeSession_OwnershipEnforced verifies that foreign sessions read as
absent.
*/
func TestRevokeSession_OwnershipEnforced(t *testing.T) {
	f := newFixture(t)

	session, err := f.login(t, testPassword)
	require.NoError(t, err)

	var sessionID string
	for id := range f.sessions.sessions {
		sessionID = id
	}

	err = f.service.RevokeSession(context.Background(), "someone-else", sessionID)
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperr.As(err).Code)

	require.NoError(t, f.service.RevokeSession(context.Background(), "acc-1", sessionID))
	_, _, err = f.service.ValidateSession(context.Background(), session.SessionToken)
	require.Error(t, err)
}

/*
TestListSessions_FlagsCurrent verifies the caller's own session carries the
current marker.
*/
func TestListSessions_FlagsCurrent(t *testing.T) {
	f := newFixture(t)

	first, err := f.login(t, testPassword)
	require.NoError(t, err)
	_, err = f.login(t, testPassword)
	require.NoError(t, err)

	sessions, total, err := f.service.ListSessions(
		context.Background(), "acc-1", sec.HashToken(first.SessionToken), pagination.Params{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	currentCount := 0
	for _, session := range sessions {
		if session.Current {
			currentCount++
			assert.Equal(t, sec.HashToken(first.SessionToken), session.TokenHash)
		}
	}
	assert.Equal(t, 1, currentCount)
}

/*
TestRevokeOthers_RequiresCredential verifies the password re-proof and that
only the current session survives.
*/
func TestRevokeOthers_RequiresCredential(t *testing.T) {
	f := newFixture(t)

	first, err := f.login(t, testPassword)
	require.NoError(t, err)
	second, err := f.login(t, testPassword)
	require.NoError(t, err)

	err = f.service.RevokeOthers(context.Background(), "acc-1", first.SessionToken, "wrong")
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)

	require.NoError(t, f.service.RevokeOthers(context.Background(), "acc-1", first.SessionToken, testPassword))

	_, _, err = f.service.ValidateSession(context.Background(), first.SessionToken)
	require.NoError(t, err)
	_, _, err = f.service.ValidateSession(context.Background(), second.SessionToken)
	require.Error(t, err)

	assert.Contains(t, f.emitter.typesSeen(), event.TypeMassRevocation)
}

// # Recovery Tests

/*
TestPasswordReset_FullFlow verifies the forgot/reset cycle: new credential
takes effect, all sessions die, lockout state clears.
*/
func TestPasswordReset_FullFlow(t *testing.T) {
	f := newFixture(t)

	session, err := f.login(t, testPassword)
	require.NoError(t, err)

	// A couple of failures beforehand; the reset should forgive them.
	_, _ = f.login(t, "wrong")
	_, _ = f.login(t, "wrong")

	token, err := f.service.RequestPasswordReset(context.Background(), "acme", "ada@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.NoError(t, f.service.ResetPassword(context.Background(), token, "brand new passphrase"))

	_, _, err = f.service.ValidateSession(context.Background(), session.SessionToken)
	require.Error(t, err, "existing sessions must die with the old credential")

	assert.Zero(t, f.accounts.accounts["acc-1"].FailedAttempts)
	assert.Contains(t, f.emitter.typesSeen(), event.TypePasswordReset)

	_, err = f.login(t, "brand new passphrase")
	require.NoError(t, err)

	// The token is single-use.
	err = f.service.ResetPassword(context.Background(), token, "another one")
	require.Error(t, err)
}

/*
TestRequestPasswordReset_UnknownEmailSilent verifies the anti-enumeration
behavior of the forgot flow.
*/
func TestRequestPasswordReset_UnknownEmailSilent(t *testing.T) {
	f := newFixture(t)

	token, err := f.service.RequestPasswordReset(context.Background(), "acme", "ghost@example.com")
	require.NoError(t, err)
	assert.Empty(t, token)
}

/*
TestRegister_DuplicateIdentityConflicts verifies tenant-scoped uniqueness.
*/
func TestRegister_DuplicateIdentityConflicts(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Register(context.Background(), auth.RegisterInput{
		TenantSlug: "acme", Username: "grace", Email: "ada@example.com", Password: "long enough pass",
	})
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperr.As(err).Code)

	_, err = f.service.Register(context.Background(), auth.RegisterInput{
		TenantSlug: "acme", Username: "ada", Email: "grace@example.com", Password: "long enough pass",
	})
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperr.As(err).Code)

	account, err := f.service.Register(context.Background(), auth.RegisterInput{
		TenantSlug: "acme", Username: "grace", Email: "Grace@Example.com", Password: "long enough pass",
	})
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", account.Email, "emails are normalized")
	assert.False(t, account.IsVerified)
}

/*
TestChangePassword_RevokesOtherSessions verifies the credential change side
effects.
*/
func TestChangePassword_RevokesOtherSessions(t *testing.T) {
	f := newFixture(t)

	first, err := f.login(t, testPassword)
	require.NoError(t, err)
	second, err := f.login(t, testPassword)
	require.NoError(t, err)

	err = f.service.ChangePassword(context.Background(), "acc-1", "wrong", "new passphrase!", first.SessionToken)
	require.Error(t, err)

	require.NoError(t, f.service.ChangePassword(
		context.Background(), "acc-1", testPassword, "new passphrase!", first.SessionToken))

	_, _, err = f.service.ValidateSession(context.Background(), first.SessionToken)
	require.NoError(t, err)
	_, _, err = f.service.ValidateSession(context.Background(), second.SessionToken)
	require.Error(t, err)

	_, err = f.login(t, "new passphrase!")
	require.NoError(t, err)
}
