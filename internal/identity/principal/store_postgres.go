// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package principal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veyralabs/veyra/internal/platform/apperr"
	"github.com/veyralabs/veyra/internal/platform/dberr"
)

// PostgresRepository implements the Repository interface using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL implementation of the account Repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const accountColumns = `
	id, tenantid, username, email, passwordhash, displayname,
	isactive, isverified, failedattempts, lockoutuntil,
	lastloginat, createdat, updatedat`

/*
Create persists a new account record.

Parameters:
  - context: context.Context
  - account: *Principal with ID and timestamps already assigned

Returns:
  - error: apperr.Conflict on duplicate email/username, or execution errors
*/
func (repository *PostgresRepository) Create(context context.Context, account *Principal) error {
	query := `
		INSERT INTO identity.account (
			id, tenantid, username, email, passwordhash, displayname,
			isactive, isverified, failedattempts, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10)`

	_, err := repository.pool.Exec(context, query,
		account.ID,
		account.TenantID,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.DisplayName,
		account.IsActive,
		account.IsVerified,
		account.CreatedAt,
		account.UpdatedAt,
	)

	if err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_account_repo_create_failed: %w", err))
	}
	return nil
}

/*
FindByID retrieves an account by its primary key.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *Principal: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresRepository) FindByID(context context.Context, id string) (*Principal, error) {
	query := `SELECT ` + accountColumns + ` FROM identity.account WHERE id = $1 AND deletedat IS NULL`
	return repository.scanOne(context, query, id)
}

/*
FindByEmail retrieves an account by email address within a tenant.

Emails are stored lowercase; the caller normalizes before lookup.

Parameters:
  - context: context.Context
  - tenantID: string
  - email: string (normalized lowercase)

Returns:
  - *Principal: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresRepository) FindByEmail(context context.Context, tenantID, email string) (*Principal, error) {
	query := `SELECT ` + accountColumns + ` FROM identity.account
		WHERE tenantid = $1 AND email = $2 AND deletedat IS NULL`
	return repository.scanOne(context, query, tenantID, email)
}

/*
FindByUsername retrieves an account by username within a tenant.

Parameters:
  - context: context.Context
  - tenantID: string
  - username: string

Returns:
  - *Principal: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresRepository) FindByUsername(context context.Context, tenantID, username string) (*Principal, error) {
	query := `SELECT ` + accountColumns + ` FROM identity.account
		WHERE tenantid = $1 AND username = $2 AND deletedat IS NULL`
	return repository.scanOne(context, query, tenantID, username)
}

/*
UpdatePassword replaces the stored credential hash.

Parameters:
  - context: context.Context
  - id: string
  - passwordHash: string (bcrypt encoded)

Returns:
  - error: apperr.NotFound when no row matched, or execution errors
*/
func (repository *PostgresRepository) UpdatePassword(context context.Context, id, passwordHash string) error {
	query := `UPDATE identity.account SET passwordhash = $2, updatedat = NOW()
		WHERE id = $1 AND deletedat IS NULL`
	return repository.execOne(context, "postgres_account_repo_update_password_failed", query, id, passwordHash)
}

/*
MarkVerified flags the account's email address as confirmed.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: apperr.NotFound when no row matched, or execution errors
*/
func (repository *PostgresRepository) MarkVerified(context context.Context, id string) error {
	query := `UPDATE identity.account SET isverified = TRUE, updatedat = NOW()
		WHERE id = $1 AND deletedat IS NULL`
	return repository.execOne(context, "postgres_account_repo_mark_verified_failed", query, id)
}

/*
RecordFailure atomically increments the failed-attempt counter and applies a
lockout in the same statement once the threshold is reached.

A single UPDATE keeps concurrent failures race-free: two simultaneous wrong
passwords each observe their own post-increment count, and the CASE guard
ensures exactly the attempt that crosses the threshold stamps the expiry.

Parameters:
  - context: context.Context
  - id: string
  - maxAttempts: int (0 or negative disables locking; the counter still advances)
  - lockUntil: time.Time (expiry to stamp when the threshold is crossed)

Returns:
  - int: post-increment failure count
  - *time.Time: effective lockout expiry, nil when not locked
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresRepository) RecordFailure(context context.Context, id string, maxAttempts int, lockUntil time.Time) (int, *time.Time, error) {
	query := `
		UPDATE identity.account
		SET failedattempts = failedattempts + 1,
		    lockoutuntil = CASE
		        WHEN $2 > 0 AND failedattempts + 1 >= $2 THEN $3
		        ELSE lockoutuntil
		    END,
		    updatedat = NOW()
		WHERE id = $1 AND deletedat IS NULL
		RETURNING failedattempts, lockoutuntil`

	var attempts int
	var lockedUntil *time.Time

	err := repository.pool.QueryRow(context, query, id, maxAttempts, lockUntil).Scan(&attempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, apperr.NotFound("Account")
		}
		return 0, nil, fmt.Errorf("postgres_account_repo_record_failure_failed: %w", err)
	}

	return attempts, lockedUntil, nil
}

/*
ResetLockout clears the failed-attempt counter and any lockout expiry.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: apperr.NotFound when no row matched, or execution errors
*/
func (repository *PostgresRepository) ResetLockout(context context.Context, id string) error {
	query := `UPDATE identity.account SET failedattempts = 0, lockoutuntil = NULL, updatedat = NOW()
		WHERE id = $1 AND deletedat IS NULL`
	return repository.execOne(context, "postgres_account_repo_reset_lockout_failed", query, id)
}

/*
TouchLastLogin records a successful authentication timestamp.

Parameters:
  - context: context.Context
  - id: string
  - at: time.Time

Returns:
  - error: apperr.NotFound when no row matched, or execution errors
*/
func (repository *PostgresRepository) TouchLastLogin(context context.Context, id string, at time.Time) error {
	query := `UPDATE identity.account SET lastloginat = $2, updatedat = NOW()
		WHERE id = $1 AND deletedat IS NULL`
	return repository.execOne(context, "postgres_account_repo_touch_last_login_failed", query, id, at)
}

// execOne runs a mutation expected to touch exactly one row.
func (repository *PostgresRepository) execOne(context context.Context, label, query string, args ...any) error {
	tag, err := repository.pool.Exec(context, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Account")
	}
	return nil
}

// scanOne executes a single-row account query and hydrates the entity.
func (repository *PostgresRepository) scanOne(context context.Context, query string, args ...any) (*Principal, error) {
	entity := &Principal{}

	err := repository.pool.QueryRow(context, query, args...).Scan(
		&entity.ID,
		&entity.TenantID,
		&entity.Username,
		&entity.Email,
		&entity.PasswordHash,
		&entity.DisplayName,
		&entity.IsActive,
		&entity.IsVerified,
		&entity.FailedAttempts,
		&entity.LockoutUntil,
		&entity.LastLoginAt,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Account")
		}
		return nil, fmt.Errorf("postgres_account_repo_find_failed: %w", err)
	}

	return entity, nil
}
