// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veyralabs/veyra/internal/platform/apperr"
	"github.com/veyralabs/veyra/pkg/pagination"
)

// PostgresSessionRepository implements SessionRepository using pgx.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new PostgreSQL implementation of SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

const sessionColumns = `
	id, accountid, tenantid, tokenhash, useragent, ipaddress,
	expiresat, isrevoked, revokedat, lastusedat, createdat`

/*
Create persists a new tracking session.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: Execution errors
*/
func (repository *PostgresSessionRepository) Create(context context.Context, session *Session) error {
	query := `
		INSERT INTO identity.session (
			id, accountid, tenantid, tokenhash, useragent, ipaddress,
			expiresat, isrevoked, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := repository.pool.Exec(context, query,
		session.ID,
		session.AccountID,
		session.TenantID,
		session.TokenHash,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
		session.IsRevoked,
		session.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_session_repo_create_failed: %w", err)
	}
	return nil
}

/*
FindByTokenHash returns the session matching the given secret hash,
regardless of revocation or expiry state.

Parameters:
  - context: context.Context
  - tokenHash: string (hex SHA-256)

Returns:
  - *Session: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresSessionRepository) FindByTokenHash(context context.Context, tokenHash string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM identity.session WHERE tokenhash = $1`
	return repository.scanOne(context, query, tokenHash)
}

/*
FindByID returns the session with the given ID.

Parameters:
  - context: context.Context
  - sessionID: string

Returns:
  - *Session: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresSessionRepository) FindByID(context context.Context, sessionID string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM identity.session WHERE id = $1`
	return repository.scanOne(context, query, sessionID)
}

/*
Revoke marks a session as permanently invalidated. Already-revoked sessions
are left untouched so revokedat always records the first revocation.

Parameters:
  - context: context.Context
  - sessionID: string

Returns:
  - error: Execution errors
*/
func (repository *PostgresSessionRepository) Revoke(context context.Context, sessionID string) error {
	query := `UPDATE identity.session SET isrevoked = TRUE, revokedat = NOW()
		WHERE id = $1 AND isrevoked = FALSE`

	if _, err := repository.pool.Exec(context, query, sessionID); err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_failed: %w", err)
	}
	return nil
}

/*
RevokeAll revokes every active session belonging to the account.

Parameters:
  - context: context.Context
  - accountID: string

Returns:
  - error: Execution errors
*/
func (repository *PostgresSessionRepository) RevokeAll(context context.Context, accountID string) error {
	query := `UPDATE identity.session SET isrevoked = TRUE, revokedat = NOW()
		WHERE accountid = $1 AND isrevoked = FALSE`

	if _, err := repository.pool.Exec(context, query, accountID); err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_all_failed: %w", err)
	}
	return nil
}

/*
RevokeOthers revokes all active sessions of the account except the current one.

Parameters:
  - context: context.Context
  - accountID: string
  - currentSessionID: string

Returns:
  - error: Execution errors
*/
func (repository *PostgresSessionRepository) RevokeOthers(context context.Context, accountID, currentSessionID string) error {
	query := `UPDATE identity.session SET isrevoked = TRUE, revokedat = NOW()
		WHERE accountid = $1 AND id <> $2 AND isrevoked = FALSE`

	if _, err := repository.pool.Exec(context, query, accountID, currentSessionID); err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_others_failed: %w", err)
	}
	return nil
}

/*
ListActive returns the account's unrevoked, unexpired sessions, newest first.

Parameters:
  - context: context.Context
  - accountID: string
  - params: pagination.Params

Returns:
  - []*Session: Page of sessions
  - int: Total active session count
  - error: Execution errors
*/
func (repository *PostgresSessionRepository) ListActive(context context.Context, accountID string, params pagination.Params) ([]*Session, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM identity.session
		WHERE accountid = $1 AND isrevoked = FALSE AND expiresat > NOW()`
	if err := repository.pool.QueryRow(context, countQuery, accountID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres_session_repo_count_failed: %w", err)
	}

	query := `SELECT ` + sessionColumns + ` FROM identity.session
		WHERE accountid = $1 AND isrevoked = FALSE AND expiresat > NOW()
		ORDER BY createdat DESC
		LIMIT $2 OFFSET $3`

	rows, err := repository.pool.Query(context, query, accountID, params.Limit, params.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("postgres_session_repo_list_failed: %w", err)
	}
	defer rows.Close()

	sessions := []*Session{}
	for rows.Next() {
		session := &Session{}
		if err := rows.Scan(
			&session.ID,
			&session.AccountID,
			&session.TenantID,
			&session.TokenHash,
			&session.UserAgent,
			&session.IPAddress,
			&session.ExpiresAt,
			&session.IsRevoked,
			&session.RevokedAt,
			&session.LastUsedAt,
			&session.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("postgres_session_repo_scan_failed: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres_session_repo_list_failed: %w", err)
	}
	return sessions, total, nil
}

/*
TouchLastUsed stamps the session's last validation time.

Parameters:
  - context: context.Context
  - sessionID: string
  - at: time.Time

Returns:
  - error: Execution errors
*/
func (repository *PostgresSessionRepository) TouchLastUsed(context context.Context, sessionID string, at time.Time) error {
	query := `UPDATE identity.session SET lastusedat = $2 WHERE id = $1`

	if _, err := repository.pool.Exec(context, query, sessionID, at); err != nil {
		return fmt.Errorf("postgres_session_repo_touch_failed: %w", err)
	}
	return nil
}

/*
DeleteExpired physically removes sessions whose lifetime has lapsed.

Intended for a periodic janitor; revoked-but-unexpired rows are kept so that
their revocation remains observable.

Parameters:
  - context: context.Context

Returns:
  - error: Execution errors
*/
func (repository *PostgresSessionRepository) DeleteExpired(context context.Context) error {
	query := `DELETE FROM identity.session WHERE expiresat < NOW()`

	if _, err := repository.pool.Exec(context, query); err != nil {
		return fmt.Errorf("postgres_session_repo_delete_expired_failed: %w", err)
	}
	return nil
}

// scanOne executes a single-row session query and hydrates the entity.
func (repository *PostgresSessionRepository) scanOne(context context.Context, query string, arg any) (*Session, error) {
	session := &Session{}

	err := repository.pool.QueryRow(context, query, arg).Scan(
		&session.ID,
		&session.AccountID,
		&session.TenantID,
		&session.TokenHash,
		&session.UserAgent,
		&session.IPAddress,
		&session.ExpiresAt,
		&session.IsRevoked,
		&session.RevokedAt,
		&session.LastUsedAt,
		&session.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("postgres_session_repo_find_failed: %w", err)
	}

	return session, nil
}
