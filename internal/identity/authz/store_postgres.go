// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package authz

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresAuthority implements AuthorityRepository using pgx.
type PostgresAuthority struct {
	pool *pgxpool.Pool
}

// NewAuthority creates a new PostgreSQL implementation of AuthorityRepository.
func NewAuthority(pool *pgxpool.Pool) *PostgresAuthority {
	return &PostgresAuthority{pool: pool}
}

/*
PermissionCodes returns the deduplicated union of role-path and direct-path
permission codes for an account within a tenant.

A single UNION query keeps the read one round trip; UNION itself removes
duplicates across the two paths.

Parameters:
  - context: context.Context
  - tenantID: string
  - accountID: string

Returns:
  - []string: permission codes, no ordering guarantee
  - error: execution errors
*/
func (authority *PostgresAuthority) PermissionCodes(context context.Context, tenantID, accountID string) ([]string, error) {
	query := `
		SELECT p.code
		FROM identity.accountrole ar
		JOIN identity.rolepermission rp ON rp.roleid = ar.roleid
		JOIN identity.permission p ON p.id = rp.permissionid
		WHERE ar.accountid = $1 AND p.tenantid = $2
		UNION
		SELECT p.code
		FROM identity.accountpermission ap
		JOIN identity.permission p ON p.id = ap.permissionid
		WHERE ap.accountid = $1 AND p.tenantid = $2`

	return authority.scanCodes(context, "postgres_authority_permission_codes_failed", query, accountID, tenantID)
}

/*
RoleNames returns the names of the roles assigned to an account.

Parameters:
  - context: context.Context
  - tenantID: string
  - accountID: string

Returns:
  - []string: role names
  - error: execution errors
*/
func (authority *PostgresAuthority) RoleNames(context context.Context, tenantID, accountID string) ([]string, error) {
	query := `
		SELECT r.name
		FROM identity.accountrole ar
		JOIN identity.role r ON r.id = ar.roleid
		WHERE ar.accountid = $1 AND r.tenantid = $2
		ORDER BY r.name`

	return authority.scanCodes(context, "postgres_authority_role_names_failed", query, accountID, tenantID)
}

/*
RoleHolders returns the IDs of every account currently holding a role.

Used by role-level cache invalidation to fan out to the affected accounts.

Parameters:
  - context: context.Context
  - tenantID: string
  - roleID: string

Returns:
  - []string: account IDs
  - error: execution errors
*/
func (authority *PostgresAuthority) RoleHolders(context context.Context, tenantID, roleID string) ([]string, error) {
	query := `
		SELECT ar.accountid
		FROM identity.accountrole ar
		JOIN identity.role r ON r.id = ar.roleid
		WHERE ar.roleid = $1 AND r.tenantid = $2`

	return authority.scanCodes(context, "postgres_authority_role_holders_failed", query, roleID, tenantID)
}

// scanCodes collects a single text column into a slice.
func (authority *PostgresAuthority) scanCodes(context context.Context, label, query string, args ...any) ([]string, error) {
	rows, err := authority.pool.Query(context, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	defer rows.Close()

	codes := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		codes = append(codes, code)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return codes, nil
}
