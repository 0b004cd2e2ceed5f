// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veyralabs/veyra/internal/platform/apperr"
)

// PostgresRepository implements the Repository interface using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL implementation of the tenant Repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const tenantColumns = `
	id, name, slug, isactive, requireverifiedemail,
	lockoutenabled, lockoutmaxattempts, lockoutdurationseconds,
	createdat, updatedat`

/*
FindByID retrieves a tenant by its primary key.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *Tenant: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresRepository) FindByID(context context.Context, id string) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM identity.tenant WHERE id = $1`
	return repository.scanOne(context, query, id)
}

/*
FindBySlug retrieves a tenant by its unique slug.

Parameters:
  - context: context.Context
  - slug: string

Returns:
  - *Tenant: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresRepository) FindBySlug(context context.Context, slug string) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM identity.tenant WHERE slug = $1`
	return repository.scanOne(context, query, slug)
}

// scanOne executes a single-row tenant query and hydrates the entity.
func (repository *PostgresRepository) scanOne(context context.Context, query string, arg any) (*Tenant, error) {
	entity := &Tenant{}
	var lockoutSeconds int64

	err := repository.pool.QueryRow(context, query, arg).Scan(
		&entity.ID,
		&entity.Name,
		&entity.Slug,
		&entity.IsActive,
		&entity.RequireVerifiedEmail,
		&entity.Lockout.Enabled,
		&entity.Lockout.MaxAttempts,
		&lockoutSeconds,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Tenant")
		}
		return nil, fmt.Errorf("postgres_tenant_repo_find_failed: %w", err)
	}

	entity.Lockout.Duration = time.Duration(lockoutSeconds) * time.Second
	return entity, nil
}
