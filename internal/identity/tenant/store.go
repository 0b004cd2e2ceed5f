// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package tenant

import "context"

// # Tenant Data Access

// Repository defines the read-only data access contract for tenants.
//
// This core never mutates tenants: lockout policy and activity flags are
// owned by the out-of-scope administration layer.
type Repository interface {

	/*
		FindByID returns the tenant with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Tenant: Hydrated entity
		  - error: apperr.NotFound or database errors
	*/
	FindByID(context context.Context, id string) (*Tenant, error)

	/*
		FindBySlug returns the tenant with the given slug.

		Parameters:
		  - context: context.Context
		  - slug: string

		Returns:
		  - *Tenant: Hydrated entity
		  - error: apperr.NotFound or database errors
	*/
	FindBySlug(context context.Context, slug string) (*Tenant, error)
}
