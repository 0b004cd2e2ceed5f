// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

/*
Package authz resolves the effective permission set of an account.

Effective permissions are the union of two grant paths: codes attached to the
account's roles and codes granted directly to the account. The resolved set
is cached in Redis under one key per (tenant, account) pair; module-scoped
reads filter that set in process rather than holding per-module keys, which
keeps invalidation a single idempotent DEL.

The cache is an optimization, never an authority: any cache failure falls
open to a direct authority read with a logged warning.
*/
package authz

import (
	"time"
)

// # Domain Entities

// Permission is a grantable capability, identified by a "module.action" code.
type Permission struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Role is a named bundle of permissions within a tenant.
type Role struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
