// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veyralabs/veyra/internal/platform/constants"
)

// RedisCache implements CacheRepository using Redis.
//
// One key per (tenant, account) pair holding the full permission set as a
// JSON array. Module-scoped filtering happens in process, so invalidation
// never needs a key scan.
type RedisCache struct {
	client *redis.Client
}

// NewCache creates a new Redis-backed CacheRepository.
func NewCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// cacheKey builds the permission-set key for an account.
func cacheKey(tenantID, accountID string) string {
	return fmt.Sprintf("%s%s:%s", constants.RedisPrefixPermissions, tenantID, accountID)
}

/*
Get retrieves the cached permission set for an account.

Parameters:
  - context: context.Context
  - tenantID: string
  - accountID: string

Returns:
  - []string: Cached permission codes
  - bool: false when no value is cached (not an error)
  - error: Connectivity or decode errors
*/
func (cache *RedisCache) Get(context context.Context, tenantID, accountID string) ([]string, bool, error) {
	payload, err := cache.client.Get(context, cacheKey(tenantID, accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis_permission_cache_get_failed: %w", err)
	}

	var codes []string
	if err := json.Unmarshal(payload, &codes); err != nil {
		// A corrupt entry is treated as a miss after the decode error is
		// surfaced; the caller repopulates it.
		return nil, false, fmt.Errorf("redis_permission_cache_decode_failed: %w", err)
	}

	return codes, true, nil
}

/*
Set stores the permission set with a safety TTL.

Parameters:
  - context: context.Context
  - tenantID: string
  - accountID: string
  - codes: []string
  - timeToLive: time.Duration (bounds staleness when invalidation is missed)

Returns:
  - error: Encode or execution errors
*/
func (cache *RedisCache) Set(context context.Context, tenantID, accountID string, codes []string, timeToLive time.Duration) error {
	payload, err := json.Marshal(codes)
	if err != nil {
		return fmt.Errorf("redis_permission_cache_encode_failed: %w", err)
	}

	if err := cache.client.Set(context, cacheKey(tenantID, accountID), payload, timeToLive).Err(); err != nil {
		return fmt.Errorf("redis_permission_cache_set_failed: %w", err)
	}
	return nil
}

/*
Delete removes the cached permission set. Deleting an absent key succeeds.

Parameters:
  - context: context.Context
  - tenantID: string
  - accountID: string

Returns:
  - error: Execution errors
*/
func (cache *RedisCache) Delete(context context.Context, tenantID, accountID string) error {
	if err := cache.client.Del(context, cacheKey(tenantID, accountID)).Err(); err != nil {
		return fmt.Errorf("redis_permission_cache_delete_failed: %w", err)
	}
	return nil
}
