// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veyralabs/veyra/internal/platform/constants"
)

// RedisCounterStore implements CounterStore using Redis.
//
// # Atomicity
//
// INCR is atomic in Redis, and the whole sequence runs inside a MULTI/EXEC
// transaction, so concurrent callers across instances always observe a
// monotonically increasing counter. EXPIRE is applied with the NX flag: the
// TTL is armed exactly once per window and never pushed out by later
// increments, which is what keeps the window from sliding forward under
// sustained traffic.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore creates a new Redis-backed CounterStore.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

/*
Increment atomically bumps the window counter and reports its value and TTL.

Parameters:
  - context: context.Context
  - key: string
  - window: time.Duration

Returns:
  - int64: Counter value after the increment
  - time.Duration: Remaining key TTL
  - error: Execution errors
*/
func (store *RedisCounterStore) Increment(context context.Context, key string, window time.Duration) (int64, time.Duration, error) {

	// Run INCR + EXPIRE NX + TTL as a single transaction.
	pipeline := store.client.TxPipeline()
	incrCmd := pipeline.Incr(context, key)
	pipeline.ExpireNX(context, key, window)
	ttlCmd := pipeline.TTL(context, key)

	if _, err := pipeline.Exec(context); err != nil {
		return 0, 0, fmt.Errorf("redis_ratelimit_increment_failed: %w", err)
	}

	return incrCmd.Val(), ttlCmd.Val(), nil
}

// counterKey builds the namespaced Redis key for a (category, identity) pair.
func counterKey(category Category, identity string) string {
	return fmt.Sprintf("%s%s:%s", constants.RedisPrefixRateLimit, category, identity)
}
