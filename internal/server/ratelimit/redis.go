package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "folioguard:rl"

// RedisLimiter is a fixed-window counter shared by every server instance:
// INCR and EXPIRE NX run in one MULTI/EXEC so the window starts with the
// first hit. Requires Redis 7 or later.
type RedisLimiter struct {
	client redis.UniversalClient
	rules  Rules
}

func NewRedisLimiter(client redis.UniversalClient, rules Rules) *RedisLimiter {
	return &RedisLimiter{client: client, rules: rules}
}

func redisKey(bucket Bucket, key string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, bucket, key)
}

func (r *RedisLimiter) Allow(ctx context.Context, bucket Bucket, key string) (bool, error) {
	rule, ok := r.rules[bucket]
	if !ok || rule.Limit <= 0 {
		return true, nil
	}

	k := redisKey(bucket, key)
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, rule.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit %s: %w", bucket, err)
	}
	return incr.Val() <= int64(rule.Limit), nil
}
