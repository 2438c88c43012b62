package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lueurxax/change-observer/internal/core/domain"
)

const redisKeyPrefix = "observer:ledger:"

// RedisCache keeps fresh ledger records in Redis with a per-key TTL.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the cached record, or nil on a miss.
func (c *RedisCache) Get(ctx context.Context, url, userID string) (*domain.AnalyzedOpportunity, error) {
	raw, err := c.client.Get(ctx, redisKey(url, userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("redis get: %w", err)
	}

	var op domain.AnalyzedOpportunity
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, fmt.Errorf("decode cached record: %w", err)
	}

	return &op, nil
}

// Set stores the record until ttl elapses.
func (c *RedisCache) Set(ctx context.Context, op domain.AnalyzedOpportunity, ttl time.Duration) error {
	raw, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("encode cached record: %w", err)
	}

	if err := c.client.Set(ctx, redisKey(op.URL, op.UserID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

func redisKey(url, userID string) string {
	return redisKeyPrefix + userID + ":" + url
}
