package quickbooks

import (
	"context"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"erpinsight/internal/adapters/redis"
)

// Cache stores decoded query results
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	InvalidateRealm(ctx context.Context, realmID string) error
}

// RedisCache keeps query results in Redis
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis backed cache
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	return c.client.GetJSON(ctx, key, dest)
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.client.SetJSON(ctx, key, value, ttl)
}

// InvalidateRealm drops every cached query of one company
func (c *RedisCache) InvalidateRealm(ctx context.Context, realmID string) error {
	_, err := c.client.DeletePrefix(ctx, "qb:"+realmID+":")
	return err
}

// NopCache never stores anything
type NopCache struct{}

func (NopCache) Get(context.Context, string, interface{}) (bool, error) { return false, nil }
func (NopCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (NopCache) InvalidateRealm(context.Context, string) error { return nil }

func cacheKey(realmID, statement string) string {
	return "qb:" + realmID + ":" + strconv.FormatUint(xxhash.Sum64String(statement), 16)
}
