package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"erpinsight/internal/adapters/config"
	redisclient "erpinsight/internal/adapters/redis"
)

// NewRedisClient connects through the production adapter and flushes the
// selected database before and after the test. Point REDIS_DB at a scratch db.
func NewRedisClient(t *testing.T, cfg config.RedisConfig) *redis.Client {
	t.Helper()

	client, err := redisclient.NewClient(cfg)
	require.NoError(t, err, "connect to redis")

	rdb := client.Client()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rdb.FlushDB(ctx).Err(), "flush redis before test")

	t.Cleanup(func() {
		_ = rdb.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return rdb
}
