package testsupport

import (
	"os"
	"testing"

	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/require"

	"erpinsight/internal/adapters/config"
)

var (
	postgresKeys   = []string{"POSTGRES_HOST", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB"}
	clickHouseKeys = []string{"CLICKHOUSE_HOST", "CLICKHOUSE_DB"}
	redisKeys      = []string{"REDIS_HOST"}
)

// DatabaseConfigs is every store an end-to-end test touches
type DatabaseConfigs struct {
	Postgres   config.PostgresConfig
	ClickHouse config.ClickHouseConfig
	Redis      config.RedisConfig
}

// LoadDatabaseConfigsFromEnv skips unless all three stores are configured.
// Values go through the same envconfig tags the service uses.
func LoadDatabaseConfigsFromEnv(t *testing.T) DatabaseConfigs {
	t.Helper()
	requireEnv(t, append(append(append([]string{}, postgresKeys...), clickHouseKeys...), redisKeys...)...)

	var cfg DatabaseConfigs
	processEnv(t, &cfg.Postgres)
	processEnv(t, &cfg.ClickHouse)
	processEnv(t, &cfg.Redis)
	return cfg
}

func PostgresConfigFromEnv(t *testing.T) config.PostgresConfig {
	t.Helper()
	requireEnv(t, postgresKeys...)
	var cfg config.PostgresConfig
	processEnv(t, &cfg)
	return cfg
}

func ClickHouseConfigFromEnv(t *testing.T) config.ClickHouseConfig {
	t.Helper()
	requireEnv(t, clickHouseKeys...)
	var cfg config.ClickHouseConfig
	processEnv(t, &cfg)
	return cfg
}

func RedisConfigFromEnv(t *testing.T) config.RedisConfig {
	t.Helper()
	requireEnv(t, redisKeys...)
	var cfg config.RedisConfig
	processEnv(t, &cfg)
	return cfg
}

func requireEnv(t *testing.T, keys ...string) {
	t.Helper()

	var missing []string
	for _, key := range keys {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		t.Skipf("integration environment missing, set %v to run", missing)
	}
}

func processEnv(t *testing.T, target any) {
	t.Helper()
	require.NoError(t, envconfig.Process("", target))
}
