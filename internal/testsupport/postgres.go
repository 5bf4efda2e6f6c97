package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"erpinsight/internal/adapters/config"
	"erpinsight/internal/adapters/postgres"
)

// PostgresTestHelper runs a knowledge base test inside one transaction that
// is rolled back on cleanup, so document rows never outlive the test.
type PostgresTestHelper struct {
	client     *postgres.Client
	tx         *sqlx.Tx
	rolledBack bool
}

// NewPostgresTestHelper connects, makes sure pgvector is installed and opens
// the test transaction.
func NewPostgresTestHelper(t *testing.T, cfg config.PostgresConfig) *PostgresTestHelper {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := postgres.NewClient(ctx, cfg)
	require.NoError(t, err, "connect to postgres")
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.DB().ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	require.NoError(t, err, "pgvector extension")

	tx, err := client.DB().BeginTxx(ctx, nil)
	require.NoError(t, err, "begin test transaction")

	helper := &PostgresTestHelper{client: client, tx: tx}
	t.Cleanup(helper.Rollback)
	return helper
}

// Tx is handed to repositories in place of the pool
func (h *PostgresTestHelper) Tx() *sqlx.Tx {
	return h.tx
}

func (h *PostgresTestHelper) DB() *sqlx.DB {
	return h.client.DB()
}

// Rollback is idempotent
func (h *PostgresTestHelper) Rollback() {
	if h.rolledBack {
		return
	}
	_ = h.tx.Rollback()
	h.rolledBack = true
}
