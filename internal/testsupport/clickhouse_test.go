package testsupport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type agentRow struct {
	AgentID string `ch:"agent_id"`
	Queries uint64 `ch:"queries"`
}

func TestClickHouseBatchAndCleanup(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	helper := NewClickHouseTestHelper(t, ClickHouseConfigFromEnv(t))
	table := helper.CreateTempTable(t, "agent_id String, queries UInt64")

	CreateBatch(t, helper, "INSERT INTO "+table, []agentRow{
		{AgentID: "finance", Queries: 3},
		{AgentID: "sales", Queries: 1},
	})

	var total uint64
	require.NoError(t, helper.Client().Conn().QueryRow(ctx, "SELECT sum(queries) FROM "+table).Scan(&total))
	assert.Equal(t, uint64(4), total)

	require.NoError(t, helper.CleanupTable(ctx, table))

	var exists uint8
	require.NoError(t, helper.Client().Conn().QueryRow(ctx, "EXISTS TABLE "+table).Scan(&exists))
	assert.Zero(t, exists)
}
