package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpinsight/internal/events"
	"erpinsight/internal/testsupport"
)

func TestQueryLogRepository_StoreAndStats(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping ClickHouse integration test in short mode")
	}

	helper := testsupport.NewClickHouseTestHelper(t, testsupport.ClickHouseConfigFromEnv(t))
	repo := NewQueryLogRepository(helper.Client().Conn())
	ctx := context.Background()
	require.NoError(t, repo.EnsureSchema(ctx))

	user := testsupport.UniqueUserID()
	helper.RegisterTableCleanup(t, "agent_queries", "user_id = '"+user+"'")

	repo.Start(ctx)
	for i, agent := range []string{"finance", "finance", "sales"} {
		e := events.NewQueryCompleted(user)
		e.QueryID = testsupport.UniqueQueryID()
		e.AgentID = agent
		e.AgentsUsed = []string{agent}
		e.DurationMS = int64(100 * (i + 1))
		if agent == "sales" {
			e.Error = "LLM_ERROR"
		}
		require.NoError(t, repo.Store(ctx, &e))
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, repo.Stop(stopCtx))

	ids, err := repo.UserQueries(ctx, user, 10)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	stats, err := repo.AgentStats(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	byAgent := make(map[string]AgentQueryStats)
	for _, s := range stats {
		byAgent[s.AgentID] = s
	}
	assert.GreaterOrEqual(t, byAgent["finance"].Queries, uint64(2))
	assert.GreaterOrEqual(t, byAgent["sales"].Failures, uint64(1))
}

func TestQueryLogRepository_RejectsEventsWithoutID(t *testing.T) {
	repo := NewQueryLogRepository(nil)
	assert.Error(t, repo.Store(context.Background(), nil))
	assert.Error(t, repo.Store(context.Background(), &events.QueryCompleted{}))

	_, err := repo.UserQueries(context.Background(), " ", 5)
	assert.Error(t, err)
}
