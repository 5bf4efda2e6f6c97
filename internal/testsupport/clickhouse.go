package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"erpinsight/internal/adapters/clickhouse"
	"erpinsight/internal/adapters/config"
	"erpinsight/internal/domain/ai_usage"
)

// ClickHouseTestHelper manages cleanup for ClickHouse integration tests.
type ClickHouseTestHelper struct {
	client *clickhouse.Client
}

// NewClickHouseTestHelper creates a ClickHouse client for tests.
func NewClickHouseTestHelper(t *testing.T, cfg config.ClickHouseConfig) *ClickHouseTestHelper {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := clickhouse.NewClient(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to connect to clickhouse: %v", err)
	}

	helper := &ClickHouseTestHelper{client: client}
	t.Cleanup(func() { _ = client.Close() })
	return helper
}

// CreateTempTable creates a temporary table and registers cleanup.
func (h *ClickHouseTestHelper) CreateTempTable(t *testing.T, schema string) string {
	t.Helper()

	table := fmt.Sprintf("tmp_test_%d", time.Now().UnixNano())
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) ENGINE = MergeTree() ORDER BY tuple()", table, schema)

	if err := h.client.Exec(context.Background(), query); err != nil {
		t.Fatalf("failed to create clickhouse table: %v", err)
	}

	t.Cleanup(func() {
		_ = h.client.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
	})

	return table
}

// CleanupTable drops the provided table immediately.
func (h *ClickHouseTestHelper) CleanupTable(ctx context.Context, table string) error {
	return h.client.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
}

// CleanupTableData deletes data matching a filter condition
// Example: CleanupTableData(ctx, "ai_usage", "realm_id = 'test_realm'")
func (h *ClickHouseTestHelper) CleanupTableData(ctx context.Context, table, condition string) error {
	query := fmt.Sprintf("ALTER TABLE %s DELETE WHERE %s", table, condition)
	return h.client.Exec(ctx, query)
}

// RegisterTableCleanup schedules cleanup of specific table data after test completes
// This is useful when working with shared tables that shouldn't be dropped
func (h *ClickHouseTestHelper) RegisterTableCleanup(t *testing.T, table, condition string) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Use DELETE for immediate cleanup (ALTER TABLE DELETE is async)
		query := fmt.Sprintf("DELETE FROM %s WHERE %s", table, condition)
		_ = h.client.Exec(ctx, query)
	})
}

// CreateBatch is a generic function to insert test data into ClickHouse tables
// Usage: testsupport.CreateBatch(t, helper, testsupport.InsertAIUsage, logs)
func CreateBatch[T any](t *testing.T, helper *ClickHouseTestHelper, insertQuery string, items []T) {
	t.Helper()

	if len(items) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	batch, err := helper.client.Conn().PrepareBatch(ctx, insertQuery)
	if err != nil {
		t.Fatalf("failed to prepare batch: %v", err)
	}

	for _, item := range items {
		if err := batch.AppendStruct(&item); err != nil {
			t.Fatalf("failed to append item to batch: %v", err)
		}
	}

	if err := batch.Send(); err != nil {
		t.Fatalf("failed to send batch: %v", err)
	}
}

// InsertAIUsage is the batch insert statement for the ai_usage table
const InsertAIUsage = `
	INSERT INTO ai_usage (
		timestamp, event_id, user_id, realm_id, query_id, agent_id, purpose,
		provider, model_id, model_family,
		prompt_tokens, completion_tokens, total_tokens,
		input_cost_usd, output_cost_usd, total_cost_usd,
		latency_ms, success, error_message, created_at
	)
`

// Client exposes the raw ClickHouse client for queries.
func (h *ClickHouseTestHelper) Client() *clickhouse.Client {
	return h.client
}

// UsageLogFixture provides builder pattern for creating test usage logs
type UsageLogFixture struct {
	log ai_usage.UsageLog
}

// NewUsageLogFixture creates a successful finance-agent Claude call
func NewUsageLogFixture() *UsageLogFixture {
	now := time.Now().UTC().Truncate(time.Second)
	return &UsageLogFixture{
		log: ai_usage.UsageLog{
			Timestamp:        now,
			EventID:          UniqueEventID(),
			UserID:           "test_user",
			RealmID:          "test_realm",
			QueryID:          UniqueString(),
			AgentID:          "finance",
			Purpose:          "analysis",
			Provider:         "claude",
			ModelID:          "claude-3-5-sonnet-20241022",
			ModelFamily:      "claude-3.5",
			PromptTokens:     1200,
			CompletionTokens: 300,
			TotalTokens:      1500,
			InputCostUSD:     0.0036,
			OutputCostUSD:    0.0045,
			TotalCostUSD:     0.0081,
			LatencyMs:        1800,
			Success:          true,
			CreatedAt:        now,
		},
	}
}

// WithUser sets the user and realm
func (f *UsageLogFixture) WithUser(userID, realmID string) *UsageLogFixture {
	f.log.UserID = userID
	f.log.RealmID = realmID
	return f
}

// WithAgent sets the agent id and purpose
func (f *UsageLogFixture) WithAgent(agentID, purpose string) *UsageLogFixture {
	f.log.AgentID = agentID
	f.log.Purpose = purpose
	return f
}

// WithProvider sets provider and model
func (f *UsageLogFixture) WithProvider(provider, model string) *UsageLogFixture {
	f.log.Provider = provider
	f.log.ModelID = model
	return f
}

// WithCost splits total cost evenly between input and output
func (f *UsageLogFixture) WithCost(total float64) *UsageLogFixture {
	f.log.InputCostUSD = total / 2
	f.log.OutputCostUSD = total / 2
	f.log.TotalCostUSD = total
	return f
}

// WithTimestamp sets the event time
func (f *UsageLogFixture) WithTimestamp(ts time.Time) *UsageLogFixture {
	f.log.Timestamp = ts
	f.log.CreatedAt = ts
	return f
}

// Failed marks the call as failed
func (f *UsageLogFixture) Failed(msg string) *UsageLogFixture {
	f.log.Success = false
	f.log.ErrorMessage = msg
	f.log.CompletionTokens = 0
	f.log.OutputCostUSD = 0
	f.log.TotalCostUSD = f.log.InputCostUSD
	return f
}

// Build returns the constructed usage log
func (f *UsageLogFixture) Build() ai_usage.UsageLog {
	return f.log
}

// BuildMany creates logs one minute apart with fresh event ids
func (f *UsageLogFixture) BuildMany(count int) []ai_usage.UsageLog {
	logs := make([]ai_usage.UsageLog, count)
	for i := 0; i < count; i++ {
		entry := f.log
		entry.EventID = UniqueEventID()
		entry.Timestamp = f.log.Timestamp.Add(time.Duration(i) * time.Minute)
		entry.CreatedAt = entry.Timestamp
		logs[i] = entry
	}
	return logs
}
