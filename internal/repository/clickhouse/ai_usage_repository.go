package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"erpinsight/internal/domain/ai_usage"
	"erpinsight/pkg/clickhouse"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

// Schema is the ai_usage table. Applied by EnsureSchema at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS ai_usage (
	timestamp         DateTime64(3),
	event_id          String,
	user_id           String,
	realm_id          String,
	query_id          String,
	agent_id          LowCardinality(String),
	purpose           LowCardinality(String),
	provider          LowCardinality(String),
	model_id          LowCardinality(String),
	model_family      LowCardinality(String),
	prompt_tokens     UInt32,
	completion_tokens UInt32,
	total_tokens      UInt32,
	input_cost_usd    Float64,
	output_cost_usd   Float64,
	total_cost_usd    Float64,
	latency_ms        UInt32,
	success           Bool,
	error_message     String,
	created_at        DateTime64(3)
) ENGINE = MergeTree
PARTITION BY toYYYYMM(timestamp)
ORDER BY (user_id, timestamp)
TTL toDateTime(timestamp) + INTERVAL 1 YEAR`

const insertUsage = `
	INSERT INTO ai_usage (
		timestamp, event_id, user_id, realm_id, query_id,
		agent_id, purpose,
		provider, model_id, model_family,
		prompt_tokens, completion_tokens, total_tokens,
		input_cost_usd, output_cost_usd, total_cost_usd,
		latency_ms, success, error_message, created_at
	)`

// AIUsageRepository implements ai_usage.Repository for ClickHouse
// Uses batch writer for efficient bulk inserts
type AIUsageRepository struct {
	conn        driver.Conn
	batchWriter *clickhouse.BatchWriter[*ai_usage.UsageLog]
}

var _ ai_usage.Repository = (*AIUsageRepository)(nil)

// NewAIUsageRepository creates a new AI usage repository with batch writer
func NewAIUsageRepository(conn driver.Conn) *AIUsageRepository {
	repo := &AIUsageRepository{
		conn: conn,
	}

	repo.batchWriter = clickhouse.NewBatchWriter(clickhouse.BatchWriterConfig[*ai_usage.UsageLog]{
		FlushFunc:    repo.flushBatch,
		TableName:    "ai_usage",
		MaxBatchSize: 200,
		MaxAge:       5 * time.Second,
	})

	return repo
}

// EnsureSchema creates the ai_usage table if it does not exist
func (r *AIUsageRepository) EnsureSchema(ctx context.Context) error {
	if err := r.conn.Exec(ctx, Schema); err != nil {
		return errors.Wrap(err, "failed to create ai_usage table")
	}
	return nil
}

// Start begins the background flush loop
func (r *AIUsageRepository) Start(ctx context.Context) {
	r.batchWriter.Start(ctx)
}

// Stop flushes what is buffered and stops the flush loop
func (r *AIUsageRepository) Stop(ctx context.Context) error {
	return r.batchWriter.Stop(ctx)
}

// Store buffers a usage entry. It is written on the next flush.
func (r *AIUsageRepository) Store(ctx context.Context, log *ai_usage.UsageLog) error {
	if log == nil {
		return errors.Wrap(errors.ErrInvalidInput, "nil usage log")
	}
	return r.batchWriter.Add(ctx, log)
}

// flushBatch sends the buffered rows as one native batch INSERT
func (r *AIUsageRepository) flushBatch(ctx context.Context, batch []*ai_usage.UsageLog) error {
	if len(batch) == 0 {
		return nil
	}

	log := logger.Get().With("component", "ai_usage_batch")
	start := time.Now()

	stmt, err := r.conn.PrepareBatch(ctx, insertUsage)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}
	defer stmt.Close()

	for _, u := range batch {
		err := stmt.Append(
			u.Timestamp, u.EventID, u.UserID, u.RealmID, u.QueryID,
			u.AgentID, u.Purpose,
			u.Provider, u.ModelID, u.ModelFamily,
			u.PromptTokens, u.CompletionTokens, u.TotalTokens,
			u.InputCostUSD, u.OutputCostUSD, u.TotalCostUSD,
			u.LatencyMs, u.Success, u.ErrorMessage, u.CreatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "failed to append to batch")
		}
	}

	if err := stmt.Send(); err != nil {
		return errors.Wrap(err, "failed to send batch")
	}

	log.Debugf("Batch inserted %d AI usage records in %v", len(batch), time.Since(start))
	return nil
}

// GetUserDailyCost returns total cost for a user on a specific day
func (r *AIUsageRepository) GetUserDailyCost(ctx context.Context, userID string, date time.Time) (float64, error) {
	query := `
		SELECT sum(total_cost_usd) AS total_cost
		FROM ai_usage
		WHERE user_id = ? AND toDate(timestamp) = toDate(?)
	`

	var totalCost float64
	if err := r.conn.QueryRow(ctx, query, userID, date).Scan(&totalCost); err != nil {
		return 0, errors.Wrap(err, "failed to get user daily cost")
	}
	return totalCost, nil
}

// GetProviderCosts returns costs grouped by provider for a time range
func (r *AIUsageRepository) GetProviderCosts(ctx context.Context, from, to time.Time) (map[string]float64, error) {
	return r.costsBy(ctx, "provider", from, to)
}

// GetAgentCosts returns costs grouped by agent for a time range
func (r *AIUsageRepository) GetAgentCosts(ctx context.Context, from, to time.Time) (map[string]float64, error) {
	return r.costsBy(ctx, "agent_id", from, to)
}

// costsBy groups cost by one of the low-cardinality columns. column is
// never user input.
func (r *AIUsageRepository) costsBy(ctx context.Context, column string, from, to time.Time) (map[string]float64, error) {
	query := `
		SELECT ` + column + `, sum(total_cost_usd) AS total_cost
		FROM ai_usage
		WHERE timestamp BETWEEN ? AND ?
		GROUP BY ` + column + `
		ORDER BY total_cost DESC
	`

	rows, err := r.conn.Query(ctx, query, from, to)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query %s costs", column)
	}
	defer rows.Close()

	costs := make(map[string]float64)
	for rows.Next() {
		var key string
		var cost float64
		if err := rows.Scan(&key, &cost); err != nil {
			return nil, errors.Wrapf(err, "failed to scan %s cost", column)
		}
		costs[key] = cost
	}
	return costs, rows.Err()
}
