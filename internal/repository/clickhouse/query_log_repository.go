package clickhouse

import (
	"context"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"erpinsight/internal/events"
	"erpinsight/pkg/clickhouse"
	"erpinsight/pkg/errors"
)

// QueryLogSchema is the agent_queries table fed from agent.query.completed
const QueryLogSchema = `
CREATE TABLE IF NOT EXISTS agent_queries (
	timestamp    DateTime64(3),
	event_id     String,
	query_id     String,
	user_id      String,
	realm_id     String,
	agent_id     LowCardinality(String),
	agents_used  Array(LowCardinality(String)),
	multi_agent  Bool,
	data_sources Array(LowCardinality(String)),
	duration_ms  UInt32,
	error        String
) ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMM(timestamp)
ORDER BY (user_id, timestamp, event_id)
TTL toDateTime(timestamp) + INTERVAL 1 YEAR`

const insertQueryLog = `
	INSERT INTO agent_queries (
		timestamp, event_id, query_id, user_id, realm_id,
		agent_id, agents_used, multi_agent, data_sources,
		duration_ms, error
	)`

// AgentQueryStats summarizes recent queries for one agent
type AgentQueryStats struct {
	AgentID       string  `ch:"agent_id" json:"agent_id"`
	Queries       uint64  `ch:"queries" json:"queries"`
	Failures      uint64  `ch:"failures" json:"failures"`
	AvgDurationMS float64 `ch:"avg_duration_ms" json:"avg_duration_ms"`
}

// QueryLogRepository stores completed queries. Replayed events share an
// event_id and collapse on merge.
type QueryLogRepository struct {
	conn        driver.Conn
	batchWriter *clickhouse.BatchWriter[*events.QueryCompleted]
}

// NewQueryLogRepository creates the repository with its batch writer
func NewQueryLogRepository(conn driver.Conn) *QueryLogRepository {
	repo := &QueryLogRepository{conn: conn}
	repo.batchWriter = clickhouse.NewBatchWriter(clickhouse.BatchWriterConfig[*events.QueryCompleted]{
		FlushFunc:    repo.flushBatch,
		TableName:    "agent_queries",
		MaxBatchSize: 500,
		MaxAge:       10 * time.Second,
	})
	return repo
}

// EnsureSchema creates the agent_queries table if it does not exist
func (r *QueryLogRepository) EnsureSchema(ctx context.Context) error {
	if err := r.conn.Exec(ctx, QueryLogSchema); err != nil {
		return errors.Wrap(err, "failed to create agent_queries table")
	}
	return nil
}

func (r *QueryLogRepository) Start(ctx context.Context) { r.batchWriter.Start(ctx) }

func (r *QueryLogRepository) Stop(ctx context.Context) error { return r.batchWriter.Stop(ctx) }

// Store buffers one completed query
func (r *QueryLogRepository) Store(ctx context.Context, e *events.QueryCompleted) error {
	if e == nil || e.ID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "query event without id")
	}
	return r.batchWriter.Add(ctx, e)
}

func (r *QueryLogRepository) flushBatch(ctx context.Context, batch []*events.QueryCompleted) error {
	stmt, err := r.conn.PrepareBatch(ctx, insertQueryLog)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}
	defer stmt.Close()

	for _, e := range batch {
		agentsUsed := e.AgentsUsed
		if agentsUsed == nil {
			agentsUsed = []string{}
		}
		sources := e.DataSources
		if sources == nil {
			sources = []string{}
		}
		if err := stmt.Append(
			e.Timestamp, e.ID, e.QueryID, e.UserID, e.RealmID,
			e.AgentID, agentsUsed, e.MultiAgent, sources,
			uint32(max(e.DurationMS, 0)), e.Error,
		); err != nil {
			return errors.Wrap(err, "failed to append to batch")
		}
	}

	if err := stmt.Send(); err != nil {
		return errors.Wrap(err, "failed to send batch")
	}
	return nil
}

// AgentStats returns per-agent volume, failures and latency since from
func (r *QueryLogRepository) AgentStats(ctx context.Context, from time.Time) ([]AgentQueryStats, error) {
	var stats []AgentQueryStats
	err := r.conn.Select(ctx, &stats, `
		SELECT
			agent_id,
			count() AS queries,
			countIf(error != '') AS failures,
			avg(duration_ms) AS avg_duration_ms
		FROM agent_queries FINAL
		WHERE timestamp >= ?
		GROUP BY agent_id
		ORDER BY queries DESC
	`, from)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query agent stats")
	}
	return stats, nil
}

// UserQueries returns the latest query ids for a user, newest first
func (r *QueryLogRepository) UserQueries(ctx context.Context, userID string, limit int) ([]string, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "user id is required")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.conn.Query(ctx, `
		SELECT query_id FROM agent_queries FINAL
		WHERE user_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query user queries")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan query id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
