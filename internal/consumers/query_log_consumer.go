package consumers

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	kafkaadapter "erpinsight/internal/adapters/kafka"
	"erpinsight/internal/events"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

// MessageSource is satisfied by *kafka.Consumer
type MessageSource interface {
	Consume(ctx context.Context, handler kafkaadapter.MessageHandler) error
	Close() error
}

// QueryLogStore is satisfied by the ClickHouse query log repository
type QueryLogStore interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
	Store(ctx context.Context, e *events.QueryCompleted) error
}

// QueryLogConsumer reads agent.query.completed events and writes them to
// ClickHouse in batches
type QueryLogConsumer struct {
	source        MessageSource
	store         QueryLogStore
	statsInterval time.Duration
	log           *logger.Logger

	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

// NewQueryLogConsumer creates the consumer
func NewQueryLogConsumer(source MessageSource, store QueryLogStore, log *logger.Logger) *QueryLogConsumer {
	return &QueryLogConsumer{
		source:        source,
		store:         store,
		statsInterval: time.Minute,
		log:           log.With("consumer", "query_log"),
	}
}

// Start consumes until ctx is cancelled, then flushes the buffered rows and
// closes the reader
func (c *QueryLogConsumer) Start(ctx context.Context) error {
	c.log.Info("Starting query log consumer...")
	c.store.Start(ctx)

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.store.Stop(stopCtx); err != nil {
			c.log.Errorw("Failed to flush query log", "error", err)
		}
		if err := c.source.Close(); err != nil {
			c.log.Errorw("Failed to close query log consumer", "error", err)
		}
		c.LogStats(true)
	}()

	go c.periodicStatsLog(ctx)

	err := c.source.Consume(ctx, c.handle)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *QueryLogConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var event events.QueryCompleted
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.skipped.Add(1)
		return errors.Wrap(err, "unmarshal query event")
	}
	if event.Type != "" && event.Type != kafkaadapter.TopicQueryCompleted {
		c.skipped.Add(1)
		return nil
	}

	if err := c.store.Store(ctx, &event); err != nil {
		c.failed.Add(1)
		return errors.Wrap(err, "store query event")
	}
	c.processed.Add(1)
	return nil
}

// LogStats logs counters. final is set on shutdown.
func (c *QueryLogConsumer) LogStats(final bool) {
	fields := []interface{}{
		"final", final,
		"processed", c.processed.Load(),
		"skipped", c.skipped.Load(),
		"failed", c.failed.Load(),
	}
	if l, ok := c.source.(interface{ Lag() int64 }); ok && !final {
		fields = append(fields, "lag", l.Lag())
	}
	c.log.Infow("Query log consumer stats", fields...)
}

func (c *QueryLogConsumer) periodicStatsLog(ctx context.Context) {
	ticker := time.NewTicker(c.statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.LogStats(false)
		}
	}
}
