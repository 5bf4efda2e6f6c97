package kafka

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/segmentio/kafka-go"

	"erpinsight/pkg/logger"
)

// Consumer reads events from one topic. With a GroupID offsets are committed
// after the handler returns, so a crash replays at most the uncommitted tail.
type Consumer struct {
	reader  *kafka.Reader
	commits bool
	retry   *backoff.Backoff
	log     *logger.Logger
}

type ConsumerConfig struct {
	Brokers []string
	GroupID string // empty reads without committing offsets
	Topic   string
	// FromBeginning starts a new group (or a group-less reader) at the oldest
	// retained offset instead of the newest
	FromBeginning bool
}

func NewConsumer(cfg ConsumerConfig) *Consumer {
	start := kafka.LastOffset
	if cfg.FromBeginning {
		start = kafka.FirstOffset
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		StartOffset:    start,
		CommitInterval: 0, // synchronous commits
	})

	return &Consumer{
		reader:  reader,
		commits: cfg.GroupID != "",
		retry:   &backoff.Backoff{Min: 200 * time.Millisecond, Max: 30 * time.Second, Factor: 2, Jitter: true},
		log:     logger.Get().With("component", "kafka_consumer", "topic", cfg.Topic, "group", cfg.GroupID),
	}
}

// MessageHandler processes one message
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// Consume calls handler for every message until ctx is done. Handler errors
// are logged and the message is still committed. Broker errors back off.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := c.retry.Duration()
			c.log.Warnw("fetch failed", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		c.retry.Reset()

		if err := handler(ctx, msg); err != nil {
			c.log.Warnw("handler failed",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
		}

		if c.commits {
			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				c.log.Warnw("commit failed", "offset", msg.Offset, "error", err)
			}
		}
	}
}

// Lag is the reader's last reported lag in messages
func (c *Consumer) Lag() int64 {
	return c.reader.Stats().Lag
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
