package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	segkafka "github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"

	"erpinsight/internal/adapters/kafka"
	"erpinsight/internal/events"
	"erpinsight/pkg/errors"
)

var (
	eventsTopic   string
	eventsGroupID string
	eventsRaw     bool
	eventsFirst   bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect events published by the service",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow query and knowledge base events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.Kafka.Enabled() {
			return errors.Wrap(errors.ErrInvalidInput, "KAFKA_BROKERS is not set")
		}

		topic := eventsTopic
		if topic == "" {
			topic = cfg.Kafka.QueryTopic
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			GroupID:       eventsGroupID,
			Topic:         topic,
			FromBeginning: eventsFirst,
		})
		defer consumer.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "tailing %s on %s\n", topic, strings.Join(cfg.Kafka.Brokers, ","))

		err = consumer.Consume(ctx, func(_ context.Context, msg segkafka.Message) error {
			if eventsRaw {
				fmt.Fprintln(out, string(msg.Value))
				return nil
			}
			return printEvent(out, msg.Value)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	eventsTailCmd.Flags().StringVar(&eventsTopic, "topic", "", "Topic to follow (defaults to KAFKA_QUERY_TOPIC)")
	eventsTailCmd.Flags().StringVar(&eventsGroupID, "group", "", "Consumer group; empty reads without committing offsets")
	eventsTailCmd.Flags().BoolVar(&eventsRaw, "raw", false, "Print message values as received")
	eventsTailCmd.Flags().BoolVar(&eventsFirst, "from-beginning", false, "Start at the oldest retained event")
	eventsCmd.AddCommand(eventsTailCmd)
}

// printEvent renders one event as a single line
func printEvent(out io.Writer, value []byte) error {
	var base events.Base
	if err := json.Unmarshal(value, &base); err != nil {
		return errors.Wrap(err, "decode event")
	}

	switch base.Type {
	case kafka.TopicQueryCompleted:
		var e events.QueryCompleted
		if err := json.Unmarshal(value, &e); err != nil {
			return errors.Wrap(err, "decode query event")
		}
		status := "ok"
		if e.Error != "" {
			status = "error: " + e.Error
		}
		fmt.Fprintf(out, "%s  query %s  user=%s agents=%s %dms  %s\n",
			humanize.Time(e.Timestamp), e.QueryID, e.UserID,
			strings.Join(e.AgentsUsed, ","), e.DurationMS, status)
	case kafka.TopicKnowledgeCleared:
		var e events.KnowledgeCleared
		if err := json.Unmarshal(value, &e); err != nil {
			return errors.Wrap(err, "decode knowledge event")
		}
		fmt.Fprintf(out, "%s  rag cleared  user=%s documents=%s\n",
			humanize.Time(e.Timestamp), e.UserID, humanize.Comma(e.Documents))
	default:
		fmt.Fprintf(out, "%s  %s  user=%s\n", humanize.Time(base.Timestamp), base.Type, base.UserID)
	}
	return nil
}
