package events

import (
	"context"

	"erpinsight/internal/adapters/kafka"
	"erpinsight/pkg/logger"
)

// Sender writes one keyed event to a topic. *kafka.Producer implements it.
type Sender interface {
	Publish(ctx context.Context, topic, key string, event interface{}) error
}

// Publisher emits domain events. A nil sender turns every call into a no-op.
type Publisher struct {
	sender Sender
	topic  string
	log    *logger.Logger
}

// NewPublisher creates a publisher. queryTopic overrides the default
// agent.query.completed topic when non-empty.
func NewPublisher(sender Sender, queryTopic string) *Publisher {
	if queryTopic == "" {
		queryTopic = kafka.TopicQueryCompleted
	}
	return &Publisher{
		sender: sender,
		topic:  queryTopic,
		log:    logger.Get().With("component", "events"),
	}
}

// Enabled reports whether events are actually sent
func (p *Publisher) Enabled() bool {
	return p != nil && p.sender != nil
}

// PublishQueryCompleted emits a query completion, keyed by user
func (p *Publisher) PublishQueryCompleted(ctx context.Context, event QueryCompleted) error {
	if !p.Enabled() {
		return nil
	}
	event.Error = sanitizeError(event.Error)
	return p.sender.Publish(ctx, p.topic, event.UserID, event)
}

// PublishKnowledgeCleared emits a RAG clear event
func (p *Publisher) PublishKnowledgeCleared(ctx context.Context, userID string, documents int64) error {
	if !p.Enabled() {
		return nil
	}
	event := KnowledgeCleared{Base: NewBase(kafka.TopicKnowledgeCleared, userID), Documents: documents}
	return p.sender.Publish(ctx, kafka.TopicKnowledgeCleared, userID, event)
}
