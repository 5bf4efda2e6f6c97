package events

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpinsight/internal/adapters/kafka"
)

type sentEvent struct {
	topic string
	key   string
	event interface{}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentEvent
	err  error
}

var _ Sender = (*fakeSender)(nil)

func (f *fakeSender) Publish(_ context.Context, topic, key string, event interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{topic: topic, key: key, event: event})
	return f.err
}

func TestPublishQueryCompleted(t *testing.T) {
	sender := &fakeSender{}
	pub := NewPublisher(sender, "")

	event := NewQueryCompleted("user-1")
	event.AgentID = "finance"
	event.Error = strings.Repeat("x", 600) + "\xff"

	require.NoError(t, pub.PublishQueryCompleted(context.Background(), event))
	require.Len(t, sender.sent, 1)

	got := sender.sent[0]
	assert.Equal(t, kafka.TopicQueryCompleted, got.topic)
	assert.Equal(t, "user-1", got.key)

	published := got.event.(QueryCompleted)
	assert.Equal(t, "finance", published.AgentID)
	assert.Len(t, published.Error, maxErrorLen)
	assert.NotEmpty(t, published.ID)
	assert.Equal(t, kafka.TopicQueryCompleted, published.Type)
}

func TestPublishCustomTopicAndClear(t *testing.T) {
	sender := &fakeSender{}
	pub := NewPublisher(sender, "custom.queries")

	require.NoError(t, pub.PublishQueryCompleted(context.Background(), NewQueryCompleted("u")))
	require.NoError(t, pub.PublishKnowledgeCleared(context.Background(), "u", 4))

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "custom.queries", sender.sent[0].topic)
	assert.Equal(t, kafka.TopicKnowledgeCleared, sender.sent[1].topic)
	assert.Equal(t, int64(4), sender.sent[1].event.(KnowledgeCleared).Documents)
}

func TestDisabledPublisher(t *testing.T) {
	pub := NewPublisher(nil, "")
	assert.False(t, pub.Enabled())
	assert.NoError(t, pub.PublishQueryCompleted(context.Background(), NewQueryCompleted("u")))

	var nilPub *Publisher
	assert.False(t, nilPub.Enabled())
	assert.NoError(t, nilPub.PublishKnowledgeCleared(context.Background(), "u", 1))
}
