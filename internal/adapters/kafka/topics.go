package kafka

// Topic definitions for Kafka event streaming
const (
	// TopicQueryCompleted carries one event per finished agent query
	TopicQueryCompleted = "agent.query.completed"

	// TopicKnowledgeCleared is published when a user's RAG data is removed
	TopicKnowledgeCleared = "rag.user.cleared"
)
