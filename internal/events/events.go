package events

import "erpinsight/internal/adapters/kafka"

// QueryCompleted describes one finished agent query
type QueryCompleted struct {
	Base

	QueryID     string   `json:"query_id"`
	RealmID     string   `json:"realm_id,omitempty"`
	AgentID     string   `json:"agent_id"`
	AgentsUsed  []string `json:"agents_used,omitempty"`
	MultiAgent  bool     `json:"multi_agent"`
	DataSources []string `json:"data_sources"`
	DurationMS  int64    `json:"duration_ms"`
	Error       string   `json:"error,omitempty"`
}

// KnowledgeCleared is published after a user's RAG documents are removed
type KnowledgeCleared struct {
	Base

	Documents int64 `json:"documents"`
}

// NewQueryCompleted fills the base fields of a QueryCompleted event
func NewQueryCompleted(userID string) QueryCompleted {
	return QueryCompleted{Base: NewBase(kafka.TopicQueryCompleted, userID)}
}
