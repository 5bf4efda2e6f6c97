package agents

import (
	"context"
	"time"

	"erpinsight/internal/adapters/ai"
	"erpinsight/internal/domain/accounting"
	"erpinsight/internal/domain/rag"
)

// FallbackAgentID is used whenever routing or lookup cannot resolve an agent
const FallbackAgentID = "finance"

// Error tags carried in AgentResult.Error
const (
	ErrorTagNoAccess = "no_access"
)

// DataSource fetches accounting records. quickbooks.Client implements it.
type DataSource = accounting.Source

// LLMClient completes prompts. *ai.Client implements it.
type LLMClient interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (string, error)
	HealthCheck(ctx context.Context) error
	Provider() string
}

// KnowledgeBase indexes fetched data and retrieves it per user. *rag.Service
// implements it.
type KnowledgeBase interface {
	Index(ctx context.Context, userID, tag string, dataType accounting.DataType, records []accounting.Record) (int, error)
	Search(ctx context.Context, query, userID string, k int) ([]rag.SearchResult, error)
	ClearUserData(ctx context.Context, userID string) (int64, error)
	Stats(ctx context.Context) (rag.Stats, error)
}

// QueryContext is the caller-owned input of one query. It is never mutated.
type QueryContext struct {
	Credentials accounting.Credentials `json:"credentials"`
	CompanyName string                 `json:"company_name"`
	UserID      string                 `json:"user_id"`
	QueryID     string                 `json:"query_id"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Dataset is one data series of a chart
type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// Chart describes a chart the UI can render directly
type Chart struct {
	Title    string    `json:"title"`
	Type     string    `json:"type"` // bar | line | doughnut
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// AgentResult is the outcome of one pipeline run, or of a synthesis when
// MultiAgentResults is set. Response is never empty.
type AgentResult struct {
	AgentID           string                  `json:"agent_id"`
	Response          string                  `json:"response"`
	Charts            []Chart                 `json:"charts"`
	Data              accounting.Bundle       `json:"data"`
	Insights          map[string]any          `json:"insights"`
	Recommendations   []string                `json:"recommendations"`
	Error             string                  `json:"error,omitempty"`
	ProcessedAt       time.Time               `json:"processed_at"`
	MultiAgentResults map[string]*AgentResult `json:"multi_agent_results,omitempty"`
}

// Failed reports whether the result carries an error tag
func (r *AgentResult) Failed() bool {
	return r.Error != ""
}

// NamedResult pairs a result with the agent that produced it
type NamedResult struct {
	AgentID string
	Result  *AgentResult
}

// ConversationEntry is one line of a specialist's in-memory log
type ConversationEntry struct {
	Query       string    `json:"query"`
	Response    string    `json:"response"`
	Timestamp   time.Time `json:"timestamp"`
	DataSources []string  `json:"data_sources"`
}

func errorResult(agentID, response, errTag string) *AgentResult {
	return &AgentResult{
		AgentID:         agentID,
		Response:        response,
		Charts:          []Chart{},
		Data:            accounting.Bundle{},
		Insights:        map[string]any{},
		Recommendations: []string{},
		Error:           errTag,
		ProcessedAt:     time.Now().UTC(),
	}
}
