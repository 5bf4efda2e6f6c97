package agents

import (
	"context"
	"sync"

	"erpinsight/internal/adapters/ai"
	"erpinsight/internal/domain/accounting"
	"erpinsight/internal/domain/rag"
)

const structuredReply = `{
  "analysis": "Revenue is trending up with one open invoice.",
  "key_insights": ["Collections are healthy"],
  "recommendations": ["Follow up on the Globex invoice", "Consider a cash reserve target"],
  "metrics": {"collection_rate": "84%"},
  "next_steps": ["Review receivables weekly"]
}`

// mockLLM is an LLMClient with a programmable Complete
type mockLLM struct {
	completeFunc func(ctx context.Context, req ai.CompletionRequest) (string, error)
	healthErr    error

	mu       sync.Mutex
	requests []ai.CompletionRequest
}

var _ LLMClient = (*mockLLM)(nil)

func (m *mockLLM) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.completeFunc != nil {
		return m.completeFunc(ctx, req)
	}
	return structuredReply, nil
}

func (m *mockLLM) HealthCheck(context.Context) error { return m.healthErr }

func (m *mockLLM) Provider() string { return "mock" }

func (m *mockLLM) calls() []ai.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ai.CompletionRequest(nil), m.requests...)
}

// mockKB is a KnowledgeBase returning canned search results
type mockKB struct {
	results  []rag.SearchResult
	indexErr error
	stats    rag.Stats

	mu      sync.Mutex
	indexed []string
	cleared []string
}

var _ KnowledgeBase = (*mockKB)(nil)

func (m *mockKB) Index(_ context.Context, userID, tag string, _ accounting.DataType, records []accounting.Record) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexed = append(m.indexed, userID+"/"+tag)
	return len(records), m.indexErr
}

func (m *mockKB) Search(_ context.Context, _ string, _ string, k int) ([]rag.SearchResult, error) {
	if len(m.results) > k {
		return m.results[:k], nil
	}
	return m.results, nil
}

func (m *mockKB) ClearUserData(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, userID)
	return 1, nil
}

func (m *mockKB) Stats(context.Context) (rag.Stats, error) { return m.stats, nil }

func (m *mockKB) indexedTags() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.indexed...)
}
