package ai

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpinsight/internal/domain/ai_usage"
	"erpinsight/pkg/errors"
)

// mockProvider is a ChatProvider with a programmable Chat
type mockProvider struct {
	name     string
	models   []ModelInfo
	chatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	mu       sync.Mutex
	requests []ChatRequest
}

var _ ChatProvider = (*mockProvider)(nil)

func (m *mockProvider) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockProvider) GetModel(_ context.Context, model string) (ModelInfo, error) {
	if info, ok := findModel(m.models, model); ok {
		return info, nil
	}
	return ModelInfo{}, errors.ErrNotFound
}

func (m *mockProvider) ListModels(_ context.Context) ([]ModelInfo, error) { return m.models, nil }

func (m *mockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.chatFunc != nil {
		return m.chatFunc(ctx, req)
	}
	return &ChatResponse{Content: "ok", Usage: Usage{PromptTokens: 10, CompletionTokens: 5}}, nil
}

func (m *mockProvider) lastRequest() ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

// memUsage records usage logs in memory
type memUsage struct {
	mu   sync.Mutex
	logs []*ai_usage.UsageLog
}

var _ ai_usage.Recorder = (*memUsage)(nil)

func (m *memUsage) Store(_ context.Context, log *ai_usage.UsageLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

func (m *memUsage) GetUserDailyCost(context.Context, string, time.Time) (float64, error) {
	return 0, nil
}

func (m *memUsage) GetProviderCosts(context.Context, time.Time, time.Time) (map[string]float64, error) {
	return nil, nil
}

func (m *memUsage) GetAgentCosts(context.Context, time.Time, time.Time) (map[string]float64, error) {
	return nil, nil
}

func TestCompleteBuildsMessages(t *testing.T) {
	provider := &mockProvider{}
	client := NewClient(provider, ClientConfig{Model: "m1", Temperature: 0.7, MaxTokens: 4000}, nil, nil)

	reply, err := client.Complete(context.Background(), CompletionRequest{
		System:      "You are a financial analyst.",
		User:        "Query: cash?",
		Temperature: 0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)

	req := provider.lastRequest()
	assert.Equal(t, "m1", req.Model)
	assert.Equal(t, 0.3, req.Temperature)
	assert.Equal(t, 4000, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, RoleSystem, req.Messages[0].Role)
	assert.Equal(t, RoleUser, req.Messages[1].Role)
	assert.Equal(t, "Query: cash?", req.Messages[1].Content)
}

func TestCompleteDefaultsTemperature(t *testing.T) {
	provider := &mockProvider{}
	client := NewClient(provider, ClientConfig{Model: "m1", Temperature: 0.7}, nil, nil)

	_, err := client.Complete(context.Background(), CompletionRequest{User: "hi", MaxTokens: 50})
	require.NoError(t, err)
	assert.Equal(t, 0.7, provider.lastRequest().Temperature)
	assert.Equal(t, 50, provider.lastRequest().MaxTokens)
	assert.Len(t, provider.lastRequest().Messages, 1)
}

func TestCompleteWrapsProviderError(t *testing.T) {
	provider := &mockProvider{chatFunc: func(context.Context, ChatRequest) (*ChatResponse, error) {
		return nil, errors.Wrap(errors.ErrExternal, "boom")
	}}
	client := NewClient(provider, ClientConfig{Model: "m1"}, nil, nil)

	_, err := client.Complete(context.Background(), CompletionRequest{User: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrLLM)
	assert.ErrorIs(t, err, errors.ErrExternal)

	var llmErr *errors.LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, "mock", llmErr.Provider)
}

func TestCompleteOpensBreaker(t *testing.T) {
	var calls int
	provider := &mockProvider{chatFunc: func(context.Context, ChatRequest) (*ChatResponse, error) {
		calls++
		return nil, errors.ErrExternal
	}}
	client := NewClient(provider, ClientConfig{Model: "m1", Breaker: BreakerConfig{MaxFailures: 2, Timeout: time.Minute}}, nil, nil)

	for i := 0; i < 2; i++ {
		_, _ = client.Complete(context.Background(), CompletionRequest{User: "hi"})
	}
	_, err := client.Complete(context.Background(), CompletionRequest{User: "hi"})

	assert.ErrorIs(t, err, errors.ErrUnavailable)
	assert.ErrorIs(t, err, errors.ErrLLM)
	assert.Equal(t, 2, calls)
}

func TestCompleteRateLimited(t *testing.T) {
	provider := &mockProvider{}
	limiter := NewTokenBucketLimiter(ProviderNameClaude, 6, 1)
	client := NewClient(provider, ClientConfig{Model: "m1"}, limiter, nil)

	_, err := client.Complete(context.Background(), CompletionRequest{User: "first"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Complete(ctx, CompletionRequest{User: "second"})
	assert.ErrorIs(t, err, errors.ErrLLM)
	assert.ErrorIs(t, err, errors.ErrRateLimitExceeded)
}

func TestCompleteRecordsUsage(t *testing.T) {
	provider := &mockProvider{models: []ModelInfo{{Name: "m1", Family: "fam", InputCostPer1K: 1, OutputCostPer1K: 2}}}
	usage := &memUsage{}
	client := NewClient(provider, ClientConfig{Model: "m1"}, nil, usage)

	ctx := errors.WithUser(context.Background(), "user-1", "realm-1")
	_, err := client.Complete(ctx, CompletionRequest{User: "hi", AgentID: "finance", Purpose: "analysis", QueryID: "q-1"})
	require.NoError(t, err)

	require.Len(t, usage.logs, 1)
	entry := usage.logs[0]
	assert.Equal(t, "user-1", entry.UserID)
	assert.Equal(t, "realm-1", entry.RealmID)
	assert.Equal(t, "finance", entry.AgentID)
	assert.Equal(t, "q-1", entry.QueryID)
	assert.Equal(t, "fam", entry.ModelFamily)
	assert.Equal(t, uint32(15), entry.TotalTokens)
	assert.InDelta(t, 0.02, entry.TotalCostUSD, 1e-9)
	assert.True(t, entry.Success)
	assert.NotEmpty(t, entry.EventID)
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		provider := &mockProvider{}
		client := NewClient(provider, ClientConfig{Model: "m1"}, nil, nil)

		require.NoError(t, client.HealthCheck(context.Background()))
		req := provider.lastRequest()
		assert.Equal(t, healthPrompt, req.Messages[0].Content)
		assert.Equal(t, 50, req.MaxTokens)
	})

	t.Run("empty reply", func(t *testing.T) {
		provider := &mockProvider{chatFunc: func(context.Context, ChatRequest) (*ChatResponse, error) {
			return &ChatResponse{}, nil
		}}
		client := NewClient(provider, ClientConfig{Model: "m1"}, nil, nil)

		assert.ErrorIs(t, client.HealthCheck(context.Background()), errors.ErrLLM)
	})
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "q"},
		{Role: RoleSystem, Content: "b"},
	})
	assert.Equal(t, "a\n\nb", system)
	assert.Equal(t, []Message{{Role: RoleUser, Content: "q"}}, rest)
}
