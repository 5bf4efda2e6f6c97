package ai

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"erpinsight/internal/domain/ai_usage"
	"erpinsight/internal/metrics"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

// healthPrompt is sent by HealthCheck
const healthPrompt = "Hello, please confirm you're working correctly."

// CompletionRequest is one system+user prompt exchange
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64 // zero uses the client default
	MaxTokens   int     // zero uses the client default

	// Attribution for usage logs
	AgentID string
	Purpose string
	QueryID string
}

// Client is the LLM entry point used by agents. It rate limits, guards the
// provider with a circuit breaker, records metrics and logs usage.
type Client struct {
	provider ChatProvider
	model    string
	info     ModelInfo
	limiter  RateLimiter
	breaker  *gobreaker.CircuitBreaker[*ChatResponse]
	usage    ai_usage.Recorder

	temperature float64
	maxTokens   int
	log         *logger.Logger
}

// ClientConfig configures a Client
type ClientConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Breaker     BreakerConfig
}

// NewClient wraps provider. limiter and usage may be nil.
func NewClient(provider ChatProvider, cfg ClientConfig, limiter RateLimiter, usage ai_usage.Recorder) *Client {
	if limiter == nil {
		limiter = NewNoOpLimiter()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4000
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}

	log := logger.Get().With("component", "llm_client", "provider", provider.Name(), "model", cfg.Model)

	info, err := provider.GetModel(context.Background(), cfg.Model)
	if err != nil {
		log.Debugw("model has no pricing metadata", "error", err)
		info = ModelInfo{Provider: ProviderName(provider.Name()), Name: cfg.Model}
	}

	return &Client{
		provider:    provider,
		model:       cfg.Model,
		info:        info,
		limiter:     limiter,
		breaker:     newBreaker("llm_"+provider.Name(), cfg.Breaker, log),
		usage:       usage,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		log:         log,
	}
}

// Provider returns the provider name
func (c *Client) Provider() string { return c.provider.Name() }

// Model returns the configured model id
func (c *Client) Model() string { return c.model }

// Complete runs one completion and returns the reply text. Failures are
// returned as *errors.LLMError.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = c.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	messages := make([]Message, 0, 2)
	if req.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.System})
	}
	messages = append(messages, Message{Role: RoleUser, Content: req.User})

	if err := c.limiter.Wait(ctx); err != nil {
		metrics.LLMCalls.WithLabelValues(c.provider.Name(), c.model, "rate_limited").Inc()
		return "", errors.NewLLMError(c.provider.Name(), err)
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*ChatResponse, error) {
		return c.provider.Chat(ctx, ChatRequest{
			Model:       c.model,
			Messages:    messages,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
	})
	latency := time.Since(start)
	err = breakerError(err)

	var usage Usage
	if resp != nil {
		usage = resp.Usage
	}
	metrics.RecordLLMCall(c.provider.Name(), c.model, latency, usage.PromptTokens, usage.CompletionTokens, err)
	c.recordUsage(ctx, req, usage, latency, err)

	if err != nil {
		c.log.Warnw("completion failed", "agent", req.AgentID, "purpose", req.Purpose, "latency", latency, "error", err)
		return "", errors.NewLLMError(c.provider.Name(), err)
	}

	c.log.Debugw("completion done",
		"agent", req.AgentID,
		"purpose", req.Purpose,
		"latency", latency,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
	)
	return resp.Content, nil
}

// HealthCheck sends a short prompt and fails on error or an empty reply
func (c *Client) HealthCheck(ctx context.Context) error {
	reply, err := c.Complete(ctx, CompletionRequest{
		User:      healthPrompt,
		MaxTokens: 50,
		AgentID:   "health",
		Purpose:   "health_check",
	})
	if err != nil {
		return err
	}
	if reply == "" {
		return errors.NewLLMError(c.provider.Name(), errors.Wrap(errors.ErrExternal, "empty health check reply"))
	}
	return nil
}

func (c *Client) recordUsage(ctx context.Context, req CompletionRequest, usage Usage, latency time.Duration, callErr error) {
	if c.usage == nil {
		return
	}

	now := time.Now().UTC()
	inCost := float64(usage.PromptTokens) / 1000 * c.info.InputCostPer1K
	outCost := float64(usage.CompletionTokens) / 1000 * c.info.OutputCostPer1K

	entry := &ai_usage.UsageLog{
		Timestamp:        now,
		EventID:          uuid.NewString(),
		UserID:           errors.UserIDFromContext(ctx),
		RealmID:          errors.RealmIDFromContext(ctx),
		QueryID:          req.QueryID,
		AgentID:          req.AgentID,
		Purpose:          req.Purpose,
		Provider:         c.provider.Name(),
		ModelID:          c.model,
		ModelFamily:      c.info.Family,
		PromptTokens:     uint32(usage.PromptTokens),
		CompletionTokens: uint32(usage.CompletionTokens),
		TotalTokens:      uint32(usage.PromptTokens + usage.CompletionTokens),
		InputCostUSD:     inCost,
		OutputCostUSD:    outCost,
		TotalCostUSD:     c.info.Cost(usage.PromptTokens, usage.CompletionTokens),
		LatencyMs:        uint32(latency.Milliseconds()),
		Success:          callErr == nil,
		CreatedAt:        now,
	}
	if callErr != nil {
		entry.ErrorMessage = callErr.Error()
	}

	// The store is buffered; a cancelled request context must not drop the row.
	if err := c.usage.Store(context.WithoutCancel(ctx), entry); err != nil {
		c.log.Warnw("failed to store usage log", "error", err)
	}
}
