package ai

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"erpinsight/pkg/errors"
)

var _ ChatProvider = (*ClaudeProvider)(nil)

// ClaudeProvider calls the Anthropic Messages API.
type ClaudeProvider struct {
	client anthropic.Client
	apiKey string
	models []ModelInfo
}

// NewClaudeProvider creates a new Claude provider. opts are passed to the
// SDK client (base URL overrides in tests).
func NewClaudeProvider(apiKey string, timeout time.Duration, opts ...option.RequestOption) *ClaudeProvider {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(1),
	}
	return &ClaudeProvider{
		client: anthropic.NewClient(append(base, opts...)...),
		apiKey: apiKey,
		models: claudeModels(),
	}
}

// Name returns provider name.
func (p *ClaudeProvider) Name() string { return ProviderNameClaude.String() }

// GetModel returns model info by name.
func (p *ClaudeProvider) GetModel(_ context.Context, model string) (ModelInfo, error) {
	if m, ok := findModel(p.models, model); ok {
		return m, nil
	}
	return ModelInfo{}, errors.Wrapf(errors.ErrNotFound, "claude model %s not found", model)
}

// ListModels lists available models.
func (p *ClaudeProvider) ListModels(_ context.Context) ([]ModelInfo, error) {
	return p.models, nil
}

// Chat sends a chat completion request to the Messages API.
func (p *ClaudeProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if p.apiKey == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "claude API key not configured")
	}

	system, messages := splitSystem(req.Messages)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(maxTokens),
		Messages:    make([]anthropic.MessageParam, 0, len(messages)),
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(errors.ErrExternal, "claude API call failed: "+err.Error())
	}

	var parts []string
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			parts = append(parts, resp.Content[i].Text)
		}
	}

	finish := FinishReasonOther
	switch resp.StopReason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		finish = FinishReasonStop
	case anthropic.StopReasonMaxTokens:
		finish = FinishReasonLength
	}

	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	return &ChatResponse{
		ID:           resp.ID,
		Model:        string(resp.Model),
		Content:      strings.Join(parts, "\n"),
		FinishReason: finish,
		Usage:        Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
	}, nil
}

func claudeModels() []ModelInfo {
	return []ModelInfo{
		{
			Provider:        ProviderNameClaude,
			Name:            ModelClaude35Sonnet,
			Family:          "claude-3.5",
			MaxTokens:       200000,
			InputCostPer1K:  0.003,
			OutputCostPer1K: 0.015,
		},
		{
			Provider:        ProviderNameClaude,
			Name:            "claude-3-5-haiku-20241022",
			Family:          "claude-3.5",
			MaxTokens:       200000,
			InputCostPer1K:  0.001,
			OutputCostPer1K: 0.005,
		},
	}
}
