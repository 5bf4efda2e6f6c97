package ai

import (
	"context"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"erpinsight/pkg/errors"
)

var _ ChatProvider = (*GrokProvider)(nil)

// GrokProvider calls xAI's OpenAI-compatible chat completions endpoint.
type GrokProvider struct {
	client openai.Client
	apiKey string
	models []ModelInfo
}

// NewGrokProvider creates a Grok provider against baseURL
func NewGrokProvider(apiKey, baseURL string, timeout time.Duration) *GrokProvider {
	if baseURL == "" {
		baseURL = "https://api.x.ai/v1"
	}
	return &GrokProvider{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
			option.WithRequestTimeout(timeout),
			option.WithMaxRetries(1),
		),
		apiKey: apiKey,
		models: grokModels(),
	}
}

// Name returns provider name.
func (p *GrokProvider) Name() string { return ProviderNameGrok.String() }

// GetModel returns model info by name.
func (p *GrokProvider) GetModel(_ context.Context, model string) (ModelInfo, error) {
	if m, ok := findModel(p.models, model); ok {
		return m, nil
	}
	return ModelInfo{}, errors.Wrapf(errors.ErrNotFound, "grok model %s not found", model)
}

// ListModels lists available models.
func (p *GrokProvider) ListModels(_ context.Context) ([]ModelInfo, error) {
	return p.models, nil
}

// Chat sends a chat completion request.
func (p *GrokProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if p.apiKey == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "grok API key not configured")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(errors.ErrExternal, "grok API call failed: "+err.Error())
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Wrap(errors.ErrExternal, "grok returned no choices")
	}

	choice := resp.Choices[0]
	finish := FinishReasonOther
	switch choice.FinishReason {
	case "stop":
		finish = FinishReasonStop
	case "length":
		finish = FinishReasonLength
	}

	return &ChatResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      choice.Message.Content,
		FinishReason: finish,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func grokModels() []ModelInfo {
	return []ModelInfo{
		{
			Provider:        ProviderNameGrok,
			Name:            ModelGrokBeta,
			Family:          "grok",
			MaxTokens:       131072,
			InputCostPer1K:  0.005,
			OutputCostPer1K: 0.015,
		},
	}
}
