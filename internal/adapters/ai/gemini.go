package ai

import (
	"context"
	"net/http"
	"time"

	"google.golang.org/genai"

	"erpinsight/pkg/errors"
)

var _ ChatProvider = (*GeminiProvider)(nil)

// GeminiProvider calls the Gemini API through the genai SDK.
type GeminiProvider struct {
	client *genai.Client
	models []ModelInfo
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(ctx context.Context, apiKey string, timeout time.Duration) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "gemini API key not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}

	return &GeminiProvider{client: client, models: geminiModels()}, nil
}

// Name returns provider name.
func (p *GeminiProvider) Name() string { return ProviderNameGemini.String() }

// GetModel returns model info by name.
func (p *GeminiProvider) GetModel(_ context.Context, model string) (ModelInfo, error) {
	if m, ok := findModel(p.models, model); ok {
		return m, nil
	}
	return ModelInfo{}, errors.Wrapf(errors.ErrNotFound, "gemini model %s not found", model)
}

// ListModels lists available models.
func (p *GeminiProvider) ListModels(_ context.Context) ([]ModelInfo, error) {
	return p.models, nil
}

// Chat sends a generateContent request.
func (p *GeminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	system, messages := splitSystem(req.Messages)

	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrExternal, "gemini API call failed: "+err.Error())
	}

	out := &ChatResponse{
		ID:           resp.ResponseID,
		Model:        req.Model,
		Content:      resp.Text(),
		FinishReason: FinishReasonOther,
	}
	if len(resp.Candidates) > 0 {
		switch resp.Candidates[0].FinishReason {
		case genai.FinishReasonStop:
			out.FinishReason = FinishReasonStop
		case genai.FinishReasonMaxTokens:
			out.FinishReason = FinishReasonLength
		}
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func geminiModels() []ModelInfo {
	return []ModelInfo{
		{
			Provider:        ProviderNameGemini,
			Name:            "gemini-1.5-flash",
			Family:          "gemini-1.5",
			MaxTokens:       1000000,
			InputCostPer1K:  0.0002,
			OutputCostPer1K: 0.0004,
		},
		{
			Provider:        ProviderNameGemini,
			Name:            ModelGemini15Pro,
			Family:          "gemini-1.5",
			MaxTokens:       2000000,
			InputCostPer1K:  0.0035,
			OutputCostPer1K: 0.0105,
		},
	}
}
