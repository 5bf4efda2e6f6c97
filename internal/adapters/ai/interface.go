package ai

import "context"

// Provider defines the contract each AI provider implementation must satisfy.
type Provider interface {
	Name() string

	// GetModel returns metadata for a specific model.
	GetModel(ctx context.Context, model string) (ModelInfo, error)

	// ListModels returns the list of available models for the provider.
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ModelInfo describes the capabilities and pricing of a model.
type ModelInfo struct {
	Provider        ProviderName
	Name            string  // Provider-specific model identifier
	Family          string  // Family/category name (e.g., "claude-3.5")
	MaxTokens       int     // Maximum context length
	InputCostPer1K  float64 // USD per 1K input tokens
	OutputCostPer1K float64 // USD per 1K output tokens
}

// Cost returns the USD cost of a call with the given token counts
func (m ModelInfo) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*m.InputCostPer1K + float64(outputTokens)/1000*m.OutputCostPer1K
}

func findModel(models []ModelInfo, name string) (ModelInfo, bool) {
	for _, m := range models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelInfo{}, false
}
