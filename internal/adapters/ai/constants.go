package ai

// ProviderName represents an AI provider identifier
type ProviderName string

// Provider name constants
const (
	ProviderNameClaude ProviderName = "claude"
	ProviderNameGrok   ProviderName = "grok"
	ProviderNameGemini ProviderName = "gemini"
)

// String returns the string representation of the provider name
func (p ProviderName) String() string {
	return string(p)
}

// IsValid checks if the provider name is supported
func (p ProviderName) IsValid() bool {
	switch p {
	case ProviderNameClaude, ProviderNameGrok, ProviderNameGemini:
		return true
	default:
		return false
	}
}

// AllProviderNames returns all supported provider names
func AllProviderNames() []ProviderName {
	return []ProviderName{
		ProviderNameClaude,
		ProviderNameGrok,
		ProviderNameGemini,
	}
}

// Model name constants
const (
	ModelClaude35Sonnet = "claude-3-5-sonnet-20241022"
	ModelGrokBeta       = "grok-beta"
	ModelGemini15Pro    = "gemini-1.5-pro"
)
