package ai_usage

import "time"

// UsageLog represents a single language model call
type UsageLog struct {
	Timestamp time.Time `ch:"timestamp"`
	EventID   string    `ch:"event_id"`

	// Caller context
	UserID  string `ch:"user_id"`
	RealmID string `ch:"realm_id"`
	QueryID string `ch:"query_id"`

	// Agent context
	AgentID string `ch:"agent_id"` // finance, sales, operations, synthesizer, forecast, health
	Purpose string `ch:"purpose"`  // analysis, synthesis, forecast, health_check

	// Model details
	Provider    string `ch:"provider"` // claude, grok, gemini
	ModelID     string `ch:"model_id"`
	ModelFamily string `ch:"model_family"`

	// Token usage
	PromptTokens     uint32 `ch:"prompt_tokens"`
	CompletionTokens uint32 `ch:"completion_tokens"`
	TotalTokens      uint32 `ch:"total_tokens"`

	// Cost
	InputCostUSD  float64 `ch:"input_cost_usd"`
	OutputCostUSD float64 `ch:"output_cost_usd"`
	TotalCostUSD  float64 `ch:"total_cost_usd"`

	// Outcome
	LatencyMs    uint32 `ch:"latency_ms"`
	Success      bool   `ch:"success"`
	ErrorMessage string `ch:"error_message"`

	CreatedAt time.Time `ch:"created_at"`
}
