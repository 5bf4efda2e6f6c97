package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AI_PROVIDER", "claude")
	t.Setenv("RAG_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "erpinsight", cfg.App.Name)
	assert.Equal(t, "claude-3-5-sonnet-20241022", cfg.AI.ClaudeModel)
	assert.Equal(t, 4000, cfg.AI.MaxTokens)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.Equal(t, 1, cfg.Agents.MultiAgentParallelism)
	assert.InDelta(t, 0.3, cfg.Agents.RecommendThreshold, 1e-9)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			AI:     AIConfig{Provider: "grok"},
			RAG:    RAGConfig{Backend: "memory", ChunkSize: 1000, ChunkOverlap: 200},
			Agents: AgentsConfig{},
		}
	}

	t.Run("valid and clamps parallelism", func(t *testing.T) {
		cfg := base()
		require.NoError(t, cfg.Validate())
		assert.Equal(t, 1, cfg.Agents.MultiAgentParallelism)
		assert.Equal(t, 1, cfg.Agents.FetchParallelism)
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := base()
		cfg.AI.Provider = "llama"
		assert.Error(t, cfg.Validate())
	})

	t.Run("postgres backend without host", func(t *testing.T) {
		cfg := base()
		cfg.RAG.Backend = "postgres"
		assert.Error(t, cfg.Validate())
	})

	t.Run("overlap larger than chunk", func(t *testing.T) {
		cfg := base()
		cfg.RAG.ChunkOverlap = 1000
		assert.Error(t, cfg.Validate())
	})
}

func TestQuickBooksAPIBase(t *testing.T) {
	assert.Equal(t, "https://sandbox-quickbooks.api.intuit.com", QuickBooksConfig{Sandbox: true}.APIBase())
	assert.Equal(t, "https://quickbooks.api.intuit.com", QuickBooksConfig{}.APIBase())
	assert.Equal(t, "http://stub", QuickBooksConfig{Sandbox: true, BaseURL: "http://stub"}.APIBase())
}
