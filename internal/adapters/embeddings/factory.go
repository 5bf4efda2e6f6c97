package embeddings

import (
	"time"

	"erpinsight/internal/adapters/config"
	"erpinsight/pkg/errors"
)

// ProviderType defines supported embedding providers
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderLocal  ProviderType = "local"
)

// Config holds configuration for embedding provider
type Config struct {
	Provider   ProviderType
	APIKey     string
	Model      string
	Dimensions int // local provider only
	Timeout    time.Duration
	CacheSize  int // 0 disables the query cache
}

// ConfigFromRAG maps the RAG config section onto provider settings
func ConfigFromRAG(cfg config.RAGConfig) Config {
	return Config{
		Provider:   ProviderType(cfg.EmbeddingProvider),
		APIKey:     cfg.OpenAIKey,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.LocalDimensions,
		Timeout:    cfg.Timeout,
		CacheSize:  cfg.QueryCacheSize,
	}
}

// NewProvider creates an embedding provider based on config
func NewProvider(cfg Config) (Provider, error) {
	var (
		provider Provider
		err      error
	)

	switch cfg.Provider {
	case ProviderOpenAI:
		provider, err = NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.Timeout)
	case ProviderLocal, "":
		provider = NewLocalProvider(cfg.Dimensions)
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput,
			"unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		return NewCachedProvider(provider, cfg.CacheSize)
	}
	return provider, nil
}
