package ai

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"erpinsight/internal/adapters/config"
	"erpinsight/internal/domain/ai_usage"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

// BuildRegistry initializes a ProviderRegistry with every provider that has a key configured.
func BuildRegistry(ctx context.Context, cfg config.AIConfig) (*ProviderRegistry, error) {
	registry := NewProviderRegistry()

	if cfg.ClaudeKey != "" {
		if err := registry.Register(NewClaudeProvider(cfg.ClaudeKey, cfg.Timeout)); err != nil {
			return nil, err
		}
	}

	if cfg.GrokKey != "" {
		if err := registry.Register(NewGrokProvider(cfg.GrokKey, cfg.GrokBaseURL, cfg.Timeout)); err != nil {
			return nil, err
		}
	}

	if cfg.GeminiKey != "" {
		gemini, err := NewGeminiProvider(ctx, cfg.GeminiKey, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(gemini); err != nil {
			return nil, err
		}
	}

	if len(registry.Names()) == 0 {
		return nil, errors.Wrap(errors.ErrUnavailable, "no AI provider key configured")
	}

	return registry, nil
}

// NewClientFromConfig builds the Client for cfg.Provider. redisClient enables
// the distributed rate limiter when cfg.DistributedLimit is set; usage may be nil.
func NewClientFromConfig(ctx context.Context, cfg config.AIConfig, redisClient *redis.Client, usage ai_usage.Recorder) (*Client, error) {
	registry, err := BuildRegistry(ctx, cfg)
	if err != nil {
		return nil, err
	}

	preferred := ProviderName(NormalizeProviderName(cfg.Provider))
	provider, name, err := registry.Select(preferred, cfg.Fallback)
	if err != nil {
		return nil, err
	}
	if name != preferred {
		logger.Get().Warnw("AI provider has no key, falling back", "preferred", preferred, "using", name)
	}

	if !cfg.DistributedLimit {
		redisClient = nil
	}
	limiter := NewRateLimiterFactory(redisClient).Create(name, RateLimitConfig{
		Enabled:      cfg.RequestsPerMinute > 0,
		ReqPerMinute: cfg.RequestsPerMinute,
		Burst:        cfg.Burst,
	})

	return NewClient(provider, ClientConfig{
		Model:       modelFor(name, cfg),
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Breaker: BreakerConfig{
			MaxFailures: cfg.BreakerMaxFailures,
			Timeout:     cfg.BreakerTimeout,
		},
	}, limiter, usage), nil
}

func modelFor(name ProviderName, cfg config.AIConfig) string {
	switch name {
	case ProviderNameGrok:
		return cfg.GrokModel
	case ProviderNameGemini:
		return cfg.GeminiModel
	default:
		return cfg.ClaudeModel
	}
}

// NormalizeProviderName makes provider lookup more forgiving.
func NormalizeProviderName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
