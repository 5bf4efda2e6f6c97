package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"erpinsight/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	AI            AIConfig
	QuickBooks    QuickBooksConfig
	RAG           RAGConfig
	Agents        AgentsConfig
	Auth          AuthConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"erpinsight"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	Version  string `envconfig:"APP_VERSION" default:"2.0.0"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type HTTPConfig struct {
	Port         int           `envconfig:"HTTP_PORT" default:"8000"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"180s"` // multi-agent queries make several LLM calls
}

// PostgresConfig backs the pgvector knowledge base. Leave POSTGRES_HOST empty
// to run with the in-memory store.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"erpinsight"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"erpinsight"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (c PostgresConfig) Enabled() bool { return c.Host != "" }

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Host     string `envconfig:"CLICKHOUSE_HOST"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"erpinsight"`
}

func (c ClickHouseConfig) Enabled() bool { return c.Host != "" }

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Enabled() bool { return c.Host != "" }

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers     []string `envconfig:"KAFKA_BROKERS"`
	QueryTopic  string   `envconfig:"KAFKA_QUERY_TOPIC" default:"agent.query.completed"`
	AsyncWrites bool     `envconfig:"KAFKA_ASYNC" default:"true"`
	GroupID     string   `envconfig:"KAFKA_GROUP_ID" default:"erpinsight-query-log"`
	QueryLog    bool     `envconfig:"KAFKA_QUERY_LOG" default:"true"` // mirror query events into ClickHouse
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

type AIConfig struct {
	Provider string `envconfig:"AI_PROVIDER" default:"claude"` // claude | grok | gemini
	// Fallback picks the next keyed provider (claude, grok, gemini) when
	// Provider has no key instead of failing startup
	Fallback bool `envconfig:"AI_PROVIDER_FALLBACK" default:"false"`

	ClaudeKey   string `envconfig:"ANTHROPIC_API_KEY"`
	ClaudeModel string `envconfig:"CLAUDE_MODEL" default:"claude-3-5-sonnet-20241022"`

	GrokKey     string `envconfig:"GROK_API_KEY"`
	GrokModel   string `envconfig:"GROK_MODEL" default:"grok-beta"`
	GrokBaseURL string `envconfig:"GROK_BASE_URL" default:"https://api.x.ai/v1"`

	GeminiKey   string `envconfig:"GEMINI_API_KEY"`
	GeminiModel string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-pro"`

	MaxTokens   int           `envconfig:"AI_MAX_TOKENS" default:"4000"`
	Temperature float64       `envconfig:"AI_TEMPERATURE" default:"0.7"`
	Timeout     time.Duration `envconfig:"AI_TIMEOUT" default:"60s"`

	RequestsPerMinute float64 `envconfig:"AI_REQUESTS_PER_MINUTE" default:"50"`
	Burst             int     `envconfig:"AI_BURST" default:"5"`
	DistributedLimit  bool    `envconfig:"AI_DISTRIBUTED_RATE_LIMIT" default:"false"`

	BreakerMaxFailures uint32        `envconfig:"AI_BREAKER_MAX_FAILURES" default:"5"`
	BreakerTimeout     time.Duration `envconfig:"AI_BREAKER_TIMEOUT" default:"30s"`
}

type QuickBooksConfig struct {
	ClientID     string `envconfig:"QB_CLIENT_ID"`
	ClientSecret string `envconfig:"QB_CLIENT_SECRET"`
	RedirectURI  string `envconfig:"QB_REDIRECT_URI" default:"http://localhost:8000/api/quickbooks/callback"`
	Sandbox      bool   `envconfig:"QB_SANDBOX" default:"true"`
	BaseURL      string `envconfig:"QB_BASE_URL"` // overrides the sandbox/production default

	Timeout           time.Duration `envconfig:"QB_TIMEOUT" default:"30s"`
	CacheTTL          time.Duration `envconfig:"QB_CACHE_TTL" default:"5m"`
	RequestsPerSecond float64       `envconfig:"QB_REQUESTS_PER_SECOND" default:"8"`
	MaxRetries        int           `envconfig:"QB_MAX_RETRIES" default:"3"`
	MinorVersion      string        `envconfig:"QB_MINOR_VERSION" default:"65"`
}

const (
	quickBooksSandboxURL    = "https://sandbox-quickbooks.api.intuit.com"
	quickBooksProductionURL = "https://quickbooks.api.intuit.com"
)

// APIBase returns the QuickBooks REST base URL
func (c QuickBooksConfig) APIBase() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Sandbox {
		return quickBooksSandboxURL
	}
	return quickBooksProductionURL
}

type RAGConfig struct {
	Backend           string        `envconfig:"RAG_BACKEND" default:"memory"`            // memory | postgres
	EmbeddingProvider string        `envconfig:"RAG_EMBEDDING_PROVIDER" default:"local"`  // local | openai
	EmbeddingModel    string        `envconfig:"RAG_EMBEDDING_MODEL"`
	OpenAIKey         string        `envconfig:"OPENAI_API_KEY"`
	LocalDimensions   int           `envconfig:"RAG_LOCAL_DIMENSIONS" default:"384"`
	ChunkSize         int           `envconfig:"RAG_CHUNK_SIZE" default:"1000"`
	ChunkOverlap      int           `envconfig:"RAG_CHUNK_OVERLAP" default:"200"`
	TopK              int           `envconfig:"RAG_TOP_K" default:"3"`
	QueryCacheSize    int           `envconfig:"RAG_QUERY_CACHE_SIZE" default:"1024"`
	Timeout           time.Duration `envconfig:"RAG_TIMEOUT" default:"20s"`
}

// AgentsConfig tunes the query pipeline
type AgentsConfig struct {
	MultiAgentParallelism int           `envconfig:"AGENTS_MULTI_PARALLELISM" default:"1"` // 1 keeps agents sequential
	FetchParallelism      int           `envconfig:"AGENTS_FETCH_PARALLELISM" default:"1"`
	FetchTimeout          time.Duration `envconfig:"AGENTS_FETCH_TIMEOUT" default:"30s"`
	LLMTimeout            time.Duration `envconfig:"AGENTS_LLM_TIMEOUT" default:"90s"`
	LLMMaxTokens          int           `envconfig:"AGENTS_LLM_MAX_TOKENS" default:"4000"`
	RecommendThreshold    float64       `envconfig:"AGENTS_RECOMMEND_THRESHOLD" default:"0.3"`
	PromptsDir            string        `envconfig:"AGENTS_PROMPTS_DIR"` // .tmpl files here replace the embedded prompts
}

// AuthConfig guards the HTTP API. An empty secret disables bearer auth and
// callers identify themselves with X-User-Id.
type AuthConfig struct {
	JWTSecret   string        `envconfig:"JWT_SECRET"`
	JWTIssuer   string        `envconfig:"JWT_ISSUER" default:"erpinsight"`
	JWTDuration time.Duration `envconfig:"JWT_DURATION" default:"720h"`
}

func (c AuthConfig) Enabled() bool { return c.JWTSecret != "" }

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case "claude", "grok", "gemini":
	default:
		return errors.NewValidationError("AI_PROVIDER", "must be claude, grok or gemini", c.AI.Provider)
	}

	switch c.RAG.Backend {
	case "memory":
	case "postgres":
		if !c.Postgres.Enabled() {
			return errors.NewValidationError("POSTGRES_HOST", "required when RAG_BACKEND=postgres", c.Postgres.Host)
		}
	default:
		return errors.NewValidationError("RAG_BACKEND", "must be memory or postgres", c.RAG.Backend)
	}

	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return errors.NewValidationError("RAG_CHUNK_OVERLAP", "must be smaller than RAG_CHUNK_SIZE", c.RAG.ChunkOverlap)
	}

	if c.Auth.Enabled() && len(c.Auth.JWTSecret) < 32 {
		return errors.NewValidationError("JWT_SECRET", "must be at least 32 characters", len(c.Auth.JWTSecret))
	}

	if c.Agents.MultiAgentParallelism < 1 {
		c.Agents.MultiAgentParallelism = 1
	}
	if c.Agents.FetchParallelism < 1 {
		c.Agents.FetchParallelism = 1
	}

	return nil
}
