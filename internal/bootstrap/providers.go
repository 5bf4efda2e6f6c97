package bootstrap

import (
	"context"
	"net/http"
	"os"
	"time"

	"erpinsight/internal/adapters/ai"
	chclient "erpinsight/internal/adapters/clickhouse"
	"erpinsight/internal/adapters/config"
	"erpinsight/internal/adapters/embeddings"
	errnoop "erpinsight/internal/adapters/errors/noop"
	"erpinsight/internal/adapters/errors/sentry"
	"erpinsight/internal/adapters/kafka"
	pgclient "erpinsight/internal/adapters/postgres"
	"erpinsight/internal/adapters/quickbooks"
	redisclient "erpinsight/internal/adapters/redis"
	"erpinsight/internal/agents"
	"erpinsight/internal/api"
	agentsapi "erpinsight/internal/api/agents"
	"erpinsight/internal/api/health"
	"erpinsight/internal/consumers"
	"erpinsight/internal/domain/ai_usage"
	"erpinsight/internal/domain/rag"
	"erpinsight/internal/events"
	"erpinsight/internal/metrics"
	chrepo "erpinsight/internal/repository/clickhouse"
	"erpinsight/internal/repository/inmem"
	pgrepo "erpinsight/internal/repository/postgres"
	"erpinsight/pkg/auth"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
	"erpinsight/pkg/templates"
)

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)

	metrics.Init()
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects the configured data stores. Each store is
// optional; an unset host leaves it nil.
func (c *Container) MustInitInfrastructure() {
	var err error

	if c.Config.Postgres.Enabled() {
		c.Log.Info("Connecting to PostgreSQL...")
		ctx, cancel := context.WithTimeout(c.Context, 15*time.Second)
		c.PG, err = pgclient.NewClient(ctx, c.Config.Postgres)
		cancel()
		if err != nil {
			c.Log.Fatalf("failed to connect postgres: %v", err)
		}
		c.Log.Info("✓ PostgreSQL connected")
	}

	if c.Config.ClickHouse.Enabled() {
		c.Log.Info("Connecting to ClickHouse...")
		ctx, cancel := context.WithTimeout(c.Context, 15*time.Second)
		c.CH, err = chclient.NewClient(ctx, c.Config.ClickHouse)
		cancel()
		if err != nil {
			c.Log.Fatalf("failed to connect clickhouse: %v", err)
		}
		c.Log.Info("✓ ClickHouse connected")
	}

	if c.Config.Redis.Enabled() {
		c.Log.Info("Connecting to Redis...")
		c.Redis, err = redisclient.NewClient(c.Config.Redis)
		if err != nil {
			c.Log.Fatalf("failed to connect redis: %v", err)
		}
		c.Log.Info("✓ Redis connected")
	}
}

// ========================================
// Phase 3: Repositories
// ========================================

// MustInitRepositories picks the document store and the usage writer
func (c *Container) MustInitRepositories() {
	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	switch c.Config.RAG.Backend {
	case "postgres":
		docs := pgrepo.NewDocumentRepository(c.PG.DB())
		if err := docs.EnsureSchema(ctx); err != nil {
			c.Log.Fatalf("failed to prepare rag_documents: %v", err)
		}
		c.Repos.Documents = docs
	default:
		c.Repos.Documents = inmem.NewDocumentRepository()
	}

	if c.CH != nil {
		usage := chrepo.NewAIUsageRepository(c.CH.Conn())
		if err := usage.EnsureSchema(ctx); err != nil {
			c.Log.Fatalf("failed to prepare ai_usage: %v", err)
		}
		c.Repos.AIUsage = usage

		if c.Config.Kafka.Enabled() && c.Config.Kafka.QueryLog {
			queries := chrepo.NewQueryLogRepository(c.CH.Conn())
			if err := queries.EnsureSchema(ctx); err != nil {
				c.Log.Fatalf("failed to prepare agent_queries: %v", err)
			}
			c.Repos.QueryLog = queries
		}
	}

	c.Log.Infow("✓ Repositories initialized",
		"rag_backend", c.Config.RAG.Backend,
		"usage_tracking", c.Repos.AIUsage != nil,
	)
}

// ========================================
// Phase 4: External Adapters
// ========================================

// MustInitAdapters initializes LLM, QuickBooks, embeddings and Kafka
func (c *Container) MustInitAdapters() {
	var err error

	c.Adapters.KafkaProducer = provideKafkaProducer(c.Config, c.Log)

	c.Adapters.LLM, err = provideLLM(c.Context, c.Config, c.Redis, c.Repos.AIUsage)
	if err != nil {
		c.Log.Fatalf("failed to create LLM client: %v", err)
	}
	c.Log.Infow("✓ LLM client initialized", "provider", c.Adapters.LLM.Provider(), "model", c.Adapters.LLM.Model())

	cache := provideQuickBooksCache(c.Redis)
	c.Adapters.QuickBooks = quickbooks.NewClient(c.Config.QuickBooks, quickbooks.WithCache(cache, c.Config.QuickBooks.CacheTTL))
	c.Adapters.OAuth = quickbooks.NewOAuth(c.Config.QuickBooks, cache)
	c.Log.Infow("✓ QuickBooks client initialized", "base_url", c.Config.QuickBooks.APIBase())

	c.Adapters.Embeddings, err = embeddings.NewProvider(embeddings.ConfigFromRAG(c.Config.RAG))
	if err != nil {
		c.Log.Fatalf("failed to create embedding provider: %v", err)
	}
	c.Log.Infof("✓ Embedding provider initialized: %s", c.Adapters.Embeddings.Name())
}

// ========================================
// Phase 5: Business Logic
// ========================================

// MustInitBusiness builds the knowledge base, the health monitor and the
// agent factory
func (c *Container) MustInitBusiness() {
	if dir := c.Config.Agents.PromptsDir; dir != "" {
		reg, err := templates.NewWithDir(dir)
		if err != nil {
			c.Log.Fatalf("failed to load prompt overrides: %v", err)
		}
		templates.Use(reg)
		c.Log.Infow("✓ Prompt overrides loaded", "dir", dir, "templates", len(reg.List()))
	}

	c.Business.KnowledgeBase = rag.NewService(c.Repos.Documents, c.Adapters.Embeddings, rag.Config{
		Backend:      c.Config.RAG.Backend,
		ChunkSize:    c.Config.RAG.ChunkSize,
		ChunkOverlap: c.Config.RAG.ChunkOverlap,
		TopK:         c.Config.RAG.TopK,
	})

	// A nil *kafka.Producer must not reach the Sender interface
	var sender events.Sender
	if c.Adapters.KafkaProducer != nil {
		sender = c.Adapters.KafkaProducer
	}
	c.Business.Events = events.NewPublisher(sender, c.Config.Kafka.QueryTopic)

	c.Business.Monitor = health.NewMonitor(c.Adapters.LLM, c.Business.KnowledgeBase, c.Adapters.QuickBooks, 10*time.Second)

	c.Business.AgentFactory = agents.NewFactory(agents.FactoryDeps{
		DataSource:    c.Adapters.QuickBooks,
		LLM:           c.Adapters.LLM,
		KnowledgeBase: c.Business.KnowledgeBase,
		Config:        c.Config.Agents,
		Events:        c.Business.Events,
		Health:        c.Business.Monitor,
	})

	c.Log.Infow("✓ Agent factory initialized",
		"agents", c.Business.AgentFactory.Registry().IDs(),
		"events", c.Business.Events.Enabled(),
	)
}

// ========================================
// Phase 6: Application Layer
// ========================================

// MustInitApplication builds the HTTP API and the metrics collector
func (c *Container) MustInitApplication() {
	c.Application.HealthHandler = health.New(c.Log, c.Business.Monitor, provideInfrastructure(c), c.Config.App.Name, c.Config.App.Version)
	c.Application.AgentsHandler = agentsapi.NewHandler(c.Business.AgentFactory, c.Business.KnowledgeBase, c.Business.Events, c.Log)
	c.Application.ConnectHandler = agentsapi.NewConnectHandler(c.Adapters.OAuth, c.Log)

	// typed nils must not reach the handler's interfaces
	var (
		costs   ai_usage.Reports
		queries agentsapi.QueryStats
	)
	if c.Repos.AIUsage != nil {
		costs = c.Repos.AIUsage
	}
	if c.Repos.QueryLog != nil {
		queries = c.Repos.QueryLog
	}
	c.Application.UsageHandler = agentsapi.NewUsageHandler(costs, queries, c.Log)

	var validator agentsapi.TokenValidator
	if c.Config.Auth.Enabled() {
		c.Application.JWT = auth.NewJWTService(c.Config.Auth.JWTSecret, c.Config.Auth.JWTIssuer, c.Config.Auth.JWTDuration)
		validator = c.Application.JWT
	} else {
		c.Log.Warn("JWT_SECRET not set, API trusts the X-User-Id header")
	}
	authn := agentsapi.NewAuthMiddleware(validator, c.Log)

	c.Application.HTTPServer = api.NewServer(api.ServerConfig{
		Port:         c.Config.HTTP.Port,
		ServiceName:  c.Config.App.Name,
		Version:      c.Config.App.Version,
		ReadTimeout:  c.Config.HTTP.ReadTimeout,
		WriteTimeout: c.Config.HTTP.WriteTimeout,
	}, c.Application.HealthHandler, c.Log, func(mux *http.ServeMux) {
		c.Application.AgentsHandler.Register(mux, authn)
		c.Application.ConnectHandler.Register(mux, authn)
		c.Application.UsageHandler.Register(mux, authn)
	})

	sources := metrics.CollectorSources{CachedAgents: c.Business.AgentFactory.CachedCount}
	if c.Config.RAG.Backend == "postgres" {
		sources.Postgres = c.PG.DB()
	}
	if c.Repos.AIUsage != nil {
		sources.Usage = c.Repos.AIUsage
	}
	metrics.RegisterCustomCollector(metrics.NewCustomCollector(c.Log, sources))

	c.Log.Info("✓ Application layer initialized")
}

// ========================================
// Phase 7: Background
// ========================================

// MustInitBackground builds the Kafka consumers
func (c *Container) MustInitBackground() {
	if c.Repos.QueryLog == nil {
		return
	}

	topic := c.Config.Kafka.QueryTopic
	source := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:       c.Config.Kafka.Brokers,
		GroupID:       c.Config.Kafka.GroupID,
		Topic:         topic,
		FromBeginning: true,
	})
	c.Background.QueryLogSvc = consumers.NewQueryLogConsumer(source, c.Repos.QueryLog, c.Log)
	c.Log.Infow("✓ Query log consumer initialized", "topic", topic, "group", c.Config.Kafka.GroupID)
}

// ========================================
// Providers
// ========================================

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	hostname, _ := os.Hostname()
	tracker, err := sentry.New(sentry.Options{
		DSN:         cfg.ErrorTracking.SentryDSN,
		Environment: cfg.ErrorTracking.Environment,
		Release:     cfg.App.Name + "@" + cfg.App.Version,
		ServerName:  hostname,
	})
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

func provideKafkaProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	if !cfg.Kafka.Enabled() {
		log.Info("Kafka brokers not configured, query events disabled")
		return nil
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
		Async:   cfg.Kafka.AsyncWrites,
	})
	log.Infow("✓ Kafka producer initialized", "brokers", cfg.Kafka.Brokers)
	return producer
}

func provideLLM(ctx context.Context, cfg *config.Config, redisClient *redisclient.Client, usageRepo *chrepo.AIUsageRepository) (*ai.Client, error) {
	var usage ai_usage.Recorder
	if usageRepo != nil {
		usage = usageRepo
	}
	if redisClient == nil {
		return ai.NewClientFromConfig(ctx, cfg.AI, nil, usage)
	}
	return ai.NewClientFromConfig(ctx, cfg.AI, redisClient.Client(), usage)
}

func provideQuickBooksCache(redisClient *redisclient.Client) quickbooks.Cache {
	if redisClient == nil {
		return quickbooks.NopCache{}
	}
	return quickbooks.NewRedisCache(redisClient)
}

func provideInfrastructure(c *Container) health.Infrastructure {
	var infra health.Infrastructure
	if c.PG != nil {
		infra.Postgres = c.PG.DB()
	}
	if c.CH != nil {
		infra.ClickHouse = c.CH.Conn()
	}
	if c.Redis != nil {
		infra.Redis = c.Redis.Client()
	}
	return infra
}
