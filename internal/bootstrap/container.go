package bootstrap

import (
	"context"
	"sync"

	"erpinsight/internal/adapters/ai"
	chclient "erpinsight/internal/adapters/clickhouse"
	"erpinsight/internal/adapters/config"
	"erpinsight/internal/adapters/embeddings"
	"erpinsight/internal/adapters/kafka"
	pgclient "erpinsight/internal/adapters/postgres"
	"erpinsight/internal/adapters/quickbooks"
	redisclient "erpinsight/internal/adapters/redis"
	"erpinsight/internal/agents"
	"erpinsight/internal/api"
	agentsapi "erpinsight/internal/api/agents"
	"erpinsight/internal/api/health"
	"erpinsight/internal/consumers"
	"erpinsight/internal/domain/rag"
	"erpinsight/internal/events"
	chrepo "erpinsight/internal/repository/clickhouse"
	"erpinsight/pkg/auth"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

// Container holds all application dependencies
type Container struct {
	// Configuration
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure. Each store is optional and nil when not configured.
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	Repos       *Repositories
	Adapters    *Adapters
	Business    *Business
	Application *Application
	Background  *Background

	// Lifecycle
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups the storage backends
type Repositories struct {
	Documents rag.Repository
	AIUsage   *chrepo.AIUsageRepository  // nil without ClickHouse
	QueryLog  *chrepo.QueryLogRepository // nil without ClickHouse and Kafka
}

// Adapters groups all external adapters
type Adapters struct {
	KafkaProducer *kafka.Producer // nil when Kafka is not configured
	LLM           *ai.Client
	QuickBooks    *quickbooks.Client
	OAuth         *quickbooks.OAuth
	Embeddings    embeddings.Provider
}

// Business groups the agent engine and the services it runs on
type Business struct {
	KnowledgeBase *rag.Service
	Events        *events.Publisher
	Monitor       *health.Monitor
	AgentFactory  *agents.Factory
}

// Application groups application layer components
type Application struct {
	HTTPServer     *api.Server
	HealthHandler  *health.Handler
	AgentsHandler  *agentsapi.Handler
	ConnectHandler *agentsapi.ConnectHandler
	UsageHandler   *agentsapi.UsageHandler
	JWT            *auth.JWTService // nil when bearer auth is disabled
}

// Background groups background processing components
type Background struct {
	QueryLogSvc *consumers.QueryLogConsumer // nil unless Kafka and ClickHouse are configured
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:       &Repositories{},
		Adapters:    &Adapters{},
		Business:    &Business{},
		Application: &Application{},
		Background:  &Background{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes all components in the correct order
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitBusiness()
	c.MustInitApplication()
	c.MustInitBackground()
}

// Start starts the usage writer and the HTTP server
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	if c.Repos.AIUsage != nil {
		c.Repos.AIUsage.Start(c.Context)
		c.Log.Info("✓ AI usage writer started")
	}

	if svc := c.Background.QueryLogSvc; svc != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			if err := svc.Start(c.Context); err != nil && c.Context.Err() == nil {
				c.Log.Errorw("query log consumer failed", "error", err)
			}
		}()
		c.Log.Info("✓ Query log consumer started")
	}

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	c.Log.Info("✓ All systems operational")
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	c.Cancel()

	c.Lifecycle.Shutdown(ShutdownTargets{
		WG:            c.WG,
		HTTPServer:    c.Application.HTTPServer,
		UsageWriter:   c.Repos.AIUsage,
		KafkaProducer: c.Adapters.KafkaProducer,
		PG:            c.PG,
		CH:            c.CH,
		Redis:         c.Redis,
		ErrorTracker:  c.ErrorTracker,
	}, c.Log)
}

// GetMetrics returns metrics for observability
func (c *Container) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"agents":        len(c.Business.AgentFactory.Registry().All()),
		"cached_agents": c.Business.AgentFactory.CachedCount(),
	}
}
