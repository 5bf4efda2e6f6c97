package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"erpinsight/internal/adapters/config"
	"erpinsight/internal/events"
	"erpinsight/internal/metrics"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

// Override adjusts a descriptor before its specialist is built
type Override func(*AgentDescriptor)

// WithName overrides the display name
func WithName(name string) Override {
	return func(d *AgentDescriptor) { d.Name = name }
}

// WithTemperature overrides the sampling temperature
func WithTemperature(t float64) Override {
	return func(d *AgentDescriptor) { d.Temperature = t }
}

// WithSystemPrompt overrides the agent instructions
func WithSystemPrompt(prompt string) Override {
	return func(d *AgentDescriptor) { d.SystemPrompt = prompt }
}

// WithConfidenceThreshold overrides the descriptor threshold
func WithConfidenceThreshold(t float64) Override {
	return func(d *AgentDescriptor) { d.ConfidenceThreshold = t }
}

// FactoryDeps wires a Factory. Registry and Router default to the built-in
// agents, Synthesizer to one over LLM. KnowledgeBase, Events and Health
// are optional.
type FactoryDeps struct {
	Registry      *Registry
	Router        *Router
	DataSource    DataSource
	LLM           LLMClient
	KnowledgeBase KnowledgeBase
	Synthesizer   *Synthesizer
	Config        config.AgentsConfig
	Events        *events.Publisher
	Health        HealthProbe
	Domains       map[string]*Domain
}

// Factory creates and caches specialists and coordinates single and
// multi-agent queries
type Factory struct {
	registry    *Registry
	router      *Router
	source      DataSource
	llm         LLMClient
	kb          KnowledgeBase
	synthesizer *Synthesizer
	cfg         config.AgentsConfig
	events      *events.Publisher
	health      HealthProbe
	domains     map[string]*Domain
	log         *logger.Logger

	mu    sync.RWMutex
	cache map[string]*Specialist
}

// NewFactory builds a factory from deps
func NewFactory(deps FactoryDeps) *Factory {
	registry := deps.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	if deps.Config.RecommendThreshold > 0 {
		registry = registry.WithThreshold(deps.Config.RecommendThreshold)
	}
	router := deps.Router
	if router == nil {
		router = NewRouter(registry)
	}
	synth := deps.Synthesizer
	if synth == nil {
		synth = NewSynthesizer(deps.LLM, deps.Config.LLMMaxTokens)
	}
	domains := deps.Domains
	if domains == nil {
		domains = builtinDomains()
	}

	return &Factory{
		registry:    registry,
		router:      router,
		source:      deps.DataSource,
		llm:         deps.LLM,
		kb:          deps.KnowledgeBase,
		synthesizer: synth,
		cfg:         deps.Config,
		events:      deps.Events,
		health:      deps.Health,
		domains:     domains,
		log:         logger.Get().With("component", "agent_factory"),
		cache:       make(map[string]*Specialist),
	}
}

// Registry returns the descriptor registry
func (f *Factory) Registry() *Registry {
	return f.registry
}

// Router returns the query router
func (f *Factory) Router() *Router {
	return f.router
}

// CreateAgent returns the cached specialist for id, building it on first
// use. Ids without a pipeline resolve to the finance agent. Overrides
// only apply when the specialist is built.
func (f *Factory) CreateAgent(id string, overrides ...Override) *Specialist {
	key := id
	if _, ok := f.registry.Get(id); !ok {
		f.log.Warnw("unknown agent id", "agent", id)
	}
	if _, ok := f.domains[id]; !ok {
		f.log.Warnw("agent has no pipeline", "error", &errors.UnknownAgentError{ID: id, Fallback: FallbackAgentID})
		metrics.AgentFallbacks.WithLabelValues(id, "unknown_agent").Inc()
		key = FallbackAgentID
	}

	f.mu.RLock()
	agent, ok := f.cache[key]
	f.mu.RUnlock()
	if ok {
		metrics.AgentCacheEvents.WithLabelValues("hit").Inc()
		return agent
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if agent, ok := f.cache[key]; ok {
		metrics.AgentCacheEvents.WithLabelValues("hit").Inc()
		return agent
	}
	metrics.AgentCacheEvents.WithLabelValues("miss").Inc()

	desc, _ := f.registry.Get(key)
	for _, o := range overrides {
		o(&desc)
	}

	agent = newSpecialist(desc, f.domains[key], SpecialistDeps{
		Source:        f.source,
		LLM:           f.llm,
		KnowledgeBase: f.kb,
		Config:        f.cfg,
	})
	f.cache[key] = agent
	f.log.Infow("agent created", "agent", key, "requested", id)
	return agent
}

// BestAgentID routes query, falling back to finance when the routed agent
// is not recommended for it
func (f *Factory) BestAgentID(query string) string {
	decision := f.router.Decide(query)
	if !decision.Recommended {
		if decision.AgentID != FallbackAgentID {
			metrics.AgentFallbacks.WithLabelValues(decision.AgentID, "low_confidence").Inc()
		}
		f.log.Debugw("routed agent not recommended",
			"agent", decision.AgentID,
			"confidence", decision.Confidence,
		)
		return FallbackAgentID
	}
	return decision.AgentID
}

// GetBestAgent returns the specialist best suited to query
func (f *Factory) GetBestAgent(query string) *Specialist {
	return f.CreateAgent(f.BestAgentID(query))
}

// ProcessQuery answers query with the best single agent
func (f *Factory) ProcessQuery(ctx context.Context, query string, qc QueryContext) *AgentResult {
	return f.ProcessWithAgent(ctx, f.BestAgentID(query), query, qc)
}

// ProcessWithAgent answers query with the agent named by id
func (f *Factory) ProcessWithAgent(ctx context.Context, id, query string, qc QueryContext) *AgentResult {
	start := time.Now()
	result := f.runAgent(ctx, id, query, qc)
	f.publish(ctx, qc, result, []string{result.AgentID}, false, time.Since(start))
	return result
}

// ProcessMultiAgentQuery runs the agents selected for query and
// synthesizes their results. A single selected agent's result is
// returned as is.
func (f *Factory) ProcessMultiAgentQuery(ctx context.Context, query string, qc QueryContext) *AgentResult {
	start := time.Now()
	ids := f.router.SelectAgents(query)
	metrics.MultiAgentQueries.WithLabelValues(strings.Join(ids, ",")).Inc()
	f.log.Infow("multi-agent query", "agents", ids, "query_id", qc.QueryID)

	results := make([]NamedResult, len(ids))
	if f.cfg.MultiAgentParallelism > 1 && len(ids) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(f.cfg.MultiAgentParallelism)
		for i, id := range ids {
			g.Go(func() error {
				results[i] = NamedResult{AgentID: id, Result: f.runAgent(gctx, id, query, qc)}
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, id := range ids {
			results[i] = NamedResult{AgentID: id, Result: f.runAgent(ctx, id, query, qc)}
		}
	}

	var final *AgentResult
	if len(results) == 1 {
		final = results[0].Result
	} else {
		final = f.synthesizer.Synthesize(ctx, results, query)
	}

	f.publish(ctx, qc, final, ids, len(ids) > 1, time.Since(start))
	return final
}

// ClearCache drops every cached specialist
func (f *Factory) ClearCache() {
	f.mu.Lock()
	n := len(f.cache)
	f.cache = make(map[string]*Specialist)
	f.mu.Unlock()

	metrics.AgentCacheEvents.WithLabelValues("clear").Inc()
	f.log.Infow("agent cache cleared", "agents", n)
}

// CachedCount returns how many specialists are cached
func (f *Factory) CachedCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.cache)
}

// runAgent never panics and never returns nil
func (f *Factory) runAgent(ctx context.Context, id, query string, qc QueryContext) (result *AgentResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("agent %s panicked: %v", id, r)
			f.log.ErrorWithContext(ctx, err, map[string]string{"agent": id, "stage": "factory"})
			result = errorResult(id, fmt.Sprintf("Error processing with %s agent", id), err.Error())
		}
	}()

	result = f.CreateAgent(id).ProcessQuery(ctx, query, qc)
	if result == nil {
		result = errorResult(id, fmt.Sprintf("Error processing with %s agent", id), "empty result")
	}
	return result
}

func (f *Factory) publish(ctx context.Context, qc QueryContext, result *AgentResult, agents []string, multi bool, elapsed time.Duration) {
	if !f.events.Enabled() {
		return
	}

	event := events.NewQueryCompleted(qc.UserID)
	event.QueryID = qc.QueryID
	event.RealmID = qc.Credentials.RealmID
	event.AgentID = result.AgentID
	event.AgentsUsed = agents
	event.MultiAgent = multi
	event.DataSources = result.Data.KeyStrings()
	event.DurationMS = elapsed.Milliseconds()
	event.Error = result.Error

	if err := f.events.PublishQueryCompleted(ctx, event); err != nil {
		f.log.Warnw("publish query event failed", "error", err, "query_id", qc.QueryID)
	}
}
