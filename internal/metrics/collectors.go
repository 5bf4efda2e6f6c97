package metrics

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"erpinsight/pkg/logger"
)

// CostReader is satisfied by the ClickHouse AI usage repository
type CostReader interface {
	GetProviderCosts(ctx context.Context, from, to time.Time) (map[string]float64, error)
	GetAgentCosts(ctx context.Context, from, to time.Time) (map[string]float64, error)
}

// CollectorSources are read on every scrape. Nil members are skipped.
type CollectorSources struct {
	Postgres     *sqlx.DB   // pgvector knowledge base
	Usage        CostReader // ClickHouse ai_usage
	CachedAgents func() int
}

// CustomCollector exposes gauges that are read from stores at scrape time
type CustomCollector struct {
	log *logger.Logger
	src CollectorSources

	ragDocuments  *prometheus.Desc
	ragUsers      *prometheus.Desc
	cachedAgents  *prometheus.Desc
	providerCost  *prometheus.Desc
	agentCost     *prometheus.Desc
	scrapeFailure *prometheus.Desc
}

// NewCustomCollector creates a new custom metrics collector
func NewCustomCollector(log *logger.Logger, src CollectorSources) *CustomCollector {
	return &CustomCollector{
		log: log.With("component", "metrics_collector"),
		src: src,

		ragDocuments: prometheus.NewDesc(
			"erpinsight_rag_documents",
			"Knowledge base documents by data tag",
			[]string{"tag"}, nil,
		),
		ragUsers: prometheus.NewDesc(
			"erpinsight_rag_users",
			"Users with at least one indexed document",
			nil, nil,
		),
		cachedAgents: prometheus.NewDesc(
			"erpinsight_cached_agents",
			"Specialist agents held in the factory cache",
			nil, nil,
		),
		providerCost: prometheus.NewDesc(
			"erpinsight_llm_cost_usd_24h",
			"LLM spend over the last 24 hours by provider",
			[]string{"provider"}, nil,
		),
		agentCost: prometheus.NewDesc(
			"erpinsight_agent_cost_usd_24h",
			"LLM spend over the last 24 hours by agent",
			[]string{"agent"}, nil,
		),
		scrapeFailure: prometheus.NewDesc(
			"erpinsight_collector_scrape_failed",
			"1 when the last scrape of a source failed",
			[]string{"source"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *CustomCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ragDocuments
	ch <- c.ragUsers
	ch <- c.cachedAgents
	ch <- c.providerCost
	ch <- c.agentCost
	ch <- c.scrapeFailure
}

// Collect implements prometheus.Collector
func (c *CustomCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.src.CachedAgents != nil {
		ch <- prometheus.MustNewConstMetric(c.cachedAgents, prometheus.GaugeValue, float64(c.src.CachedAgents()))
	}
	if c.src.Postgres != nil {
		c.report(ch, "postgres", c.collectDocuments(ctx, ch))
	}
	if c.src.Usage != nil {
		c.report(ch, "clickhouse", c.collectCosts(ctx, ch))
	}
}

func (c *CustomCollector) report(ch chan<- prometheus.Metric, source string, err error) {
	value := 0.0
	if err != nil {
		c.log.Warnw("Failed to collect metrics", "source", source, "error", err)
		value = 1
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeFailure, prometheus.GaugeValue, value, source)
}

func (c *CustomCollector) collectDocuments(ctx context.Context, ch chan<- prometheus.Metric) error {
	type tagCount struct {
		Tag   string `db:"tag"`
		Count int    `db:"count"`
	}

	var counts []tagCount
	if err := c.src.Postgres.SelectContext(ctx, &counts, `
		SELECT tag, COUNT(*) AS count
		FROM rag_documents
		GROUP BY tag
	`); err != nil {
		return err
	}
	for _, tc := range counts {
		ch <- prometheus.MustNewConstMetric(c.ragDocuments, prometheus.GaugeValue, float64(tc.Count), tc.Tag)
	}

	var users int
	if err := c.src.Postgres.GetContext(ctx, &users, `SELECT COUNT(DISTINCT user_id) FROM rag_documents`); err != nil {
		return err
	}
	ch <- prometheus.MustNewConstMetric(c.ragUsers, prometheus.GaugeValue, float64(users))
	return nil
}

func (c *CustomCollector) collectCosts(ctx context.Context, ch chan<- prometheus.Metric) error {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)

	providers, err := c.src.Usage.GetProviderCosts(ctx, from, to)
	if err != nil {
		return err
	}
	for provider, cost := range providers {
		ch <- prometheus.MustNewConstMetric(c.providerCost, prometheus.GaugeValue, cost, provider)
	}

	agents, err := c.src.Usage.GetAgentCosts(ctx, from, to)
	if err != nil {
		return err
	}
	for agent, cost := range agents {
		ch <- prometheus.MustNewConstMetric(c.agentCost, prometheus.GaugeValue, cost, agent)
	}
	return nil
}

// RegisterCustomCollector registers the custom collector
func RegisterCustomCollector(collector *CustomCollector) {
	prometheus.MustRegister(collector)
}
