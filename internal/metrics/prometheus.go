package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Routing metrics
	RoutingDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpinsight_routing_decisions_total",
			Help: "Queries routed per agent",
		},
		[]string{"agent", "recommended"}, // recommended: true|false
	)

	AgentFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpinsight_agent_fallbacks_total",
			Help: "Substitutions of the fallback agent",
		},
		[]string{"requested", "reason"}, // reason: low_confidence|unknown_agent
	)

	// Agent pipeline metrics
	AgentRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpinsight_agent_runs_total",
			Help: "Specialist pipeline executions",
		},
		[]string{"agent", "status"}, // status: success|no_access|error
	)

	AgentLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "erpinsight_agent_latency_seconds",
			Help:    "Specialist pipeline latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"agent"},
	)

	AgentCacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpinsight_agent_cache_events_total",
			Help: "Agent instance cache hits and misses",
		},
		[]string{"event"}, // hit|miss|clear
	)

	MultiAgentQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpinsight_multi_agent_queries_total",
			Help: "Multi-agent queries by number of agents run",
		},
		[]string{"agents"},
	)

	SynthesisFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpinsight_synthesis_fallbacks_total",
			Help: "Synthesis fallbacks by kind",
		},
		[]string{"kind"}, // raw_concatenation|first_clean|generic
	)

	// LLM metrics
	LLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpinsight_llm_calls_total",
			Help: "Language model completions",
		},
		[]string{"provider", "model", "status"}, // status: success|error|rate_limited
	)

	LLMLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "erpinsight_llm_latency_seconds",
			Help:    "Language model latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "model"},
	)

	LLMTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpinsight_llm_tokens_total",
			Help: "Tokens consumed by language model calls",
		},
		[]string{"provider", "model", "type"}, // type: input|output
	)

	// Accounting data source metrics
	DataFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpinsight_data_fetches_total",
			Help: "Accounting data fetches by data type",
		},
		[]string{"data_type", "status"}, // status: success|error
	)

	DataFetchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "erpinsight_data_fetch_latency_seconds",
			Help:    "Accounting data fetch latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"data_type"},
	)

	DataCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpinsight_data_cache_lookups_total",
			Help: "Accounting query cache lookups",
		},
		[]string{"result"}, // hit|miss|error
	)

	DataRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpinsight_data_retries_total",
			Help: "Retried accounting API requests",
		},
		[]string{"reason"}, // rate_limited|server_error
	)

	// Knowledge base metrics
	RAGOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpinsight_rag_operations_total",
			Help: "Knowledge base operations",
		},
		[]string{"operation", "status"}, // operation: index|search|clear
	)

	RAGLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "erpinsight_rag_latency_seconds",
			Help:    "Knowledge base operation latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	// Circuit breakers
	BreakerStateChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpinsight_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"breaker", "to"},
	)

	// Event publishing
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpinsight_events_published_total",
			Help: "Events published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// HTTP metrics
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpinsight_http_requests_total",
			Help: "HTTP API requests",
		},
		[]string{"route", "code"},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(RoutingDecisions)
	prometheus.MustRegister(AgentFallbacks)

	prometheus.MustRegister(AgentRuns)
	prometheus.MustRegister(AgentLatency)
	prometheus.MustRegister(AgentCacheEvents)
	prometheus.MustRegister(MultiAgentQueries)
	prometheus.MustRegister(SynthesisFallbacks)

	prometheus.MustRegister(LLMCalls)
	prometheus.MustRegister(LLMLatency)
	prometheus.MustRegister(LLMTokens)

	prometheus.MustRegister(DataFetches)
	prometheus.MustRegister(DataFetchLatency)
	prometheus.MustRegister(DataCacheLookups)
	prometheus.MustRegister(DataRetries)

	prometheus.MustRegister(RAGOperations)
	prometheus.MustRegister(RAGLatency)

	prometheus.MustRegister(BreakerStateChanges)
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(HTTPRequests)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordAgentRun records one specialist pipeline execution. errTag is the
// AgentResult error tag ("" on success).
func RecordAgentRun(agent string, latency time.Duration, errTag string) {
	st := "success"
	switch {
	case errTag == "no_access":
		st = "no_access"
	case errTag != "":
		st = "error"
	}

	AgentRuns.WithLabelValues(agent, st).Inc()
	AgentLatency.WithLabelValues(agent).Observe(latency.Seconds())
}

// RecordLLMCall records a language model completion
func RecordLLMCall(provider, model string, latency time.Duration, inputTokens, outputTokens int, err error) {
	LLMCalls.WithLabelValues(provider, model, status(err)).Inc()
	LLMLatency.WithLabelValues(provider, model).Observe(latency.Seconds())

	if inputTokens > 0 {
		LLMTokens.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		LLMTokens.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordDataFetch records one accounting data fetch
func RecordDataFetch(dataType string, latency time.Duration, err error) {
	DataFetches.WithLabelValues(dataType, status(err)).Inc()
	DataFetchLatency.WithLabelValues(dataType).Observe(latency.Seconds())
}

// RecordRAGOperation records a knowledge base operation
func RecordRAGOperation(operation string, latency time.Duration, err error) {
	RAGOperations.WithLabelValues(operation, status(err)).Inc()
	RAGLatency.WithLabelValues(operation).Observe(latency.Seconds())
}
