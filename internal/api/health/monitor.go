package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"erpinsight/internal/agents"
	"erpinsight/internal/domain/rag"
	"erpinsight/pkg/logger"
)

const defaultProbeTimeout = 10 * time.Second

// LLMChecker is satisfied by *ai.Client
type LLMChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatsReader is satisfied by *rag.Service
type StatsReader interface {
	Stats(ctx context.Context) (rag.Stats, error)
}

// SourceChecker is satisfied by *quickbooks.Client
type SourceChecker interface {
	Health(ctx context.Context) error
}

// Monitor probes the services the agents depend on. Nil dependencies
// report as unknown.
type Monitor struct {
	llm     LLMChecker
	rag     StatsReader
	source  SourceChecker
	timeout time.Duration
	log     *logger.Logger
}

var _ agents.HealthProbe = (*Monitor)(nil)

// NewMonitor creates a monitor. A non-positive timeout uses 10s per probe.
func NewMonitor(llm LLMChecker, kb StatsReader, source SourceChecker, timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Monitor{
		llm:     llm,
		rag:     kb,
		source:  source,
		timeout: timeout,
		log:     logger.Get().With("component", "health_monitor"),
	}
}

// Status runs all probes concurrently. It never fails.
func (m *Monitor) Status(ctx context.Context) agents.ServicesStatus {
	var out agents.ServicesStatus

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.LLM = m.probeLLM(gctx)
		return nil
	})
	g.Go(func() error {
		out.RAG = m.probeRAG(gctx)
		return nil
	})
	g.Go(func() error {
		out.DataSource = m.probeSource(gctx)
		return nil
	})
	_ = g.Wait()

	return out
}

func (m *Monitor) probeLLM(ctx context.Context) agents.ComponentHealth {
	if m.llm == nil {
		return agents.ComponentHealth{Status: agents.StatusUnknown}
	}
	return m.probe(ctx, "llm", m.llm.HealthCheck)
}

func (m *Monitor) probeRAG(ctx context.Context) agents.ComponentHealth {
	if m.rag == nil {
		return agents.ComponentHealth{Status: agents.StatusUnknown}
	}
	return m.probe(ctx, "rag", func(ctx context.Context) error {
		_, err := m.rag.Stats(ctx)
		return err
	})
}

// probeSource reports "available" rather than "healthy": without a user's
// credentials the data source can only be checked for local failure state.
func (m *Monitor) probeSource(ctx context.Context) agents.ComponentHealth {
	if m.source == nil {
		return agents.ComponentHealth{Status: agents.StatusUnknown}
	}
	h := m.probe(ctx, "data_source", m.source.Health)
	if h.Status == agents.StatusHealthy {
		h.Status = agents.StatusAvailable
	}
	return h
}

func (m *Monitor) probe(ctx context.Context, name string, check func(context.Context) error) agents.ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	err := check(ctx)
	elapsed := time.Since(start)

	if err != nil {
		m.log.Warnw("Health probe failed", "probe", name, "error", err, "elapsed", elapsed)
		return agents.ComponentHealth{
			Status:       agents.StatusUnhealthy,
			ResponseTime: elapsed,
			Error:        err.Error(),
		}
	}
	return agents.ComponentHealth{Status: agents.StatusHealthy, ResponseTime: elapsed}
}
