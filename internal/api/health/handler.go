package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"erpinsight/internal/agents"
	"erpinsight/pkg/logger"
)

// Infrastructure holds the optional backing stores. Nil members are not
// checked.
type Infrastructure struct {
	Postgres   *sqlx.DB
	ClickHouse driver.Conn
	Redis      *redis.Client
}

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	monitor     agents.HealthProbe
	infra       Infrastructure
	startTime   time.Time
	serviceName string
	version     string
}

// New creates a new health check handler
func New(log *logger.Logger, monitor agents.HealthProbe, infra Infrastructure, serviceName, version string) *Handler {
	return &Handler{
		log:         log,
		monitor:     monitor,
		infra:       infra,
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                            `json:"status"` // "healthy", "degraded", "unhealthy"
	Service   string                            `json:"service"`
	Version   string                            `json:"version"`
	Uptime    string                            `json:"uptime"`
	Timestamp string                            `json:"timestamp"`
	Services  *agents.ServicesStatus            `json:"services,omitempty"`
	Checks    map[string]agents.ComponentHealth `json:"checks"`
}

// HandleLiveness returns 200 OK if service is running
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReadiness fails when any configured store is unreachable. External
// services are not part of readiness.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := h.checkInfrastructure(ctx)
	status := h.status(checks, nil)

	statusCode := http.StatusOK
	for _, c := range checks {
		if c.Status != agents.StatusHealthy {
			status.Status = agents.StatusUnhealthy
			statusCode = http.StatusServiceUnavailable
			h.log.Warnw("Readiness check failed", "checks", checks)
			break
		}
	}

	writeJSON(w, statusCode, status)
}

// HandleHealth returns stores and external services together. Degraded
// still answers 200.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	checks := h.checkInfrastructure(ctx)

	var services *agents.ServicesStatus
	if h.monitor != nil {
		s := h.monitor.Status(ctx)
		services = &s
		checks["llm"] = s.LLM
		checks["rag"] = s.RAG
		checks["data_source"] = s.DataSource
	}

	status := h.status(checks, services)

	healthy, known := 0, 0
	for _, c := range checks {
		switch c.Status {
		case agents.StatusHealthy, agents.StatusAvailable:
			healthy++
			known++
		case agents.StatusUnhealthy:
			known++
		}
	}

	statusCode := http.StatusOK
	switch {
	case known > 0 && healthy == 0:
		status.Status = agents.StatusUnhealthy
		statusCode = http.StatusServiceUnavailable
	case healthy < known:
		status.Status = "degraded"
	}

	writeJSON(w, statusCode, status)
}

func (h *Handler) status(checks map[string]agents.ComponentHealth, services *agents.ServicesStatus) HealthStatus {
	return HealthStatus{
		Status:    agents.StatusHealthy,
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().Format(time.RFC3339),
		Services:  services,
		Checks:    checks,
	}
}

func (h *Handler) checkInfrastructure(ctx context.Context) map[string]agents.ComponentHealth {
	checks := make(map[string]agents.ComponentHealth)
	if h.infra.Postgres != nil {
		checks["postgres"] = h.ping(ctx, "postgres", h.infra.Postgres.PingContext)
	}
	if h.infra.ClickHouse != nil {
		checks["clickhouse"] = h.ping(ctx, "clickhouse", h.infra.ClickHouse.Ping)
	}
	if h.infra.Redis != nil {
		checks["redis"] = h.ping(ctx, "redis", func(ctx context.Context) error {
			return h.infra.Redis.Ping(ctx).Err()
		})
	}
	return checks
}

func (h *Handler) ping(ctx context.Context, name string, ping func(context.Context) error) agents.ComponentHealth {
	start := time.Now()
	err := ping(ctx)
	elapsed := time.Since(start)

	if err != nil {
		h.log.Errorw("Health check failed", "component", name, "error", err, "elapsed", elapsed)
		return agents.ComponentHealth{
			Status:       agents.StatusUnhealthy,
			ResponseTime: elapsed,
			Error:        err.Error(),
		}
	}

	return agents.ComponentHealth{Status: agents.StatusHealthy, ResponseTime: elapsed}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
