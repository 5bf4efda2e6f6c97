package agents

import (
	"context"
	"sort"
	"time"
)

// Component health states
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusUnknown   = "unknown"
	StatusAvailable = "available"
)

// ComponentHealth is the probe outcome of one dependency
type ComponentHealth struct {
	Status       string        `json:"status"`
	ResponseTime time.Duration `json:"response_time_ns,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// ServicesStatus reports the external services the agents depend on
type ServicesStatus struct {
	LLM        ComponentHealth `json:"llm"`
	RAG        ComponentHealth `json:"rag"`
	DataSource ComponentHealth `json:"data_source"`
}

// HealthProbe reports service health. The health monitor implements it.
type HealthProbe interface {
	Status(ctx context.Context) ServicesStatus
}

// AgentStatus is the operator view of the factory
type AgentStatus struct {
	ActiveAgents    []string       `json:"active_agents"`
	AvailableAgents []string       `json:"available_agents"`
	ServicesStatus  ServicesStatus `json:"services_status"`
	Timestamp       time.Time      `json:"timestamp"`
}

// Status lists cached and available agents along with service health
func (f *Factory) Status(ctx context.Context) AgentStatus {
	f.mu.RLock()
	active := make([]string, 0, len(f.cache))
	for id := range f.cache {
		active = append(active, id)
	}
	f.mu.RUnlock()
	sort.Strings(active)

	available := make([]string, 0, len(f.domains))
	for _, id := range f.registry.IDs() {
		if _, ok := f.domains[id]; ok {
			available = append(available, id)
		}
	}

	services := ServicesStatus{
		LLM:        ComponentHealth{Status: StatusUnknown},
		RAG:        ComponentHealth{Status: StatusUnknown},
		DataSource: ComponentHealth{Status: StatusUnknown},
	}
	if f.health != nil {
		services = f.health.Status(ctx)
	}

	return AgentStatus{
		ActiveAgents:    active,
		AvailableAgents: available,
		ServicesStatus:  services,
		Timestamp:       time.Now().UTC(),
	}
}
