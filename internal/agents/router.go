package agents

import (
	"strconv"
	"strings"

	"erpinsight/internal/metrics"
)

var broadScopeWords = []string{"overview", "summary", "all", "complete", "comprehensive"}

// CoreAgentIDs are the agents run for broad-scope multi-agent queries
var CoreAgentIDs = []string{"finance", "sales", "operations"}

// RoutingDecision explains how a query was routed
type RoutingDecision struct {
	AgentID     string         `json:"agent_id"`
	Scores      map[string]int `json:"scores"`
	Confidence  float64        `json:"confidence"`
	Recommended bool           `json:"recommended"`
}

// Router maps queries to agent ids by keyword substring counts. It holds
// no mutable state.
type Router struct {
	registry *Registry
}

// NewRouter creates a router over the registry's keyword sets
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Route returns the agent whose keyword set has the strictly highest match
// count. Ties go to the earliest declared agent and a query matching
// nothing goes to the fallback agent.
func (r *Router) Route(query string) string {
	id, _ := r.score(query)
	return id
}

func (r *Router) score(query string) (string, map[string]int) {
	q := strings.ToLower(query)
	scores := make(map[string]int)

	best, bestScore := FallbackAgentID, 0
	for _, d := range r.registry.All() {
		n := 0
		for _, kw := range d.Keywords {
			if strings.Contains(q, kw) {
				n++
			}
		}
		scores[d.ID] = n
		if n > bestScore {
			best, bestScore = d.ID, n
		}
	}
	return best, scores
}

// Decide routes query and validates the chosen agent against it
func (r *Router) Decide(query string) RoutingDecision {
	id, scores := r.score(query)
	v := r.registry.Validate(id, query)

	metrics.RoutingDecisions.WithLabelValues(id, strconv.FormatBool(v.Recommended)).Inc()

	return RoutingDecision{
		AgentID:     id,
		Scores:      scores,
		Confidence:  v.Confidence,
		Recommended: v.Recommended,
	}
}

// SelectAgents picks the agents for a multi-agent query. Broad-scope
// queries get the three core agents. Otherwise the routed agent runs,
// joined by sales when customers are mentioned and by operations when
// costs are mentioned.
func (r *Router) SelectAgents(query string) []string {
	q := strings.ToLower(query)
	for _, w := range broadScopeWords {
		if strings.Contains(q, w) {
			return append([]string(nil), CoreAgentIDs...)
		}
	}

	primary := r.Route(query)
	selected := []string{primary}
	if strings.Contains(q, "customer") && primary != "sales" {
		selected = append(selected, "sales")
	}
	if strings.Contains(q, "cost") && primary != "operations" {
		selected = append(selected, "operations")
	}
	return selected
}
