package agents

import (
	"strings"
	"unicode"
)

// DefaultRecommendThreshold is the confidence above which an agent is
// recommended for a query
const DefaultRecommendThreshold = 0.3

// AgentDescriptor is the static identity of an agent
type AgentDescriptor struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	Version             string   `json:"version"`
	Capabilities        []string `json:"capabilities"`
	Tools               []string `json:"tools"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	Temperature         float64  `json:"temperature"`
	SystemPrompt        string   `json:"-"`
	Keywords            []string `json:"keywords"`
	ResponseFormat      string   `json:"response_format"`
	Icon                string   `json:"icon"`
	Color               string   `json:"color"`
}

// IsZero reports whether d is the empty descriptor returned for unknown ids
func (d AgentDescriptor) IsZero() bool {
	return d.ID == ""
}

func (d AgentDescriptor) clone() AgentDescriptor {
	d.Capabilities = append([]string(nil), d.Capabilities...)
	d.Tools = append([]string(nil), d.Tools...)
	d.Keywords = append([]string(nil), d.Keywords...)
	return d
}

// Validation is the relevance of one agent to one query
type Validation struct {
	Valid       bool    `json:"valid"`
	Confidence  float64 `json:"confidence"`
	Recommended bool    `json:"recommended"`
	AgentName   string  `json:"agent_name,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

// Registry is the immutable catalogue of agent descriptors
type Registry struct {
	order     []string
	byID      map[string]AgentDescriptor
	threshold float64
}

// NewRegistry builds a registry preserving the declared order. A later
// descriptor with a duplicate id replaces the earlier one in place.
func NewRegistry(descs ...AgentDescriptor) *Registry {
	r := &Registry{byID: make(map[string]AgentDescriptor, len(descs)), threshold: DefaultRecommendThreshold}
	for _, d := range descs {
		if _, exists := r.byID[d.ID]; !exists {
			r.order = append(r.order, d.ID)
		}
		r.byID[d.ID] = d.clone()
	}
	return r
}

// DefaultRegistry returns the four built-in agents: finance, sales,
// operations and executive
func DefaultRegistry() *Registry {
	return NewRegistry(builtinDescriptors()...)
}

// WithThreshold returns a copy of r using t as the recommendation threshold
func (r *Registry) WithThreshold(t float64) *Registry {
	cp := *r
	if t > 0 {
		cp.threshold = t
	}
	return &cp
}

// Get returns the descriptor for id, or the zero descriptor and false
func (r *Registry) Get(id string) (AgentDescriptor, bool) {
	d, ok := r.byID[id]
	if !ok {
		return AgentDescriptor{}, false
	}
	return d.clone(), true
}

// All returns every descriptor in declared order
func (r *Registry) All() []AgentDescriptor {
	out := make([]AgentDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].clone())
	}
	return out
}

// IDs returns agent ids in declared order
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// CapabilitiesOf returns the capability phrases of id, or nil
func (r *Registry) CapabilitiesOf(id string) []string {
	d, ok := r.Get(id)
	if !ok {
		return nil
	}
	return d.Capabilities
}

// ToolsOf returns the tool names of id, or nil
func (r *Registry) ToolsOf(id string) []string {
	d, ok := r.Get(id)
	if !ok {
		return nil
	}
	return d.Tools
}

// Validate scores how well query matches the capabilities of id.
//
// Each distinct capability word found as a substring of the lower-cased
// query counts one hit, and each distinct adjacent word pair found as a
// phrase counts one more. The hit count is divided by the number of
// capability phrases and clamped to 1.
//
// The pair hits go beyond a plain distinct-word count. With words alone
// "what is my cash flow this month" scores 2/8 for finance and is not
// recommended; the "cash flow" pair lifts it to 3/8.
func (r *Registry) Validate(id, query string) Validation {
	d, ok := r.byID[id]
	if !ok {
		return Validation{Valid: false, Reason: "unknown agent"}
	}
	if len(d.Capabilities) == 0 {
		return Validation{Valid: true, AgentName: d.Name}
	}

	q := strings.ToLower(query)
	seen := make(map[string]struct{})
	hits := 0
	for _, capability := range d.Capabilities {
		words := capabilityWords(capability)
		for i, w := range words {
			if countOnce(seen, w) && strings.Contains(q, w) {
				hits++
			}
			if i == 0 {
				continue
			}
			phrase := words[i-1] + " " + w
			if countOnce(seen, phrase) && strings.Contains(q, phrase) {
				hits++
			}
		}
	}

	confidence := float64(hits) / float64(len(d.Capabilities))
	if confidence > 1 {
		confidence = 1
	}

	return Validation{
		Valid:       true,
		Confidence:  confidence,
		Recommended: confidence > r.threshold,
		AgentName:   d.Name,
	}
}

func countOnce(seen map[string]struct{}, key string) bool {
	if _, ok := seen[key]; ok {
		return false
	}
	seen[key] = struct{}{}
	return true
}

func capabilityWords(phrase string) []string {
	return strings.FieldsFunc(strings.ToLower(phrase), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
