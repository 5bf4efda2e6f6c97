package agents

import (
	"encoding/json"
	"strings"
)

const (
	maxRecommendations   = 5
	minRecommendationLen = 20
)

var baseMarkers = []string{"recommend", "suggest", "should", "consider", "improve", "optimize"}

// Reply formats reported in insights
const (
	FormatStructured = "structured_json"
	FormatRaw        = "text"
)

// Structured is the JSON reply the system prompt asks the model for
type Structured struct {
	Analysis        string         `json:"analysis"`
	KeyInsights     []string       `json:"key_insights"`
	Recommendations []string       `json:"recommendations"`
	Metrics         map[string]any `json:"metrics"`
	NextSteps       []string       `json:"next_steps"`
}

// LLMReply is either a Structured reply or raw text
type LLMReply struct {
	Structured *Structured
	Raw        string
}

// ParseReply decodes text as a Structured reply. Text that is not a JSON
// object with a non-empty analysis is kept raw. A single surrounding
// markdown code fence is tolerated.
func ParseReply(text string) LLMReply {
	body := stripFence(strings.TrimSpace(text))
	if strings.HasPrefix(body, "{") {
		var s Structured
		if err := json.Unmarshal([]byte(body), &s); err == nil && strings.TrimSpace(s.Analysis) != "" {
			return LLMReply{Structured: &s}
		}
	}
	return LLMReply{Raw: text}
}

// Narrative is the text shown to the user
func (r LLMReply) Narrative() string {
	if r.Structured != nil {
		return r.Structured.Analysis
	}
	return r.Raw
}

// Format names the reply branch
func (r LLMReply) Format() string {
	if r.Structured != nil {
		return FormatStructured
	}
	return FormatRaw
}

// Recommendations uses the structured list when present and falls back
// to marker extraction over the raw text
func (r LLMReply) Recommendations(extraMarkers []string) []string {
	if r.Structured != nil && len(r.Structured.Recommendations) > 0 {
		out := make([]string, 0, maxRecommendations)
		for _, rec := range r.Structured.Recommendations {
			if rec = strings.TrimSpace(rec); rec == "" {
				continue
			}
			out = append(out, rec)
			if len(out) == maxRecommendations {
				break
			}
		}
		return out
	}
	return ExtractRecommendations(r.Narrative(), extraMarkers)
}

// ExtractRecommendations keeps the trimmed lines of text that contain a
// recommendation marker and are longer than 20 characters, in order, up
// to five
func ExtractRecommendations(text string, extraMarkers []string) []string {
	out := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) <= minRecommendationLen {
			continue
		}
		lower := strings.ToLower(line)
		if !containsAny(lower, baseMarkers) && !containsAny(lower, extraMarkers) {
			continue
		}
		out = append(out, line)
		if len(out) == maxRecommendations {
			break
		}
	}
	return out
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSpace(s)
}
