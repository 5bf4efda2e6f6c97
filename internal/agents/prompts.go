package agents

import (
	"time"

	"erpinsight/pkg/templates"
)

const (
	systemTemplate    = "agents/system"
	analysisTemplate  = "prompts/analysis_user"
	synthesisTemplate = "prompts/synthesis_user"
	forecastSystem    = "prompts/forecast_system"
	forecastUser      = "prompts/forecast_user"
)

// SystemPrompt renders the system prompt of a domain. prompt is the
// descriptor's own instructions, appended when set.
func SystemPrompt(d *Domain, prompt string) (string, error) {
	data := map[string]any{"Title": "", "Focus": []string(nil), "Directive": "", "Prompt": prompt}
	if d != nil {
		data["Title"] = d.Title
		data["Focus"] = d.Focus
		data["Directive"] = d.Directive
	}
	return templates.Get().Render(systemTemplate, data)
}

func analysisPrompt(query, context string, qc QueryContext) (string, error) {
	company := qc.CompanyName
	if company == "" {
		company = "Unknown"
	}
	ts := qc.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return templates.Get().Render(analysisTemplate, map[string]any{
		"Query":     query,
		"Context":   context,
		"Company":   company,
		"Timestamp": ts.Format(time.RFC3339),
	})
}

func synthesisPrompt(query string, agents []string, combined string) (string, error) {
	return templates.Get().Render(synthesisTemplate, map[string]any{
		"Query":    query,
		"Agents":   agents,
		"Combined": combined,
	})
}
