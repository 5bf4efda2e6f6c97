package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"erpinsight/internal/adapters/ai"
	"erpinsight/internal/domain/accounting"
	"erpinsight/internal/metrics"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
	"erpinsight/pkg/templates"
)

const (
	synthesisSystemPrompt  = "You are an executive assistant synthesizing multi-agent analysis results."
	synthesisTemperature   = 0.3
	maxCombinedRecommended = 10
)

// Synthesizer merges specialist results into one executive answer
type Synthesizer struct {
	llm       LLMClient
	maxTokens int
	log       *logger.Logger
}

// NewSynthesizer creates a synthesizer. A nil llm always falls back to
// the concatenated narratives.
func NewSynthesizer(llm LLMClient, maxTokens int) *Synthesizer {
	return &Synthesizer{
		llm:       llm,
		maxTokens: maxTokens,
		log:       logger.Get().With("component", "synthesizer"),
	}
}

// Synthesize combines results in order. Failed results are kept under
// MultiAgentResults but contribute nothing else.
func (s *Synthesizer) Synthesize(ctx context.Context, results []NamedResult, query string) (out *AgentResult) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Wrap(errors.ErrSynthesis, fmt.Sprint(r))
			s.log.ErrorWithContext(ctx, err, map[string]string{"stage": "synthesis"})
			metrics.SynthesisFallbacks.WithLabelValues("first_clean").Inc()
			out = firstClean(results, err)
		}
	}()

	var (
		sections        []string
		agentsUsed      = make([]string, 0, len(results))
		combined        = map[string]any{}
		recommendations = []string{}
		charts          = []Chart{}
		data            = accounting.Bundle{}
		byAgent         = make(map[string]*AgentResult, len(results))
		failed          []*AgentResult
	)

	for _, nr := range results {
		agentsUsed = append(agentsUsed, nr.AgentID)
		byAgent[nr.AgentID] = nr.Result
		if nr.Result == nil || nr.Result.Failed() {
			if nr.Result != nil {
				failed = append(failed, nr.Result)
			}
			continue
		}

		title := templates.Title(nr.AgentID)
		if nr.Result.Response != "" {
			sections = append(sections, fmt.Sprintf("**%s Analysis:**\n%s", title, nr.Result.Response))
		}
		if len(nr.Result.Insights) > 0 {
			combined[nr.AgentID+"_insights"] = nr.Result.Insights
		}
		for _, rec := range nr.Result.Recommendations {
			recommendations = append(recommendations, fmt.Sprintf("[%s] %s", title, rec))
		}
		charts = append(charts, nr.Result.Charts...)
		for k, v := range nr.Result.Data {
			data[k] = v
		}
	}

	if len(recommendations) > maxCombinedRecommended {
		recommendations = recommendations[:maxCombinedRecommended]
	}

	result := &AgentResult{
		AgentID:         "multi_agent",
		Charts:          charts,
		Data:            data,
		Recommendations: recommendations,
		Insights: map[string]any{
			"analysis_type":     "multi_agent_synthesis",
			"agents_used":       agentsUsed,
			"combined_insights": combined,
		},
		ProcessedAt:       time.Now().UTC(),
		MultiAgentResults: byAgent,
	}

	if len(sections) == 0 {
		result.Response, result.Error = failedNarrative(failed)
		return result
	}

	raw := strings.Join(sections, "\n\n")
	summary, err := s.summarize(ctx, query, agentsUsed, raw)
	if err != nil {
		s.log.Warnw("executive summary failed, using combined analyses", "error", err)
		metrics.SynthesisFallbacks.WithLabelValues("raw_concatenation").Inc()
		summary = raw
	}
	result.Response = summary
	return result
}

func (s *Synthesizer) summarize(ctx context.Context, query string, agents []string, combined string) (string, error) {
	if s.llm == nil {
		return "", errors.Wrap(errors.ErrSynthesis, "no language model")
	}

	prompt, err := synthesisPrompt(query, agents, combined)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrSynthesis, err)
	}

	text, err := s.llm.Complete(ctx, ai.CompletionRequest{
		System:      synthesisSystemPrompt,
		User:        prompt,
		Temperature: synthesisTemperature,
		MaxTokens:   s.maxTokens,
		AgentID:     "synthesizer",
		Purpose:     "multi_agent_synthesis",
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrSynthesis, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.Wrap(errors.ErrSynthesis, "empty summary")
	}
	return text, nil
}

func firstClean(results []NamedResult, err error) *AgentResult {
	for _, nr := range results {
		if nr.Result != nil && !nr.Result.Failed() {
			return nr.Result
		}
	}
	return errorResult("multi_agent", "Error synthesizing multi-agent results", err.Error())
}

// failedNarrative joins the user-facing messages of failed agents. The
// first failure's tag becomes the combined error.
func failedNarrative(failed []*AgentResult) (string, string) {
	if len(failed) == 0 {
		return "Error synthesizing multi-agent results", errors.ErrSynthesis.Error()
	}
	seen := map[string]struct{}{}
	var parts []string
	for _, r := range failed {
		if _, ok := seen[r.Response]; ok || r.Response == "" {
			continue
		}
		seen[r.Response] = struct{}{}
		parts = append(parts, r.Response)
	}
	if len(parts) == 0 {
		parts = append(parts, "Error synthesizing multi-agent results")
	}
	return strings.Join(parts, "\n\n"), failed[0].Error
}
