package agents

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"erpinsight/internal/adapters/ai"
	"erpinsight/internal/adapters/config"
	"erpinsight/internal/domain/accounting"
	"erpinsight/internal/domain/rag"
	"erpinsight/internal/metrics"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

// Specialist runs the fetch, retrieve, analyze pipeline of one domain
type Specialist struct {
	descriptor AgentDescriptor
	domain     *Domain
	system     string

	source DataSource
	llm    LLMClient
	kb     KnowledgeBase
	cfg    config.AgentsConfig
	log    *logger.Logger

	mu      sync.Mutex
	history []ConversationEntry
}

// SpecialistDeps are the collaborators of a Specialist. KnowledgeBase is
// optional.
type SpecialistDeps struct {
	Source        DataSource
	LLM           LLMClient
	KnowledgeBase KnowledgeBase
	Config        config.AgentsConfig
}

// NewSpecialist builds the pipeline for domain d under descriptor desc
func NewSpecialist(desc AgentDescriptor, d *Domain, deps SpecialistDeps) (*Specialist, error) {
	if d == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "specialist needs a domain")
	}
	return newSpecialist(desc, d, deps), nil
}

func newSpecialist(desc AgentDescriptor, d *Domain, deps SpecialistDeps) *Specialist {
	id := desc.ID
	if id == "" {
		id = d.ID
	}
	log := logger.Get().With("component", "specialist", "agent", id)

	system, err := SystemPrompt(d, desc.SystemPrompt)
	if err != nil {
		log.Warnw("system prompt template failed, using descriptor prompt", "error", err)
		system = desc.SystemPrompt
	}

	return &Specialist{
		descriptor: desc,
		domain:     d,
		system:     system,
		source:     deps.Source,
		llm:        deps.LLM,
		kb:         deps.KnowledgeBase,
		cfg:        deps.Config,
		log:        log,
	}
}

// ID is the agent id results are attributed to
func (s *Specialist) ID() string {
	if s.descriptor.ID != "" {
		return s.descriptor.ID
	}
	return s.domain.ID
}

// Descriptor returns a copy of the agent's descriptor
func (s *Specialist) Descriptor() AgentDescriptor {
	return s.descriptor.clone()
}

// Domain returns the pipeline configuration
func (s *Specialist) Domain() *Domain {
	return s.domain
}

// ConversationLog returns a copy of the queries answered so far
func (s *Specialist) ConversationLog() []ConversationEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConversationEntry, len(s.history))
	copy(out, s.history)
	return out
}

// ProcessQuery answers query for the company in qc. It never returns an
// error: failures become a result with Error set and a user-facing
// Response.
func (s *Specialist) ProcessQuery(ctx context.Context, query string, qc QueryContext) (result *AgentResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			s.log.ErrorWithContext(ctx, err, map[string]string{"agent": s.ID(), "stage": "pipeline"})
			s.log.Debugw("panic stack", "stack", string(debug.Stack()))
			result = errorResult(s.ID(), s.domain.ErrorMessage, err.Error())
		}
		metrics.RecordAgentRun(s.ID(), time.Since(start), result.Error)
	}()

	if !qc.Credentials.Valid() {
		s.log.Infow("query without accounting access", "query_id", qc.QueryID)
		return errorResult(s.ID(), s.domain.NoAccessMessage, ErrorTagNoAccess)
	}

	requirements := s.domain.Requirements(query)
	s.log.Debugw("query requirements", "requirements", requirements, "query_id", qc.QueryID)

	bundle := s.fetch(ctx, qc.Credentials, requirements)
	snippets := s.retrieve(ctx, query, qc.UserID, bundle)

	dataContext := s.domain.FormatContext(bundle, snippets)
	charts := s.domain.BuildCharts(bundle)

	reply, err := s.analyze(ctx, query, dataContext, qc)
	if err != nil {
		s.log.ErrorWithContext(ctx, err, map[string]string{"agent": s.ID(), "stage": "llm"})
		return errorResult(s.ID(), s.domain.ErrorMessage, err.Error())
	}

	narrative := reply.Narrative()
	kpis := s.domain.ComputeMetrics(bundle)
	sources := bundle.KeyStrings()

	s.mu.Lock()
	s.history = append(s.history, ConversationEntry{
		Query:       query,
		Response:    narrative,
		Timestamp:   time.Now().UTC(),
		DataSources: sources,
	})
	s.mu.Unlock()

	insights := map[string]any{
		"metrics":             kpis,
		"data_sources":        sources,
		"analysis_type":       s.domain.AnalysisType,
		"key_insights":        []string{},
		"next_steps":          []string{},
		"rag_context_used":    len(snippets) > 0,
		"llm_response_format": reply.Format(),
	}
	if st := reply.Structured; st != nil {
		if st.KeyInsights != nil {
			insights["key_insights"] = st.KeyInsights
		}
		if st.NextSteps != nil {
			insights["next_steps"] = st.NextSteps
		}
		if len(st.Metrics) > 0 {
			insights["llm_metrics"] = st.Metrics
		}
	}

	return &AgentResult{
		AgentID:         s.ID(),
		Response:        narrative,
		Charts:          charts,
		Data:            bundle,
		Insights:        insights,
		Recommendations: reply.Recommendations(s.domain.ExtraMarkers),
		ProcessedAt:     time.Now().UTC(),
	}
}

// fetch loads every required data type. Failed types are logged and left
// out of the bundle.
func (s *Specialist) fetch(ctx context.Context, creds accounting.Credentials, requirements []accounting.DataType) accounting.Bundle {
	bundle := make(accounting.Bundle, len(requirements))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.cfg.FetchParallelism))

	for _, t := range requirements {
		g.Go(func() error {
			records, err := s.fetchOne(gctx, creds, t)
			if err != nil {
				s.log.Warnw("data fetch failed", "data_type", t, "error", errors.NewFetchError(string(t), err))
				return nil
			}
			mu.Lock()
			bundle[t] = records
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return bundle
}

func (s *Specialist) fetchOne(ctx context.Context, creds accounting.Credentials, t accounting.DataType) ([]accounting.Record, error) {
	if s.source == nil {
		return nil, errors.ErrUnavailable
	}
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	now := time.Now().UTC()
	req := accounting.FetchRequest{Credentials: creds, DataType: t}
	switch t {
	case accounting.DataInvoices, accounting.DataBills, accounting.DataPayments, accounting.DataExpenses:
		req.Since = now.Add(-s.domain.lookback())
	case accounting.DataProfitLoss:
		req.Since = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		req.Until = now
	}

	records, err := s.source.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if t == accounting.DataAccounts {
		records = s.domain.FilterAccounts(records)
	}
	if records == nil {
		records = []accounting.Record{}
	}
	return records, nil
}

// retrieve indexes the fetched data for the user and searches it for the
// query. Failures only cost the retrieved context.
func (s *Specialist) retrieve(ctx context.Context, query, userID string, bundle accounting.Bundle) []rag.SearchResult {
	if s.kb == nil || userID == "" {
		return nil
	}

	for _, t := range bundle.Keys() {
		if len(bundle[t]) == 0 {
			continue
		}
		if _, err := s.kb.Index(ctx, userID, s.domain.ragTag(t), t, bundle[t]); err != nil {
			s.log.Warnw("knowledge base index failed", "data_type", t, "error", err)
		}
	}

	found, err := s.kb.Search(ctx, query, userID, maxSnippets)
	if err != nil {
		s.log.Warnw("knowledge base search failed", "error", err)
		return nil
	}

	own := found[:0:0]
	for _, r := range found {
		if r.UserID == userID {
			own = append(own, r)
		}
	}
	return own
}

func (s *Specialist) analyze(ctx context.Context, query, dataContext string, qc QueryContext) (LLMReply, error) {
	if s.llm == nil {
		return LLMReply{}, errors.NewLLMError("none", errors.ErrUnavailable)
	}

	user, err := analysisPrompt(query, dataContext, qc)
	if err != nil {
		return LLMReply{}, err
	}

	if s.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.LLMTimeout)
		defer cancel()
	}

	text, err := s.llm.Complete(ctx, ai.CompletionRequest{
		System:      s.system,
		User:        user,
		Temperature: s.descriptor.Temperature,
		MaxTokens:   s.cfg.LLMMaxTokens,
		AgentID:     s.ID(),
		Purpose:     s.domain.AnalysisType,
		QueryID:     qc.QueryID,
	})
	if err != nil {
		return LLMReply{}, err
	}
	if strings.TrimSpace(text) == "" {
		return LLMReply{}, errors.NewLLMError(s.llm.Provider(), errors.New("empty completion"))
	}
	return ParseReply(text), nil
}
