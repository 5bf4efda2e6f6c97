package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpinsight/internal/adapters/ai"
	"erpinsight/internal/adapters/config"
	"erpinsight/internal/domain/accounting"
	"erpinsight/internal/domain/rag"
	"erpinsight/internal/testsupport"
	"erpinsight/pkg/errors"
)

func newTestSpecialist(t *testing.T, id string, source DataSource, llm LLMClient, kb KnowledgeBase) *Specialist {
	t.Helper()
	desc, ok := DefaultRegistry().Get(id)
	require.True(t, ok)
	s, err := NewSpecialist(desc, builtinDomains()[id], SpecialistDeps{
		Source:        source,
		LLM:           llm,
		KnowledgeBase: kb,
		Config:        config.AgentsConfig{FetchParallelism: 2, FetchTimeout: time.Second, LLMMaxTokens: 4000},
	})
	require.NoError(t, err)
	return s
}

func testQueryContext() QueryContext {
	return QueryContext{
		Credentials: testsupport.TestCredentials(),
		CompanyName: "Acme Holdings",
		UserID:      "user-1",
		QueryID:     "q-1",
		Timestamp:   time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewSpecialistNeedsDomain(t *testing.T) {
	_, err := NewSpecialist(AgentDescriptor{ID: "x"}, nil, SpecialistDeps{})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestProcessQueryWithoutCredentials(t *testing.T) {
	source := testsupport.NewFakeSource()
	llm := &mockLLM{}
	s := newTestSpecialist(t, "sales", source, llm, nil)

	qc := testQueryContext()
	qc.Credentials = accounting.Credentials{AccessToken: "token"}
	res := s.ProcessQuery(context.Background(), "How are sales?", qc)

	assert.Equal(t, ErrorTagNoAccess, res.Error)
	assert.Equal(t, salesDomain().NoAccessMessage, res.Response)
	assert.Empty(t, res.Charts)
	assert.Empty(t, res.Data)
	assert.Empty(t, source.Calls())
	assert.Empty(t, llm.calls())
	assert.Empty(t, s.ConversationLog())
}

func TestProcessQueryFinance(t *testing.T) {
	source := testsupport.NewFakeSource()
	llm := &mockLLM{}
	s := newTestSpecialist(t, "finance", source, llm, nil)

	res := s.ProcessQuery(context.Background(), "What is my revenue trend?", testQueryContext())
	require.False(t, res.Failed(), res.Error)

	assert.Equal(t, "finance", res.AgentID)
	assert.Equal(t, "Revenue is trending up with one open invoice.", res.Response)
	assert.ElementsMatch(t, []accounting.DataType{accounting.DataAccounts, accounting.DataInvoices}, source.FetchedTypes())
	assert.Equal(t, []accounting.DataType{accounting.DataAccounts, accounting.DataInvoices}, res.Data.Keys())
	assert.Equal(t, []string{"Account Balances by Type", "Monthly Revenue Trend"}, chartTitles(res.Charts))
	assert.Equal(t, []string{"Follow up on the Globex invoice", "Consider a cash reserve target"}, res.Recommendations)

	kpis := res.Insights["metrics"].(map[string]float64)
	assert.Equal(t, 96000.0, kpis["net_income"])
	assert.Equal(t, []string{"accounts", "invoices"}, res.Insights["data_sources"])
	assert.Equal(t, "finance_analysis", res.Insights["analysis_type"])
	assert.Equal(t, []string{"Collections are healthy"}, res.Insights["key_insights"])
	assert.Equal(t, FormatStructured, res.Insights["llm_response_format"])
	assert.Equal(t, false, res.Insights["rag_context_used"])

	calls := llm.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 0.3, calls[0].Temperature)
	assert.Equal(t, 4000, calls[0].MaxTokens)
	assert.Equal(t, "finance", calls[0].AgentID)
	assert.Contains(t, calls[0].System, "You are Claude, a specialized Finance AI Agent")
	assert.Contains(t, calls[0].System, "Cash flow analysis and forecasting")
	assert.Contains(t, calls[0].User, "Query: What is my revenue trend?")
	assert.Contains(t, calls[0].User, "Company: Acme Holdings")
	assert.Contains(t, calls[0].User, "=== INVOICES (3 invoices) ===")

	log := s.ConversationLog()
	require.Len(t, log, 1)
	assert.Equal(t, "What is my revenue trend?", log[0].Query)
	assert.Equal(t, []string{"accounts", "invoices"}, log[0].DataSources)
}

func TestProcessQueryDateWindows(t *testing.T) {
	source := testsupport.NewFakeSource()
	s := newTestSpecialist(t, "finance", source, &mockLLM{}, nil)

	s.ProcessQuery(context.Background(), "income and invoice forecast", testQueryContext())

	now := time.Now().UTC()
	for _, req := range source.Calls() {
		switch req.DataType {
		case accounting.DataInvoices:
			assert.WithinDuration(t, now.Add(-DefaultLookback), req.Since, time.Minute)
		case accounting.DataProfitLoss:
			assert.Equal(t, time.January, req.Since.Month())
			assert.Equal(t, 1, req.Since.Day())
			assert.WithinDuration(t, now, req.Until, time.Minute)
		case accounting.DataAccounts:
			assert.True(t, req.Since.IsZero())
		}
	}
}

func TestProcessQueryFetchFailureIsPartial(t *testing.T) {
	source := testsupport.NewFakeSource()
	source.Errs[accounting.DataInvoices] = errors.ErrUnavailable
	s := newTestSpecialist(t, "finance", source, &mockLLM{}, nil)

	res := s.ProcessQuery(context.Background(), "What is my revenue trend?", testQueryContext())
	require.False(t, res.Failed())
	assert.Equal(t, []accounting.DataType{accounting.DataAccounts}, res.Data.Keys())
	assert.Equal(t, []string{"Account Balances by Type"}, chartTitles(res.Charts))
}

func TestProcessQueryOperationsFiltersAccounts(t *testing.T) {
	s := newTestSpecialist(t, "operations", testsupport.NewFakeSource(), &mockLLM{}, nil)

	res := s.ProcessQuery(context.Background(), "How is our budget?", testQueryContext())
	require.False(t, res.Failed())
	assert.Len(t, res.Data[accounting.DataAccounts], 2)
	assert.Len(t, res.Data[accounting.DataExpenses], 3)
}

func TestProcessQueryLLMError(t *testing.T) {
	llm := &mockLLM{completeFunc: func(context.Context, ai.CompletionRequest) (string, error) {
		return "", errors.NewLLMError("mock", errors.ErrRateLimitExceeded)
	}}
	s := newTestSpecialist(t, "sales", testsupport.NewFakeSource(), llm, nil)

	res := s.ProcessQuery(context.Background(), "How are sales?", testQueryContext())
	assert.True(t, res.Failed())
	assert.Equal(t, salesDomain().ErrorMessage, res.Response)
	assert.Empty(t, res.Charts)
	assert.Empty(t, s.ConversationLog())
}

func TestProcessQueryEmptyCompletion(t *testing.T) {
	llm := &mockLLM{completeFunc: func(context.Context, ai.CompletionRequest) (string, error) { return "  ", nil }}
	s := newTestSpecialist(t, "sales", testsupport.NewFakeSource(), llm, nil)

	res := s.ProcessQuery(context.Background(), "How are sales?", testQueryContext())
	assert.True(t, res.Failed())
	assert.NotEmpty(t, res.Response)
}

func TestProcessQueryRawReply(t *testing.T) {
	llm := &mockLLM{completeFunc: func(context.Context, ai.CompletionRequest) (string, error) {
		return "Sales grew modestly.\nYou should increase prices on consulting.\nBoost repeat orders from Acme Corp.", nil
	}}
	s := newTestSpecialist(t, "sales", testsupport.NewFakeSource(), llm, nil)

	res := s.ProcessQuery(context.Background(), "How are sales?", testQueryContext())
	require.False(t, res.Failed())
	assert.Contains(t, res.Response, "Sales grew modestly.")
	assert.Equal(t, FormatRaw, res.Insights["llm_response_format"])
	assert.Equal(t, []string{
		"You should increase prices on consulting.",
		"Boost repeat orders from Acme Corp.",
	}, res.Recommendations)
}

func TestProcessQueryRecoversPanic(t *testing.T) {
	d := financeDomain()
	d.charts = func(accounting.Bundle) []Chart { panic("bad chart") }
	s := newSpecialist(AgentDescriptor{ID: "finance"}, d, SpecialistDeps{Source: testsupport.NewFakeSource(), LLM: &mockLLM{}})

	res := s.ProcessQuery(context.Background(), "revenue", testQueryContext())
	assert.True(t, res.Failed())
	assert.Contains(t, res.Error, "bad chart")
	assert.Equal(t, d.ErrorMessage, res.Response)
	assert.Empty(t, res.Data)
}

func TestProcessQueryKnowledgeBase(t *testing.T) {
	kb := &mockKB{results: []rag.SearchResult{
		{UserID: "user-1", Tag: "sales_invoices", Content: "Invoice 1001 Acme Corp", Score: 0.8},
		{UserID: "someone-else", Tag: "sales_invoices", Content: "leaked", Score: 0.9},
	}}
	llm := &mockLLM{}
	s := newTestSpecialist(t, "sales", testsupport.NewFakeSource(), llm, kb)

	res := s.ProcessQuery(context.Background(), "How are sales?", testQueryContext())
	require.False(t, res.Failed())

	assert.ElementsMatch(t, []string{"user-1/sales_invoices", "user-1/sales_customers"}, kb.indexedTags())
	assert.Equal(t, true, res.Insights["rag_context_used"])

	user := llm.calls()[0].User
	assert.Contains(t, user, "Invoice 1001 Acme Corp")
	assert.NotContains(t, user, "leaked")
}

func TestProcessQueryKnowledgeBaseNeedsUser(t *testing.T) {
	kb := &mockKB{}
	s := newTestSpecialist(t, "sales", testsupport.NewFakeSource(), &mockLLM{}, kb)

	qc := testQueryContext()
	qc.UserID = ""
	s.ProcessQuery(context.Background(), "How are sales?", qc)
	assert.Empty(t, kb.indexedTags())
}

func TestProcessQueryIndexFailureIsNotFatal(t *testing.T) {
	kb := &mockKB{indexErr: errors.ErrUnavailable}
	s := newTestSpecialist(t, "operations", testsupport.NewFakeSource(), &mockLLM{}, kb)

	res := s.ProcessQuery(context.Background(), "vendor spending", testQueryContext())
	assert.False(t, res.Failed())
	assert.NotEmpty(t, kb.indexedTags())
}
