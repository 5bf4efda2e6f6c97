package agents

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpinsight/internal/adapters/ai"
	"erpinsight/internal/adapters/config"
	"erpinsight/internal/domain/accounting"
	"erpinsight/internal/events"
	"erpinsight/internal/testsupport"
	"erpinsight/pkg/errors"
)

// captureSender records published events
type captureSender struct {
	mu     sync.Mutex
	topics []string
	events []interface{}
}

var _ events.Sender = (*captureSender)(nil)

func (c *captureSender) Publish(_ context.Context, topic, _ string, event interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	c.events = append(c.events, event)
	return nil
}

func (c *captureSender) published() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]interface{}(nil), c.events...)
}

type stubProbe struct{ status ServicesStatus }

func (p stubProbe) Status(context.Context) ServicesStatus { return p.status }

func newTestFactory(t *testing.T, llm LLMClient, mutate func(*FactoryDeps)) (*Factory, *testsupport.FakeSource) {
	t.Helper()
	source := testsupport.NewFakeSource()
	deps := FactoryDeps{
		DataSource: source,
		LLM:        llm,
		Config: config.AgentsConfig{
			MultiAgentParallelism: 1,
			FetchParallelism:      1,
			FetchTimeout:          time.Second,
			LLMMaxTokens:          4000,
			RecommendThreshold:    0.3,
		},
	}
	if mutate != nil {
		mutate(&deps)
	}
	return NewFactory(deps), source
}

func TestCreateAgentCaches(t *testing.T) {
	f, _ := newTestFactory(t, &mockLLM{}, nil)

	a := f.CreateAgent("sales", WithName("Custom Sales"))
	b := f.CreateAgent("sales", WithName("Ignored"))
	assert.Same(t, a, b)
	assert.Equal(t, "Custom Sales", b.Descriptor().Name)
	assert.Equal(t, "sales", a.ID())
}

func TestCreateAgentFallsBackToFinance(t *testing.T) {
	f, _ := newTestFactory(t, &mockLLM{}, nil)

	finance := f.CreateAgent("finance")
	assert.Same(t, finance, f.CreateAgent("executive"))
	assert.Same(t, finance, f.CreateAgent("marketing"))
	assert.Equal(t, []string{"finance"}, f.Status(context.Background()).ActiveAgents)
}

func TestCreateAgentConcurrent(t *testing.T) {
	f, _ := newTestFactory(t, &mockLLM{}, nil)

	const n = 16
	got := make([]*Specialist, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = f.CreateAgent("operations")
		}(i)
	}
	wg.Wait()

	for _, s := range got {
		assert.Same(t, got[0], s)
	}
}

func TestClearCache(t *testing.T) {
	f, _ := newTestFactory(t, &mockLLM{}, nil)

	before := f.CreateAgent("sales", WithTemperature(0.4))
	f.ClearCache()
	assert.Empty(t, f.Status(context.Background()).ActiveAgents)

	after := f.CreateAgent("sales")
	assert.NotSame(t, before, after)
	assert.Equal(t, 0.4, before.Descriptor().Temperature)
}

func TestBestAgentID(t *testing.T) {
	f, _ := newTestFactory(t, &mockLLM{}, nil)

	assert.Equal(t, "finance", f.BestAgentID("What is my cash flow this month"))
	assert.Equal(t, "sales", f.BestAgentID("customer churn and retention analysis"))
	assert.Equal(t, "finance", f.BestAgentID("Show me customer churn"))
	assert.Equal(t, "sales", f.GetBestAgent("customer churn and retention analysis").ID())
}

func TestProcessQueryPublishesEvent(t *testing.T) {
	sender := &captureSender{}
	f, _ := newTestFactory(t, &mockLLM{}, func(d *FactoryDeps) {
		d.Events = events.NewPublisher(sender, "")
	})

	res := f.ProcessQuery(context.Background(), "customer churn and retention analysis", testQueryContext())
	require.False(t, res.Failed())
	assert.Equal(t, "sales", res.AgentID)

	published := sender.published()
	require.Len(t, published, 1)
	ev := published[0].(events.QueryCompleted)
	assert.Equal(t, "sales", ev.AgentID)
	assert.Equal(t, "user-1", ev.UserID)
	assert.Equal(t, "q-1", ev.QueryID)
	assert.Equal(t, "test_realm", ev.RealmID)
	assert.False(t, ev.MultiAgent)
	assert.Equal(t, []string{"invoices", "items", "customers"}, ev.DataSources)
}

func TestProcessMultiAgentQuerySingleAgent(t *testing.T) {
	llm := &mockLLM{}
	f, _ := newTestFactory(t, llm, nil)

	res := f.ProcessMultiAgentQuery(context.Background(), "What is my customer revenue?", testQueryContext())
	assert.Equal(t, "sales", res.AgentID)
	assert.Nil(t, res.MultiAgentResults)
	assert.Len(t, llm.calls(), 1)
}

func TestProcessMultiAgentQuerySynthesizes(t *testing.T) {
	for _, parallelism := range []int{1, 3} {
		t.Run("parallelism", func(t *testing.T) {
			llm := &mockLLM{completeFunc: func(_ context.Context, req ai.CompletionRequest) (string, error) {
				if req.AgentID == "synthesizer" {
					return "Executive summary of all three areas.", nil
				}
				return structuredReply, nil
			}}
			sender := &captureSender{}
			f, _ := newTestFactory(t, llm, func(d *FactoryDeps) {
				d.Config.MultiAgentParallelism = parallelism
				d.Events = events.NewPublisher(sender, "")
			})

			res := f.ProcessMultiAgentQuery(context.Background(), "Give me a complete overview", testQueryContext())
			require.False(t, res.Failed(), res.Error)

			assert.Equal(t, "Executive summary of all three areas.", res.Response)
			assert.Len(t, res.MultiAgentResults, 3)
			assert.Equal(t, []string{"finance", "sales", "operations"}, res.Insights["agents_used"])
			assert.Equal(t, "multi_agent_synthesis", res.Insights["analysis_type"])
			assert.Len(t, llm.calls(), 4)

			require.Len(t, res.Recommendations, 6)
			assert.True(t, strings.HasPrefix(res.Recommendations[0], "[Finance] "))
			assert.True(t, strings.HasPrefix(res.Recommendations[2], "[Sales] "))
			assert.True(t, strings.HasPrefix(res.Recommendations[4], "[Operations] "))

			published := sender.published()
			require.Len(t, published, 1)
			ev := published[0].(events.QueryCompleted)
			assert.True(t, ev.MultiAgent)
			assert.Equal(t, []string{"finance", "sales", "operations"}, ev.AgentsUsed)
		})
	}
}

func TestProcessMultiAgentQueryKeepsFailedAgents(t *testing.T) {
	domains := builtinDomains()
	domains["operations"].charts = func(accounting.Bundle) []Chart { panic("broken") }

	f, _ := newTestFactory(t, &mockLLM{}, func(d *FactoryDeps) { d.Domains = domains })

	res := f.ProcessMultiAgentQuery(context.Background(), "summary please", testQueryContext())
	require.False(t, res.Failed())
	require.Contains(t, res.MultiAgentResults, "operations")
	assert.True(t, res.MultiAgentResults["operations"].Failed())

	combined := res.Insights["combined_insights"].(map[string]any)
	assert.Contains(t, combined, "finance_insights")
	assert.Contains(t, combined, "sales_insights")
	assert.NotContains(t, combined, "operations_insights")
}

func TestProcessMultiAgentQueryWithoutCredentials(t *testing.T) {
	llm := &mockLLM{}
	f, source := newTestFactory(t, llm, nil)

	qc := testQueryContext()
	qc.Credentials = accounting.Credentials{}
	res := f.ProcessMultiAgentQuery(context.Background(), "overview", qc)

	assert.Equal(t, ErrorTagNoAccess, res.Error)
	assert.Contains(t, res.Response, "Please connect to QuickBooks first.")
	assert.Empty(t, source.Calls())
	assert.Empty(t, llm.calls())
}

func TestStatus(t *testing.T) {
	probe := stubProbe{status: ServicesStatus{
		LLM:        ComponentHealth{Status: StatusHealthy},
		RAG:        ComponentHealth{Status: StatusHealthy},
		DataSource: ComponentHealth{Status: StatusAvailable},
	}}
	f, _ := newTestFactory(t, &mockLLM{}, func(d *FactoryDeps) { d.Health = probe })
	f.CreateAgent("sales")
	f.CreateAgent("finance")

	st := f.Status(context.Background())
	assert.Equal(t, []string{"finance", "sales"}, st.ActiveAgents)
	assert.Equal(t, []string{"finance", "sales", "operations"}, st.AvailableAgents)
	assert.Equal(t, StatusHealthy, st.ServicesStatus.LLM.Status)
	assert.False(t, st.Timestamp.IsZero())
}

func TestStatusWithoutProbe(t *testing.T) {
	f, _ := newTestFactory(t, &mockLLM{}, nil)
	assert.Equal(t, StatusUnknown, f.Status(context.Background()).ServicesStatus.RAG.Status)
}

func TestForecastRevenue(t *testing.T) {
	llm := &mockLLM{completeFunc: func(context.Context, ai.CompletionRequest) (string, error) {
		return `{"forecast_values":[{"period":"2024-04","value":5200,"confidence":0.8}],"reasoning":"steady","assumptions":["no churn"],"confidence_level":0.8,"risk_factors":[],"recommendations":["collect faster"]}`, nil
	}}
	f, source := newTestFactory(t, llm, nil)

	fc, err := f.Forecast(context.Background(), testQueryContext(), "revenue", 3)
	require.NoError(t, err)
	assert.Equal(t, "revenue", fc.Type)
	assert.Equal(t, 3, fc.Periods)
	require.Len(t, fc.ForecastValues, 1)
	assert.Equal(t, 5200.0, fc.ForecastValues[0].Value)
	assert.Equal(t, 0.8, fc.ConfidenceLevel)

	calls := source.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, accounting.DataInvoices, calls[0].DataType)
	assert.WithinDuration(t, time.Now().Add(-730*24*time.Hour), calls[0].Since, time.Minute)

	req := llm.calls()[0]
	assert.Equal(t, 0.2, req.Temperature)
	assert.Contains(t, req.User, "generate a 3-period forecast")
	assert.Contains(t, req.User, "- 2024-02: $7,500.00")
}

func TestForecastAccountsRawReply(t *testing.T) {
	llm := &mockLLM{completeFunc: func(context.Context, ai.CompletionRequest) (string, error) {
		return "Balances look stable.", nil
	}}
	f, source := newTestFactory(t, llm, nil)

	fc, err := f.Forecast(context.Background(), testQueryContext(), "expenses", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultForecastPeriods, fc.Periods)
	assert.Equal(t, "Balances look stable.", fc.Reasoning)
	assert.Equal(t, 0.5, fc.ConfidenceLevel)
	assert.Equal(t, accounting.DataAccounts, source.Calls()[0].DataType)
	assert.Contains(t, llm.calls()[0].User, "- Bank: 2 accounts, Total: $40,000.00")
}

func TestForecastErrors(t *testing.T) {
	f, _ := newTestFactory(t, &mockLLM{}, nil)

	qc := testQueryContext()
	qc.Credentials = accounting.Credentials{}
	_, err := f.Forecast(context.Background(), qc, "revenue", 12)
	assert.ErrorIs(t, err, errors.ErrNoAccess)

	_, err = f.Forecast(context.Background(), testQueryContext(), "revenue", 100)
	var verr *errors.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.Forecast(context.Background(), testQueryContext(), "revenue", maxForecastPeriods+1)
	assert.ErrorAs(t, err, &verr)
	fc, err := f.Forecast(context.Background(), testQueryContext(), "revenue", maxForecastPeriods)
	require.NoError(t, err)
	assert.Equal(t, maxForecastPeriods, fc.Periods)

	failing, source := newTestFactory(t, &mockLLM{}, nil)
	source.Errs[accounting.DataInvoices] = errors.ErrUnavailable
	_, err = failing.Forecast(context.Background(), testQueryContext(), "revenue", 12)
	assert.ErrorIs(t, err, errors.ErrFetch)
}

func TestHistoricalSummaryEmpty(t *testing.T) {
	assert.Equal(t, "No historical revenue data available", HistoricalSummary("revenue", nil))
}
