package agents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpinsight/internal/adapters/ai"
	agentcore "erpinsight/internal/agents"
	"erpinsight/internal/domain/rag"
	"erpinsight/internal/events"
	"erpinsight/internal/testsupport"
	"erpinsight/pkg/auth"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

const reply = `{"analysis": "All good.", "recommendations": ["Keep invoicing promptly"]}`

type stubLLM struct{}

func (stubLLM) Complete(context.Context, ai.CompletionRequest) (string, error) { return reply, nil }
func (stubLLM) HealthCheck(context.Context) error                            { return nil }
func (stubLLM) Provider() string                                             { return "stub" }

type stubKB struct {
	cleared []string
	err     error
}

func (s *stubKB) ClearUserData(_ context.Context, userID string) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.cleared = append(s.cleared, userID)
	return 4, nil
}

func (s *stubKB) Stats(context.Context) (rag.Stats, error) {
	return rag.Stats{TotalDocuments: 4, UniqueUsers: 1, DataTypes: []string{"sales_invoices"}, Backend: "memory"}, nil
}

type recordingSender struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingSender) Publish(_ context.Context, topic, _ string, _ interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return nil
}

type fixture struct {
	mux    *http.ServeMux
	source *testsupport.FakeSource
	kb     *stubKB
	sender *recordingSender
}

func newFixture(t *testing.T, validator TokenValidator) *fixture {
	t.Helper()
	f := &fixture{source: testsupport.NewFakeSource(), kb: &stubKB{}, sender: &recordingSender{}}
	publisher := events.NewPublisher(f.sender, "")
	factory := agentcore.NewFactory(agentcore.FactoryDeps{
		DataSource: f.source,
		LLM:        stubLLM{},
		Events:     publisher,
	})

	f.mux = http.NewServeMux()
	NewHandler(factory, f.kb, publisher, logger.NewNop()).Register(f.mux, NewAuthMiddleware(validator, logger.NewNop()))
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func qbHeaders(user string) map[string]string {
	return map[string]string{
		HeaderUserID:      user,
		HeaderAccessToken: "token",
		HeaderRealmID:     "test_realm",
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestListAgents(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/agents", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Agents []agentcore.AgentDescriptor `json:"agents"`
		Count  int                         `json:"count"`
	}](t, rec)
	assert.Equal(t, 4, body.Count)
	assert.Equal(t, "finance", body.Agents[0].ID)
}

func TestRoute(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/agents/route", `{"query":"show me customer sales"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[routeResponse](t, rec)
	assert.Equal(t, "sales", body.Decision.AgentID)
	assert.Contains(t, body.Validations, "operations")
}

func TestRouteRejectsEmptyQuery(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/agents/route", `{"query":"  "}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/agents/query", `{"query":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "malformed JSON body")
}

func TestQueryUsesHeaderCredentials(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/agents/query", `{"query":"customer churn and retention analysis"}`, qbHeaders("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[agentcore.AgentResult](t, rec)
	assert.Equal(t, "sales", res.AgentID)
	assert.Empty(t, res.Error)
	assert.Equal(t, "All good.", res.Response)
	require.NotEmpty(t, f.source.Calls())
	assert.Equal(t, "test_realm", f.source.Calls()[0].Credentials.RealmID)
	assert.Contains(t, f.sender.topics, "agent.query.completed")
}

func TestQueryLowConfidenceFallsBackToFinance(t *testing.T) {
	f := newFixture(t, nil)
	// routes to sales on keywords, but sales capability overlap is only 2/8
	rec := f.do(t, http.MethodPost, "/api/agents/query", `{"query":"How are customer sales?"}`, qbHeaders("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[agentcore.AgentResult](t, rec)
	assert.Equal(t, "finance", res.AgentID)
	assert.Empty(t, res.Error)
}

func TestQueryBodyCredentialsAndExplicitAgent(t *testing.T) {
	f := newFixture(t, nil)
	body := `{"query":"anything","agent_id":"operations","credentials":{"access_token":"t","realm_id":"r"}}`
	rec := f.do(t, http.MethodPost, "/api/agents/query", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[agentcore.AgentResult](t, rec)
	assert.Equal(t, "operations", res.AgentID)
	assert.Equal(t, "r", f.source.Calls()[0].Credentials.RealmID)
}

func TestQueryWithoutCredentialsReportsNoAccess(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/agents/query", `{"query":"revenue"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[agentcore.AgentResult](t, rec)
	assert.Equal(t, agentcore.ErrorTagNoAccess, res.Error)
	assert.Empty(t, f.source.Calls())
}

func TestMultiQuery(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/agents/multi-query", `{"query":"give me a complete overview"}`, qbHeaders("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[agentcore.AgentResult](t, rec)
	assert.Equal(t, "multi_agent", res.AgentID)
	assert.Len(t, res.MultiAgentResults, 3)
}

func TestForecast(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/agents/forecast", `{"forecast_type":"revenue","periods":6}`, qbHeaders("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	fc := decode[agentcore.Forecast](t, rec)
	assert.Equal(t, "revenue", fc.Type)
	assert.Equal(t, 6, fc.Periods)
}

func TestForecastErrors(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/agents/forecast", `{"periods":6}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/agents/forecast", `{"periods":99}`, qbHeaders("user-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusAndClearCache(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/api/agents/query", `{"query":"customer churn and retention analysis"}`, qbHeaders("user-1"))

	status := decode[agentcore.AgentStatus](t, f.do(t, http.MethodGet, "/api/agents/status", "", nil))
	assert.Equal(t, []string{"sales"}, status.ActiveAgents)

	rec := f.do(t, http.MethodPost, "/api/agents/cache/clear", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	status = decode[agentcore.AgentStatus](t, f.do(t, http.MethodGet, "/api/agents/status", "", nil))
	assert.Empty(t, status.ActiveAgents)
}

func TestClearUserData(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodDelete, "/api/rag/users/user-1", "", map[string]string{HeaderUserID: "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]interface{}](t, rec)
	assert.Equal(t, float64(4), body["deleted_documents"])
	assert.Equal(t, []string{"user-1"}, f.kb.cleared)
	assert.Contains(t, f.sender.topics, "rag.user.cleared")
}

func TestClearUserDataOfAnotherUser(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodDelete, "/api/rag/users/user-2", "", map[string]string{HeaderUserID: "user-1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, f.kb.cleared)
}

func TestClearUserDataFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.kb.err = errors.ErrUnavailable
	rec := f.do(t, http.MethodDelete, "/api/rag/users/user-1", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRAGStats(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/rag/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decode[rag.Stats](t, rec)
	assert.Equal(t, 4, stats.TotalDocuments)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/agents/query", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestJWTAuth(t *testing.T) {
	jwt := auth.NewJWTService("test-secret-key-min-32-characters-long", "erpinsight", time.Hour)
	f := newFixture(t, jwt)

	rec := f.do(t, http.MethodGet, "/api/agents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/agents", "", map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := jwt.GenerateToken("user-9", "test_realm", "Acme Holdings")
	require.NoError(t, err)
	bearer := map[string]string{"Authorization": "Bearer " + token, HeaderAccessToken: "token"}

	rec = f.do(t, http.MethodPost, "/api/agents/query", `{"query":"sales"}`, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test_realm", f.source.Calls()[0].Credentials.RealmID)

	rec = f.do(t, http.MethodDelete, "/api/rag/users/user-9", "", bearer)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTRealmMismatch(t *testing.T) {
	jwt := auth.NewJWTService("test-secret-key-min-32-characters-long", "erpinsight", time.Hour)
	f := newFixture(t, jwt)

	token, err := jwt.GenerateToken("user-9", "realm-a", "")
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/agents/query", `{"query":"sales"}`, map[string]string{
		"Authorization":   "Bearer " + token,
		HeaderAccessToken: "token",
		HeaderRealmID:     "realm-b",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, f.source.Calls())
}
