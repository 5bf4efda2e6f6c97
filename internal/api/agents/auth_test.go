package agents

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpinsight/internal/adapters/ai"
	"erpinsight/internal/domain/ai_usage"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

type echoProvider struct{}

func (echoProvider) Name() string { return "echo" }

func (echoProvider) GetModel(context.Context, string) (ai.ModelInfo, error) {
	return ai.ModelInfo{}, errors.ErrNotFound
}

func (echoProvider) ListModels(context.Context) ([]ai.ModelInfo, error) { return nil, nil }

func (echoProvider) Chat(context.Context, ai.ChatRequest) (*ai.ChatResponse, error) {
	return &ai.ChatResponse{Content: "ok"}, nil
}

type usageRows struct {
	mu   sync.Mutex
	rows []*ai_usage.UsageLog
}

func (u *usageRows) Store(_ context.Context, log *ai_usage.UsageLog) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rows = append(u.rows, log)
	return nil
}

func TestHeaderIdentityReachesUsageRows(t *testing.T) {
	rows := &usageRows{}
	llm := ai.NewClient(echoProvider{}, ai.ClientConfig{Model: "echo-1"}, nil, rows)

	var seen Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
		_, err := llm.Complete(r.Context(), ai.CompletionRequest{User: "hi", AgentID: "finance"})
		require.NoError(t, err)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.Header.Set(HeaderUserID, "u1")
	req.Header.Set(HeaderRealmID, "realm-7")
	NewAuthMiddleware(nil, logger.NewNop()).Handler(next).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "u1", seen.UserID)
	require.Len(t, rows.rows, 1)
	assert.Equal(t, "u1", rows.rows[0].UserID)
	assert.Equal(t, "realm-7", rows.rows[0].RealmID)
}

func TestAnonymousHeaderModeLeavesUserUnset(t *testing.T) {
	var user string
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		user = errors.UserIDFromContext(r.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	NewAuthMiddleware(nil, logger.NewNop()).Handler(next).ServeHTTP(httptest.NewRecorder(), req)
	assert.Empty(t, user)
}
