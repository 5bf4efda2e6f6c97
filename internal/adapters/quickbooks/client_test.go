package quickbooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpinsight/internal/adapters/config"
	"erpinsight/internal/domain/accounting"
	"erpinsight/pkg/errors"
)

var creds = accounting.Credentials{AccessToken: "tok", RealmID: "123"}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.QuickBooksConfig{
		BaseURL:           srv.URL,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		MaxRetries:        2,
		MinorVersion:      "65",
	}
	opts = append([]Option{WithBackoffMin(time.Millisecond)}, opts...)
	return NewClient(cfg, opts...)
}

// memCache is an in-memory Cache for tests
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

var _ Cache = (*memCache)(nil)

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (m *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	return nil
}

func (m *memCache) InvalidateRealm(_ context.Context, realmID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if strings.HasPrefix(k, "qb:"+realmID+":") {
			delete(m.data, k)
		}
	}
	return nil
}

func TestFetchQueriesEntity(t *testing.T) {
	var gotQuery, gotMinor, gotAuth, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("query")
		gotMinor = r.URL.Query().Get("minorversion")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"QueryResponse":{"Invoice":[{"Id":"1","TotalAmt":100.5},{"Id":"2","TotalAmt":20}]}}`))
	})

	since := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	records, err := c.Fetch(context.Background(), accounting.FetchRequest{
		Credentials: creds,
		DataType:    accounting.DataInvoices,
		Since:       since,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 100.5, records[0].Float("TotalAmt"))

	assert.Equal(t, "/v3/company/123/query", gotPath)
	assert.Equal(t, "SELECT * FROM Invoice WHERE TxnDate >= '2024-01-15' MAXRESULTS 1000", gotQuery)
	assert.Equal(t, "65", gotMinor)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestFetchExpensesUsesPurchase(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		_, _ = w.Write([]byte(`{"QueryResponse":{"Purchase":[{"TotalAmt":"12.00"}]}}`))
	})

	records, err := c.Fetch(context.Background(), accounting.FetchRequest{Credentials: creds, DataType: accounting.DataExpenses})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, "SELECT * FROM Purchase MAXRESULTS 1000", gotQuery)
}

func TestFetchAccountTypeFilter(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		_, _ = w.Write([]byte(`{"QueryResponse":{}}`))
	})

	records, err := c.QueryAccounts(context.Background(), creds, "Expense")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NotNil(t, records)
	assert.Equal(t, "SELECT * FROM Account WHERE AccountType = 'Expense' MAXRESULTS 1000", gotQuery)
}

func TestFetchWithoutCredentials(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := c.Fetch(context.Background(), accounting.FetchRequest{DataType: accounting.DataAccounts})
	assert.ErrorIs(t, err, errors.ErrNoAccess)
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, errors.ErrUnauthorized},
		{"bad request", http.StatusBadRequest, errors.ErrInvalidInput},
		{"not found", http.StatusNotFound, errors.ErrExternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := c.Fetch(context.Background(), accounting.FetchRequest{Credentials: creds, DataType: accounting.DataItems})
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrFetch)
			assert.ErrorIs(t, err, tt.want)

			var fe *errors.FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, "items", fe.DataType)
		})
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"QueryResponse":{"Item":[{"Name":"Widget"}]}}`))
	})

	records, err := c.Fetch(context.Background(), accounting.FetchRequest{Credentials: creds, DataType: accounting.DataItems})
	require.NoError(t, err)
	assert.Equal(t, "Widget", records[0].String("Name"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Fetch(context.Background(), accounting.FetchRequest{Credentials: creds, DataType: accounting.DataItems})
	assert.ErrorIs(t, err, errors.ErrRateLimitExceeded)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUnauthorizedDoesNotTripBreaker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	for i := 0; i < 10; i++ {
		_, _ = c.Fetch(context.Background(), accounting.FetchRequest{Credentials: creds, DataType: accounting.DataItems})
	}
	assert.NoError(t, c.Health(context.Background()))
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c.maxRetries = 0

	for i := 0; i < 5; i++ {
		_, _ = c.Fetch(context.Background(), accounting.FetchRequest{Credentials: creds, DataType: accounting.DataItems})
	}
	assert.ErrorIs(t, c.Health(context.Background()), errors.ErrUnavailable)

	_, err := c.Fetch(context.Background(), accounting.FetchRequest{Credentials: creds, DataType: accounting.DataItems})
	assert.ErrorIs(t, err, errors.ErrUnavailable)
	assert.ErrorIs(t, err, errors.ErrFetch)
}

func TestQueryCache(t *testing.T) {
	var calls atomic.Int32
	cache := newMemCache()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"QueryResponse":{"Customer":[{"DisplayName":"Acme","Balance":10}]}}`))
	}, WithCache(cache, time.Minute))

	req := accounting.FetchRequest{Credentials: creds, DataType: accounting.DataCustomers}
	first, err := c.Fetch(context.Background(), req)
	require.NoError(t, err)
	second, err := c.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, first[0].String("DisplayName"), second[0].String("DisplayName"))

	require.NoError(t, cache.InvalidateRealm(context.Background(), "123"))
	_, err = c.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestProfitAndLossFlattensRows(t *testing.T) {
	var gotPath, gotStart string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotStart = r.URL.Query().Get("start_date")
		_, _ = w.Write([]byte(`{
			"Rows": {"Row": [
				{"type": "Section", "group": "Income",
				 "Header": {"ColData": [{"value": "Income"}, {"value": ""}]},
				 "Rows": {"Row": [{"type": "Data", "ColData": [{"value": "Sales"}, {"value": "1500.00"}]}]},
				 "Summary": {"ColData": [{"value": "Total Income"}, {"value": "1500.00"}]}},
				{"type": "Section", "group": "NetIncome",
				 "Summary": {"ColData": [{"value": "Net Income"}, {"value": "900.00"}]}}
			]}
		}`))
	})

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records, err := c.Fetch(context.Background(), accounting.FetchRequest{
		Credentials: creds,
		DataType:    accounting.DataProfitLoss,
		Since:       since,
	})
	require.NoError(t, err)
	assert.Equal(t, "/v3/company/123/reports/ProfitAndLoss", gotPath)
	assert.Equal(t, "2024-01-01", gotStart)

	require.Len(t, records, 3)
	assert.Equal(t, "Sales", records[0].String("Label"))
	assert.Equal(t, "Income", records[0].String("Section"))
	assert.False(t, records[0].Bool("Summary", true))
	assert.Equal(t, "Total Income", records[1].String("Label"))
	assert.True(t, records[1].Bool("Summary", false))
	assert.Equal(t, 900.0, records[2].Float("Amount"))
}

func TestCompanyInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/company/123/companyinfo/123", r.URL.Path)
		_, _ = w.Write([]byte(`{"CompanyInfo":{"CompanyName":"Acme Corp"}}`))
	})

	info, err := c.CompanyInfo(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", info.String("CompanyName"))
	assert.True(t, c.ValidateToken(context.Background(), creds))
}

func TestFetchHonorsCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx, accounting.FetchRequest{Credentials: creds, DataType: accounting.DataItems})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrFetch)
}

func TestBuildQuery(t *testing.T) {
	assert.Equal(t, "SELECT * FROM Vendor MAXRESULTS 1000", buildQuery("Vendor", nil))
	assert.Equal(t,
		"SELECT * FROM Account WHERE AccountType = 'O\\'Brien' AND TxnDate >= '2024-01-01' MAXRESULTS 1000",
		buildQuery("Account", []string{"AccountType = '" + escapeLiteral("O'Brien") + "'", "TxnDate >= '2024-01-01'"}),
	)
}
