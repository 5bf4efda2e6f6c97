package embeddings

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpinsight/pkg/errors"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestLocalProviderDeterministicAndNormalized(t *testing.T) {
	p := NewLocalProvider(128)
	ctx := context.Background()

	a, err := p.GenerateEmbedding(ctx, "Checking account balance 25000")
	require.NoError(t, err)
	b, err := p.GenerateEmbedding(ctx, "checking ACCOUNT balance, 25000!")
	require.NoError(t, err)

	assert.Len(t, a, 128)
	assert.Equal(t, a, b, "case and punctuation are ignored")
	assert.InDelta(t, 1.0, cosine(a, a), 1e-6)
	assert.Equal(t, "local-hash-128", p.Name())
}

func TestLocalProviderSimilarity(t *testing.T) {
	p := NewLocalProvider(0)
	ctx := context.Background()
	assert.Equal(t, defaultLocalDimensions, p.Dimensions())

	query, _ := p.GenerateEmbedding(ctx, "invoice from Acme Corp amount")
	related, _ := p.GenerateEmbedding(ctx, "Invoice 1001 customer Acme Corp amount 5000")
	unrelated, _ := p.GenerateEmbedding(ctx, "vendor Landlord LLC rent bill due")

	assert.Greater(t, cosine(query, related), cosine(query, unrelated))
}

func TestLocalProviderRejectsEmpty(t *testing.T) {
	_, err := NewLocalProvider(8).GenerateEmbedding(context.Background(), "   ")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = NewLocalProvider(8).GenerateBatchEmbeddings(context.Background(), nil)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestLocalProviderHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocalProvider(8).GenerateEmbedding(ctx, "cash")
	assert.ErrorIs(t, err, context.Canceled)
}

// countingProvider counts calls reaching the wrapped provider
type countingProvider struct {
	*LocalProvider
	single atomic.Int32
	batch  atomic.Int32
	texts  atomic.Int32
}

func (c *countingProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	c.single.Add(1)
	return c.LocalProvider.GenerateEmbedding(ctx, text)
}

func (c *countingProvider) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	c.batch.Add(1)
	c.texts.Add(int32(len(texts)))
	return c.LocalProvider.GenerateBatchEmbeddings(ctx, texts)
}

func TestCachedProvider(t *testing.T) {
	inner := &countingProvider{LocalProvider: NewLocalProvider(16)}
	cached, err := NewCachedProvider(inner, 8)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := cached.GenerateEmbedding(ctx, "cash flow")
	require.NoError(t, err)
	second, err := cached.GenerateEmbedding(ctx, "cash flow")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), inner.single.Load())

	out, err := cached.GenerateBatchEmbeddings(ctx, []string{"cash flow", "revenue", "expenses"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, first, out[0])
	assert.Equal(t, int32(2), inner.texts.Load(), "only misses reach the provider")
	assert.Equal(t, 3, cached.Len())
	assert.Equal(t, "local-hash-16", cached.Name())
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(Config{Provider: ProviderLocal, Dimensions: 32})
	require.NoError(t, err)
	assert.IsType(t, &LocalProvider{}, p)

	p, err = NewProvider(Config{Provider: ProviderLocal, CacheSize: 10})
	require.NoError(t, err)
	assert.IsType(t, &CachedProvider{}, p)

	_, err = NewProvider(Config{Provider: ProviderOpenAI})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = NewProvider(Config{Provider: "cohere"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestOpenAIProviderBatch(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 0, "embedding": [0.1, 0.2]},
				{"object": "embedding", "index": 1, "embedding": [0.3, 0.4]}
			],
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("sk-test", "", 5*time.Second, option.WithBaseURL(srv.URL))
	require.NoError(t, err)

	out, err := p.GenerateBatchEmbeddings(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 0.3, out[1][0], 1e-6)
	assert.Equal(t, "text-embedding-3-small", body["model"])
	assert.Equal(t, 1536, p.Dimensions())
}

func TestOpenAIProviderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad input"}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("sk-test", "text-embedding-3-large", time.Second, option.WithBaseURL(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, 3072, p.Dimensions())

	_, err = p.GenerateEmbedding(context.Background(), "cash")
	assert.ErrorIs(t, err, errors.ErrExternal)
}
