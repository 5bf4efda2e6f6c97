package embeddings

import (
	"context"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"erpinsight/pkg/errors"
)

// CachedProvider memoizes embeddings by text hash. Queries repeat far more
// often than indexed chunks change, so this mostly saves query embeddings.
// Returned slices are shared with the cache and must not be modified.
type CachedProvider struct {
	Provider
	cache *lru.Cache[uint64, []float32]
}

// NewCachedProvider wraps inner with an LRU of size entries
func NewCachedProvider(inner Provider, size int) (*CachedProvider, error) {
	cache, err := lru.New[uint64, []float32](size)
	if err != nil {
		return nil, errors.Wrap(err, "create embedding cache")
	}
	return &CachedProvider{Provider: inner, cache: cache}, nil
}

func (c *CachedProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := xxhash.Sum64String(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.Provider.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// GenerateBatchEmbeddings only sends cache misses to the inner provider
func (c *CachedProvider) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "texts cannot be empty")
	}

	out := make([][]float32, len(texts))
	keys := make([]uint64, len(texts))
	var (
		missing    []string
		missingIdx []int
	)

	for i, text := range texts {
		keys[i] = xxhash.Sum64String(text)
		if vec, ok := c.cache.Get(keys[i]); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := c.Provider.GenerateBatchEmbeddings(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missing) {
		return nil, errors.Wrapf(errors.ErrExternal, "expected %d embeddings, got %d", len(missing), len(fresh))
	}
	for j, idx := range missingIdx {
		out[idx] = fresh[j]
		c.cache.Add(keys[idx], fresh[j])
	}
	return out, nil
}

// Len reports the number of cached vectors
func (c *CachedProvider) Len() int {
	return c.cache.Len()
}
