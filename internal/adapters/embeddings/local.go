package embeddings

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"erpinsight/pkg/errors"
)

const defaultLocalDimensions = 384

// LocalProvider embeds text by feature hashing words and word bigrams into a
// fixed-size signed vector. It needs no network and is deterministic, which
// makes it the default for development and tests.
type LocalProvider struct {
	dims int
}

// NewLocalProvider returns a hashing embedder with dims dimensions
func NewLocalProvider(dims int) *LocalProvider {
	if dims <= 0 {
		dims = defaultLocalDimensions
	}
	return &LocalProvider{dims: dims}
}

// GenerateEmbedding hashes text into an L2-normalized vector
func (p *LocalProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "text cannot be empty")
	}
	return p.embed(text), nil
}

// GenerateBatchEmbeddings embeds each text in order
func (p *LocalProvider) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "texts cannot be empty")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (p *LocalProvider) Dimensions() int {
	return p.dims
}

func (p *LocalProvider) Name() string {
	return fmt.Sprintf("local-hash-%d", p.dims)
}

func (p *LocalProvider) embed(text string) []float32 {
	vec := make([]float64, p.dims)
	tokens := tokenize(text)

	for i, tok := range tokens {
		p.add(vec, tok, 1.0)
		if i > 0 {
			p.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, p.dims)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// add hashes feature into a bucket; the top hash bit picks the sign so
// collisions cancel out on average
func (p *LocalProvider) add(vec []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	idx := h % uint64(p.dims)
	if h>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
