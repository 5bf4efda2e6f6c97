package embeddings

import (
	"context"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

// OpenAIProvider implements embedding generation using official OpenAI Go SDK
type OpenAIProvider struct {
	client     openai.Client
	model      openai.EmbeddingModel
	dimensions int
	timeout    time.Duration
	log        *logger.Logger
}

// NewOpenAIProvider creates a new OpenAI embedding provider. Extra request
// options (base URL, HTTP client) are passed through to the SDK.
func NewOpenAIProvider(apiKey string, model string, timeout time.Duration, opts ...option.RequestOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "openai API key is required")
	}

	if model == "" {
		model = openai.EmbeddingModelTextEmbedding3Small
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(2)}, opts...)

	return &OpenAIProvider{
		client:     openai.NewClient(opts...),
		model:      openai.EmbeddingModel(model),
		dimensions: getDimensions(model),
		timeout:    timeout,
		log:        logger.Get().With("component", "openai_embeddings", "model", model),
	}, nil
}

// GenerateEmbedding creates a vector embedding for the given text
func (p *OpenAIProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "text cannot be empty")
	}

	out, err := p.embed(ctx, openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)}, 1)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// GenerateBatchEmbeddings creates embeddings for multiple texts in one API call
func (p *OpenAIProvider) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "texts cannot be empty")
	}
	return p.embed(ctx, openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts}, len(texts))
}

func (p *OpenAIProvider) embed(ctx context.Context, input openai.EmbeddingNewParamsInputUnion, want int) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	response, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: input,
		Model: p.model,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrap(ctxErr, "openai embeddings")
		}
		return nil, errors.Wrapf(errors.ErrExternal, "openai embeddings: %v", err)
	}

	if len(response.Data) != want {
		return nil, errors.Wrapf(errors.ErrExternal, "expected %d embeddings, got %d", want, len(response.Data))
	}

	// pgvector stores float32
	vectors := make([][]float32, len(response.Data))
	for i, data := range response.Data {
		vec := make([]float32, len(data.Embedding))
		for j, val := range data.Embedding {
			vec[j] = float32(val)
		}
		vectors[i] = vec
	}

	p.log.Debugw("Generated embeddings",
		"batch_size", want,
		"tokens_used", response.Usage.TotalTokens)

	return vectors, nil
}

// Dimensions returns the dimensionality of embeddings
func (p *OpenAIProvider) Dimensions() int {
	return p.dimensions
}

// Name returns the model name (e.g., "text-embedding-3-small")
func (p *OpenAIProvider) Name() string {
	return string(p.model)
}

func getDimensions(model string) int {
	switch model {
	case openai.EmbeddingModelTextEmbedding3Large:
		return 3072
	default:
		// text-embedding-3-small and ada-002
		return 1536
	}
}
