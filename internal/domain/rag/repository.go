package rag

import (
	"context"

	"github.com/pgvector/pgvector-go"
)

// Repository persists document chunks and answers similarity queries
type Repository interface {
	Store(ctx context.Context, docs []*Document) error

	// SearchSimilar returns at most limit documents owned by userID whose
	// embedding was produced by model, best match first.
	SearchSimilar(ctx context.Context, userID, model string, embedding pgvector.Vector, limit int) ([]SearchResult, error)

	DeleteByUser(ctx context.Context, userID string) (int64, error)
	Stats(ctx context.Context) (Stats, error)
}
