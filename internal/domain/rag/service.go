package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"erpinsight/internal/domain/accounting"
	"erpinsight/internal/metrics"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

// Embedder turns text into vectors
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// Config tunes chunking and retrieval
type Config struct {
	Backend      string
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

// Service indexes per-user accounting data and retrieves it by similarity.
// Every search is scoped to a single user.
type Service struct {
	repo     Repository
	embedder Embedder
	cfg      Config
	log      *logger.Logger
	now      func() time.Time
}

// NewService constructs a knowledge base service
func NewService(repo Repository, embedder Embedder, cfg Config) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	return &Service{
		repo:     repo,
		embedder: embedder,
		cfg:      cfg,
		log:      logger.Get().With("component", "rag"),
		now:      time.Now,
	}
}

// Index converts records to text, chunks and embeds it, and stores the
// chunks under tag for userID. It returns the number of chunks stored.
func (s *Service) Index(ctx context.Context, userID, tag string, dataType accounting.DataType, records []accounting.Record) (n int, err error) {
	if userID == "" || tag == "" {
		return 0, errors.Wrap(errors.ErrInvalidInput, "user id and tag are required")
	}
	if len(records) == 0 {
		return 0, nil
	}

	start := time.Now()
	defer func() { metrics.RecordRAGOperation("index", time.Since(start), err) }()

	chunks := Chunk(RecordsToText(dataType, records), s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return 0, nil
	}

	vectors, err := s.embedder.GenerateBatchEmbeddings(ctx, chunks)
	if err != nil {
		return 0, errors.Wrap(err, "embed chunks")
	}
	if len(vectors) != len(chunks) {
		return 0, errors.Wrapf(errors.ErrInternal, "embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	now := s.now().UTC()
	docs := make([]*Document, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for i, chunk := range chunks {
		hash := ContentHash(chunk)
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}
		docs = append(docs, &Document{
			ID:             uuid.New(),
			SourceKey:      fmt.Sprintf("%s_%s_%d_%d", userID, tag, now.Unix(), i),
			UserID:         userID,
			Tag:            tag,
			Content:        chunk,
			ContentHash:    hash,
			Embedding:      pgvector.NewVector(vectors[i]),
			EmbeddingModel: s.embedder.Name(),
			ChunkIndex:     i,
			CreatedAt:      now,
		})
	}

	if err := s.repo.Store(ctx, docs); err != nil {
		return 0, errors.Wrap(err, "store chunks")
	}

	s.log.Debugw("indexed records", "user_id", userID, "tag", tag, "records", len(records), "chunks", len(docs))
	return len(docs), nil
}

// Search returns up to k chunks owned by userID most similar to query.
// k <= 0 uses the configured default.
func (s *Service) Search(ctx context.Context, query, userID string, k int) (results []SearchResult, err error) {
	if userID == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "user id is required")
	}
	if query == "" {
		return nil, nil
	}
	if k <= 0 {
		k = s.cfg.TopK
	}

	start := time.Now()
	defer func() { metrics.RecordRAGOperation("search", time.Since(start), err) }()

	vector, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}

	found, err := s.repo.SearchSimilar(ctx, userID, s.embedder.Name(), pgvector.NewVector(vector), k)
	if err != nil {
		return nil, errors.Wrap(err, "search similar")
	}

	// Results are re-filtered by owner regardless of the backend
	results = make([]SearchResult, 0, len(found))
	for _, r := range found {
		if r.UserID == userID {
			results = append(results, r)
		}
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// ClearUserData removes every chunk owned by userID
func (s *Service) ClearUserData(ctx context.Context, userID string) (n int64, err error) {
	if userID == "" {
		return 0, errors.Wrap(errors.ErrInvalidInput, "user id is required")
	}

	start := time.Now()
	defer func() { metrics.RecordRAGOperation("clear", time.Since(start), err) }()

	n, err = s.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "delete user documents")
	}
	s.log.Infow("cleared user knowledge", "user_id", userID, "documents", n)
	return n, nil
}

// Stats reports document counts for the knowledge base
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return Stats{}, errors.Wrap(err, "knowledge base stats")
	}
	stats.Backend = s.cfg.Backend
	stats.EmbeddingModel = s.embedder.Name()
	return stats, nil
}
