package inmem

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/pgvector/pgvector-go"

	"erpinsight/internal/domain/rag"
)

// Compile-time check
var _ rag.Repository = (*DocumentRepository)(nil)

// DocumentRepository keeps chunks in process memory and scores them by
// cosine similarity. Used when no Postgres is configured and in tests.
type DocumentRepository struct {
	mu    sync.RWMutex
	docs  []*rag.Document
	index map[string]int // dedup key to position in docs
}

// NewDocumentRepository creates an empty repository
func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{index: make(map[string]int)}
}

// Store appends docs. A doc whose (user, tag, model, content hash) is
// already stored replaces the older copy.
func (r *DocumentRepository) Store(ctx context.Context, docs []*rag.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range docs {
		if d.ContentHash != "" {
			if i, ok := r.index[dedupKey(d)]; ok {
				r.docs[i] = d
				continue
			}
			r.index[dedupKey(d)] = len(r.docs)
		}
		r.docs = append(r.docs, d)
	}
	return nil
}

func dedupKey(d *rag.Document) string {
	return d.UserID + "\x00" + d.Tag + "\x00" + d.EmbeddingModel + "\x00" + d.ContentHash
}

// SearchSimilar scans the user's documents and returns the best matches
func (r *DocumentRepository) SearchSimilar(ctx context.Context, userID, model string, embedding pgvector.Vector, limit int) ([]rag.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := embedding.Slice()

	r.mu.RLock()
	results := make([]rag.SearchResult, 0)
	for _, d := range r.docs {
		if d.UserID != userID || d.EmbeddingModel != model {
			continue
		}
		results = append(results, rag.SearchResult{
			DocumentID: d.ID,
			UserID:     d.UserID,
			Tag:        d.Tag,
			Content:    d.Content,
			Score:      cosine(query, d.Embedding.Slice()),
			Timestamp:  d.CreatedAt,
		})
	}
	r.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// DeleteByUser drops every document owned by userID
func (r *DocumentRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.docs[:0]
	var removed int64
	for _, d := range r.docs {
		if d.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	for i := len(kept); i < len(r.docs); i++ {
		r.docs[i] = nil
	}
	r.docs = kept

	clear(r.index)
	for i, d := range r.docs {
		if d.ContentHash != "" {
			r.index[dedupKey(d)] = i
		}
	}
	return removed, nil
}

// Stats counts documents, owners and tags
func (r *DocumentRepository) Stats(ctx context.Context) (rag.Stats, error) {
	if err := ctx.Err(); err != nil {
		return rag.Stats{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make(map[string]struct{})
	tags := make(map[string]struct{})
	for _, d := range r.docs {
		users[d.UserID] = struct{}{}
		tags[d.Tag] = struct{}{}
	}

	dataTypes := make([]string, 0, len(tags))
	for t := range tags {
		dataTypes = append(dataTypes, t)
	}
	sort.Strings(dataTypes)

	return rag.Stats{TotalDocuments: len(r.docs), UniqueUsers: len(users), DataTypes: dataTypes}, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
