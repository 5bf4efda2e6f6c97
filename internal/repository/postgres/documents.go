package postgres

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"erpinsight/internal/domain/rag"
	"erpinsight/pkg/errors"
)

// Compile-time check
var _ rag.Repository = (*DocumentRepository)(nil)

const documentsSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS rag_documents (
	id              UUID PRIMARY KEY,
	source_key      TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	tag             TEXT NOT NULL,
	content         TEXT NOT NULL,
	embedding       vector NOT NULL,
	embedding_model TEXT NOT NULL,
	chunk_index     INT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS rag_documents_owner_idx ON rag_documents (user_id, embedding_model);

ALTER TABLE rag_documents ADD COLUMN IF NOT EXISTS content_hash TEXT NOT NULL DEFAULT '';

CREATE UNIQUE INDEX IF NOT EXISTS rag_documents_chunk_idx
	ON rag_documents (user_id, tag, embedding_model, content_hash)
	WHERE content_hash <> '';
`

// DocumentRepository implements rag.Repository using sqlx and pgvector
type DocumentRepository struct {
	db DBTX
}

// NewDocumentRepository creates a document repository over db
func NewDocumentRepository(db DBTX) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// EnsureSchema creates the vector extension and documents table if missing
func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, documentsSchema); err != nil {
		return errors.Wrap(err, "ensure rag schema")
	}
	return nil
}

// Store inserts docs in one statement. A chunk already stored for the same
// user, tag and model is refreshed in place. docs must not repeat a content
// hash.
func (r *DocumentRepository) Store(ctx context.Context, docs []*rag.Document) error {
	if len(docs) == 0 {
		return nil
	}

	query := `
		INSERT INTO rag_documents (
			id, source_key, user_id, tag, content, content_hash, embedding, embedding_model, chunk_index, created_at
		) VALUES (
			:id, :source_key, :user_id, :tag, :content, :content_hash, :embedding, :embedding_model, :chunk_index, :created_at
		)
		ON CONFLICT (user_id, tag, embedding_model, content_hash) WHERE content_hash <> ''
		DO UPDATE SET
			source_key  = EXCLUDED.source_key,
			chunk_index = EXCLUDED.chunk_index,
			created_at  = EXCLUDED.created_at`

	if _, err := r.db.NamedExecContext(ctx, query, docs); err != nil {
		return errors.Wrap(err, "insert rag documents")
	}
	return nil
}

// SearchSimilar performs semantic search using pgvector cosine distance
func (r *DocumentRepository) SearchSimilar(ctx context.Context, userID, model string, embedding pgvector.Vector, limit int) ([]rag.SearchResult, error) {
	var results []rag.SearchResult

	query := `
		SELECT id, user_id, tag, content, created_at, 1 - (embedding <=> $3) AS score
		FROM rag_documents
		WHERE user_id = $1 AND embedding_model = $2
		ORDER BY embedding <=> $3
		LIMIT $4`

	if err := r.db.SelectContext(ctx, &results, query, userID, model, embedding, limit); err != nil {
		return nil, errors.Wrap(err, "search rag documents")
	}
	return results, nil
}

// DeleteByUser removes all of a user's documents
func (r *DocumentRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rag_documents WHERE user_id = $1`, userID)
	if err != nil {
		return 0, errors.Wrap(err, "delete rag documents")
	}
	return res.RowsAffected()
}

// Stats counts documents, owners and tags
func (r *DocumentRepository) Stats(ctx context.Context) (rag.Stats, error) {
	var counts struct {
		Documents int `db:"documents"`
		Users     int `db:"users"`
	}
	err := r.db.GetContext(ctx, &counts,
		`SELECT COUNT(*) AS documents, COUNT(DISTINCT user_id) AS users FROM rag_documents`)
	if err != nil {
		return rag.Stats{}, errors.Wrap(err, "count rag documents")
	}

	tags := []string{}
	if err := r.db.SelectContext(ctx, &tags, `SELECT DISTINCT tag FROM rag_documents ORDER BY tag`); err != nil {
		return rag.Stats{}, errors.Wrap(err, "list rag tags")
	}

	return rag.Stats{TotalDocuments: counts.Documents, UniqueUsers: counts.Users, DataTypes: tags}, nil
}
