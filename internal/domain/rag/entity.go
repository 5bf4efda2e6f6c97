package rag

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Document is one embedded chunk of a user's accounting data
type Document struct {
	ID        uuid.UUID `db:"id"`
	SourceKey string    `db:"source_key"` // {user}_{tag}_{unix}_{chunk}
	UserID    string    `db:"user_id"`
	Tag       string    `db:"tag"` // e.g. finance_accounts, ops_expenses
	Content   string    `db:"content"`
	// ContentHash identifies a chunk per (user, tag, model). Re-indexing the
	// same text refreshes the stored chunk instead of adding a copy.
	ContentHash string `db:"content_hash"`

	// Embedding metadata (search only compares vectors of the same model)
	Embedding      pgvector.Vector `db:"embedding"`
	EmbeddingModel string          `db:"embedding_model"`

	ChunkIndex int       `db:"chunk_index"`
	CreatedAt  time.Time `db:"created_at"`
}

// SearchResult is a scored document returned by a similarity search
type SearchResult struct {
	DocumentID uuid.UUID `json:"document_id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	Tag        string    `json:"data_type" db:"tag"`
	Content    string    `json:"content" db:"content"`
	Score      float64   `json:"score" db:"score"`
	Timestamp  time.Time `json:"timestamp" db:"created_at"`
}

// Stats summarizes the knowledge base
type Stats struct {
	TotalDocuments int      `json:"total_documents"`
	UniqueUsers    int      `json:"unique_users"`
	DataTypes      []string `json:"data_types"`
	Backend        string   `json:"backend"`
	EmbeddingModel string   `json:"embedding_model"`
}
