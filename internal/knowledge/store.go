// Package knowledge stores and searches the help desk knowledge base
package knowledge

import (
	"context"
	"fmt"
	"regexp"

	"helpdesk/internal/config"
	"helpdesk/internal/database"
	"helpdesk/internal/models"

	"github.com/rs/zerolog"
)

// EmbeddingDimensions is the vector size of text-embedding-3-small
const EmbeddingDimensions = 1536

// Store is a vector index of knowledge base chunks
type Store interface {
	// EnsureSchema creates the table or collection when missing
	EnsureSchema(ctx context.Context) error
	// Search returns up to limit chunks of sourceType, most similar first
	Search(ctx context.Context, embedding []float32, limit int, sourceType string) ([]models.RetrievedChunk, error)
	// Upsert stores chunks, replacing the ones with the same ID
	Upsert(ctx context.Context, chunks []models.DocumentChunk) error
	// DeleteDocument removes every chunk of a document
	DeleteDocument(ctx context.Context, docID string) error
	Close() error
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// NewStore builds the store selected by VECTOR_STORE
func NewStore(cfg *config.Config, writeClient *database.WriteClient, logger zerolog.Logger) (Store, error) {
	switch cfg.VectorStore {
	case config.VectorStoreQdrant:
		return NewQdrantStore(cfg, logger)
	case config.VectorStorePgvector, "":
		return NewPgvectorStore(writeClient, cfg.KnowledgeCollection, logger)
	default:
		return nil, fmt.Errorf("unsupported vector store %q", cfg.VectorStore)
	}
}

// clampSimilarity bounds a cosine score to [0,1]; anti-correlated vectors score 0
func clampSimilarity(score float64) float64 {
	return min(max(score, 0), 1)
}
