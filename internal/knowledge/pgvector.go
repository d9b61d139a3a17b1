package knowledge

import (
	"context"
	"fmt"

	"helpdesk/internal/database"
	"helpdesk/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"
)

// PgvectorStore keeps chunks in a postgres table with a pgvector column
type PgvectorStore struct {
	writeClient *database.WriteClient
	table       string
	logger      zerolog.Logger
}

// NewPgvectorStore creates a store backed by the given table
func NewPgvectorStore(writeClient *database.WriteClient, table string, logger zerolog.Logger) (*PgvectorStore, error) {
	if writeClient == nil {
		return nil, fmt.Errorf("write client is required for pgvector store")
	}
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid knowledge table name %q", table)
	}

	return &PgvectorStore{
		writeClient: writeClient,
		table:       table,
		logger:      logger.With().Str("component", "pgvector").Logger(),
	}, nil
}

// EnsureSchema creates the vector extension, the chunk table and its indexes
func (s *PgvectorStore) EnsureSchema(ctx context.Context) error {
	s.writeClient.Migrate(ctx, []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			doc_id VARCHAR(100) NOT NULL,
			chunk_index INT NOT NULL,
			chunk_in_page INT NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			page INT,
			source VARCHAR(255) NOT NULL DEFAULT '',
			source_type VARCHAR(50) NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, s.table, EmbeddingDimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_source_type ON %s(source_type)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_doc_id ON %s(doc_id)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s USING hnsw (embedding vector_cosine_ops)`, s.table, s.table),
	})
	return nil
}

// Search ranks the chunks of one source type by cosine similarity
func (s *PgvectorStore) Search(ctx context.Context, embedding []float32, limit int, sourceType string) ([]models.RetrievedChunk, error) {
	// Cosine distance in pgvector is 1 - cosine similarity
	query := fmt.Sprintf(`
		SELECT content, page, source_type, 1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE source_type = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, s.table)

	var chunks []models.RetrievedChunk
	if err := database.ExecuteReadOnlyQuery(ctx, s.writeClient.GetDB(), &chunks, query, pgvector.NewVector(embedding), sourceType, limit); err != nil {
		return nil, fmt.Errorf("failed to search knowledge base: %w", err)
	}
	for i := range chunks {
		chunks[i].Similarity = clampSimilarity(chunks[i].Similarity)
	}

	s.logger.Debug().Int("results", len(chunks)).Str("source_type", sourceType).Msg("Knowledge search complete")
	return chunks, nil
}

// Upsert writes chunks in a single transaction
func (s *PgvectorStore) Upsert(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, doc_id, chunk_index, chunk_in_page, content, page, source, source_type, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			page = EXCLUDED.page,
			source_type = EXCLUDED.source_type,
			embedding = EXCLUDED.embedding
	`, s.table)

	return s.writeClient.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, chunk := range chunks {
			if _, err := tx.ExecContext(ctx, query,
				chunk.ID, chunk.DocID, chunk.ChunkIndex, chunk.ChunkInPage, chunk.Content,
				chunk.Page, chunk.Source, chunk.SourceType, pgvector.NewVector(chunk.Embedding)); err != nil {
				return fmt.Errorf("failed to store chunk %d of %s: %w", chunk.ChunkIndex, chunk.DocID, err)
			}
		}
		return nil
	})
}

// DeleteDocument removes every chunk of docID
func (s *PgvectorStore) DeleteDocument(ctx context.Context, docID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE doc_id = $1`, s.table)
	result, err := s.writeClient.ExecuteWriteQuery(ctx, query, docID)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", docID, err)
	}

	if rows, err := result.RowsAffected(); err == nil {
		s.logger.Info().Str("doc_id", docID).Int64("chunks", rows).Msg("Removed previous document chunks")
	}
	return nil
}

// Close is a no-op; the database connection belongs to the caller
func (s *PgvectorStore) Close() error {
	return nil
}
