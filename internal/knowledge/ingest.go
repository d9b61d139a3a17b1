package knowledge

import (
	"context"
	"fmt"
	"time"

	"helpdesk/internal/models"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Ingestion batch sizes and retry budget
const (
	EmbedBatchSize  = 100
	InsertBatchSize = 50
	MaxInsertTries  = 3
)

// Embedder turns texts into embedding vectors
type Embedder interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// IngestStats summarizes one ingestion run
type IngestStats struct {
	PagesProcessed int
	PagesSkipped   int
	Chunks         int
}

// Ingestor chunks, embeds and stores documents
type Ingestor struct {
	embedder   Embedder
	store      Store
	logger     zerolog.Logger
	newBackOff func() backoff.BackOff
	newID      func() string
}

// NewIngestor creates an ingestor writing to store
func NewIngestor(embedder Embedder, store Store, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		embedder: embedder,
		store:    store,
		logger:   logger.With().Str("component", "ingest").Logger(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Second
			return b
		},
		newID: func() string { return uuid.New().String() },
	}
}

// Ingest replaces the stored chunks of doc with freshly embedded ones
func (i *Ingestor) Ingest(ctx context.Context, doc models.Document) (IngestStats, error) {
	var stats IngestStats

	if err := i.store.EnsureSchema(ctx); err != nil {
		return stats, err
	}

	chunks := i.buildChunks(doc, &stats)
	i.logger.Info().
		Str("doc_id", doc.ID).
		Int("pages_processed", stats.PagesProcessed).
		Int("pages_skipped", stats.PagesSkipped).
		Int("chunks", len(chunks)).
		Msg("Chunking complete")

	if len(chunks) == 0 {
		return stats, nil
	}

	for start := 0; start < len(chunks); start += EmbedBatchSize {
		end := min(start+EmbedBatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for j, chunk := range batch {
			texts[j] = chunk.Content
		}

		embeddings, err := i.embedder.CreateEmbeddings(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end, err)
		}
		if len(embeddings) != len(batch) {
			return stats, fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(batch))
		}
		for j := range batch {
			batch[j].Embedding = embeddings[j]
		}

		i.logger.Debug().Int("from", start+1).Int("to", end).Msg("Embedded batch")
	}

	if err := i.store.DeleteDocument(ctx, doc.ID); err != nil {
		return stats, err
	}

	for start := 0; start < len(chunks); start += InsertBatchSize {
		end := min(start+InsertBatchSize, len(chunks))
		if err := i.insertBatch(ctx, chunks[start:end]); err != nil {
			return stats, fmt.Errorf("failed to insert batch starting at %d after %d attempts: %w", start, MaxInsertTries, err)
		}
		stats.Chunks += end - start
	}

	i.logger.Info().Str("doc_id", doc.ID).Int("chunks", stats.Chunks).Msg("Ingestion complete")
	return stats, nil
}

func (i *Ingestor) buildChunks(doc models.Document, stats *IngestStats) []models.DocumentChunk {
	var chunks []models.DocumentChunk
	for _, page := range doc.Pages {
		text := CleanText(page.Text)
		pageChunks := ChunkPage(text)
		if len(pageChunks) == 0 {
			stats.PagesSkipped++
			continue
		}
		stats.PagesProcessed++

		for idx, content := range pageChunks {
			pageNumber := page.Number
			chunks = append(chunks, models.DocumentChunk{
				ID:          i.newID(),
				DocID:       doc.ID,
				ChunkIndex:  len(chunks),
				ChunkInPage: idx,
				Content:     content,
				Page:        &pageNumber,
				Source:      doc.Source,
				SourceType:  doc.SourceType,
			})
		}
	}
	return chunks
}

func (i *Ingestor) insertBatch(ctx context.Context, batch []models.DocumentChunk) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, i.store.Upsert(ctx, batch)
	},
		backoff.WithBackOff(i.newBackOff()),
		backoff.WithMaxTries(MaxInsertTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			i.logger.Warn().Err(err).Dur("retry_in", next).Msg("Chunk insert failed, retrying")
		}),
	)
	return err
}
