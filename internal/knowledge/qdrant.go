package knowledge

import (
	"context"
	"fmt"

	"helpdesk/internal/config"
	"helpdesk/internal/models"

	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"
)

// qdrantAPI is the part of the qdrant client the store uses
type qdrantAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Close() error
}

// Payload keys of stored points
const (
	payloadContent     = "content"
	payloadPage        = "page"
	payloadDocID       = "doc_id"
	payloadChunkIndex  = "chunk_index"
	payloadChunkInPage = "chunk_in_page"
	payloadSource      = "source"
	payloadSourceType  = "source_type"
)

// QdrantStore keeps chunks in a qdrant collection
type QdrantStore struct {
	client     qdrantAPI
	collection string
	logger     zerolog.Logger
}

// NewQdrantStore connects to qdrant over gRPC
func NewQdrantStore(cfg *config.Config, logger zerolog.Logger) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		APIKey: cfg.QdrantAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return newQdrantStore(client, cfg.KnowledgeCollection, logger), nil
}

func newQdrantStore(client qdrantAPI, collection string, logger zerolog.Logger) *QdrantStore {
	return &QdrantStore{
		client:     client,
		collection: collection,
		logger:     logger.With().Str("component", "qdrant").Logger(),
	}
}

// EnsureSchema creates the collection with cosine distance when missing
func (s *QdrantStore) EnsureSchema(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", s.collection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     EmbeddingDimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
	}

	s.logger.Info().Str("collection", s.collection).Msg("Created knowledge collection")
	return nil
}

// Search queries the collection filtered by source type
func (s *QdrantStore) Search(ctx context.Context, embedding []float32, limit int, sourceType string) ([]models.RetrievedChunk, error) {
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadSourceType, sourceType)},
		},
		Limit:       qdrant.PtrOf(uint64(limit)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge base: %w", err)
	}

	chunks := make([]models.RetrievedChunk, 0, len(points))
	for _, point := range points {
		chunks = append(chunks, chunkFromPayload(point.GetPayload(), float64(point.GetScore())))
	}
	return chunks, nil
}

func chunkFromPayload(payload map[string]*qdrant.Value, score float64) models.RetrievedChunk {
	chunk := models.RetrievedChunk{
		Content:    payload[payloadContent].GetStringValue(),
		SourceType: payload[payloadSourceType].GetStringValue(),
		Similarity: clampSimilarity(score),
	}
	if value, ok := payload[payloadPage]; ok {
		page := int(value.GetIntegerValue())
		chunk.Page = &page
	}
	return chunk
}

// Upsert stores chunks as points keyed by chunk ID
func (s *QdrantStore) Upsert(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, chunk := range chunks {
		payload := map[string]any{
			payloadContent:     chunk.Content,
			payloadDocID:       chunk.DocID,
			payloadChunkIndex:  int64(chunk.ChunkIndex),
			payloadChunkInPage: int64(chunk.ChunkInPage),
			payloadSource:      chunk.Source,
			payloadSourceType:  chunk.SourceType,
		}
		if chunk.Page != nil {
			payload[payloadPage] = int64(*chunk.Page)
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(chunk.ID),
			Vectors: qdrant.NewVectors(chunk.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return nil
}

// DeleteDocument removes every point whose doc_id matches
func (s *QdrantStore) DeleteDocument(ctx context.Context, docID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocID, docID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", docID, err)
	}
	return nil
}

// Close releases the gRPC connection
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
