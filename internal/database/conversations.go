package database

import (
	"context"
	"fmt"

	"helpdesk/internal/models"
)

// ConversationService archives classified chat messages from every channel
type ConversationService struct {
	writeClient *WriteClient
}

// NewConversationService creates a new conversation service
func NewConversationService(writeClient *WriteClient) (*ConversationService, error) {
	if writeClient == nil {
		return nil, fmt.Errorf("write client is required for conversation service")
	}

	service := &ConversationService{
		writeClient: writeClient,
	}

	service.CreateTables(context.Background())

	return service, nil
}

// CreateTables creates the interaction table in the database
func (s *ConversationService) CreateTables(ctx context.Context) {
	s.writeClient.Migrate(ctx, []string{
		`CREATE TABLE IF NOT EXISTS chat_interactions (
			id SERIAL PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			source VARCHAR(20) NOT NULL,
			message TEXT NOT NULL,
			answer TEXT NOT NULL DEFAULT '',
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			ticket_created BOOLEAN NOT NULL DEFAULT FALSE,
			ticket_id VARCHAR(36),
			category VARCHAR(50),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_interactions_user_id ON chat_interactions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_interactions_created_at ON chat_interactions(created_at DESC)`,
	})
}

// RecordInteraction saves one classified chat message
func (s *ConversationService) RecordInteraction(ctx context.Context, interaction models.ChatInteraction) error {
	query := `
		INSERT INTO chat_interactions (user_id, source, message, answer, confidence, ticket_created, ticket_id, category)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.writeClient.ExecuteWriteQuery(ctx, query,
		interaction.UserID, interaction.Source, interaction.Message, interaction.Answer,
		interaction.Confidence, interaction.TicketCreated, interaction.TicketID, interaction.Category)
	if err != nil {
		return fmt.Errorf("failed to record chat interaction: %w", err)
	}
	return nil
}

// ListInteractions retrieves a page of interactions, newest first; an empty userID lists everyone
func (s *ConversationService) ListInteractions(ctx context.Context, userID string, limit, offset int) ([]models.ChatInteraction, error) {
	query := `
		SELECT id, user_id, source, message, answer, confidence, ticket_created, ticket_id, category, created_at
		FROM chat_interactions
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	interactions := []models.ChatInteraction{}
	if err := ExecuteReadOnlyQuery(ctx, s.writeClient.GetDB(), &interactions, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to get interactions: %w", err)
	}

	return interactions, nil
}

// CountInteractions returns the number of archived interactions
func (s *ConversationService) CountInteractions(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM chat_interactions WHERE ($1 = '' OR user_id = $1)`
	if err := ExecuteReadOnlyQuerySingle(ctx, s.writeClient.GetDB(), &count, query, userID); err != nil {
		return 0, fmt.Errorf("failed to get interaction count: %w", err)
	}
	return count, nil
}
