package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"helpdesk/internal/database"
	"helpdesk/internal/models"

	"github.com/rs/zerolog"
)

// EventType constants for tracking different events
const (
	EventConversation    = "conversation"
	EventTicketCreated   = "ticket_created"
	EventTicketFailure   = "ticket_failure"
	EventClientTypeAsked = "client_type_asked"
	EventSLABreach       = "sla_breach"
	EventOpenAICall      = "openai_call"
	EventEmailSent       = "email_sent"
	EventChunksIngested  = "chunks_ingested"
)

// Period constants for analytics queries
const (
	PeriodToday      = "today"
	PeriodYesterday  = "yesterday"
	PeriodLast7Days  = "last_7_days"
	PeriodLast30Days = "last_30_days"
)

// Service handles analytics tracking and retrieval
type Service struct {
	writeClient *database.WriteClient
	logger      zerolog.Logger
	now         func() time.Time
	mu          sync.Mutex
}

// NewService creates a new analytics service
func NewService(writeClient *database.WriteClient, logger zerolog.Logger) (*Service, error) {
	if writeClient == nil {
		return nil, fmt.Errorf("write client is required for analytics service")
	}

	service := &Service{
		writeClient: writeClient,
		logger:      logger.With().Str("component", "analytics").Logger(),
		now:         time.Now,
	}

	service.createTables(context.Background())

	return service, nil
}

// createTables creates the analytics tables in the database
func (s *Service) createTables(ctx context.Context) {
	s.writeClient.Migrate(ctx, []string{
		// Analytics events table
		`CREATE TABLE IF NOT EXISTS analytics_events (
			id SERIAL PRIMARY KEY,
			event_type VARCHAR(50) NOT NULL,
			count INT DEFAULT 1,
			metadata JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_event_type ON analytics_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_created_at ON analytics_events(created_at)`,
		// Daily aggregates table for faster queries
		`CREATE TABLE IF NOT EXISTS analytics_daily (
			id SERIAL PRIMARY KEY,
			date DATE NOT NULL,
			event_type VARCHAR(50) NOT NULL,
			total_count INT DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(date, event_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_daily_date ON analytics_daily(date)`,
	})
}

// TrackEvent records an analytics event and bumps the daily aggregate
func (s *Service) TrackEvent(ctx context.Context, eventType string, count int, metadata map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON *string
	if metadata != nil {
		jsonBytes, err := json.Marshal(metadata)
		if err == nil {
			str := string(jsonBytes)
			metadataJSON = &str
		}
	}

	query := `INSERT INTO analytics_events (event_type, count, metadata) VALUES ($1, $2, $3)`
	if _, err := s.writeClient.ExecuteWriteQuery(ctx, query, eventType, count, metadataJSON); err != nil {
		return fmt.Errorf("failed to track event: %w", err)
	}

	today := s.now().UTC().Format("2006-01-02")
	aggregateQuery := `
		INSERT INTO analytics_daily (date, event_type, total_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (date, event_type) DO UPDATE SET
			total_count = analytics_daily.total_count + EXCLUDED.total_count,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.writeClient.ExecuteWriteQuery(ctx, aggregateQuery, today, eventType, count); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("Failed to update daily aggregate")
	}

	return nil
}

// TrackConversation records a classified chat message and the completion call behind it
func (s *Service) TrackConversation(ctx context.Context, source models.TicketSource, tokens int, model string) error {
	if err := s.TrackEvent(ctx, EventConversation, 1, map[string]interface{}{
		"source": source,
	}); err != nil {
		return err
	}

	if tokens > 0 {
		return s.TrackEvent(ctx, EventOpenAICall, 1, map[string]interface{}{
			"tokens": tokens,
			"model":  model,
		})
	}
	return nil
}

// TrackClientTypeAsked records a clarifying client type question
func (s *Service) TrackClientTypeAsked(ctx context.Context, source models.TicketSource) error {
	return s.TrackEvent(ctx, EventClientTypeAsked, 1, map[string]interface{}{
		"source": source,
	})
}

// TrackTicketCreated records a ticket opened from a conversation
func (s *Service) TrackTicketCreated(ctx context.Context, ticket *models.Ticket) error {
	return s.TrackEvent(ctx, EventTicketCreated, 1, map[string]interface{}{
		"category":   ticket.Category,
		"department": ticket.Department,
		"priority":   ticket.Priority,
		"source":     ticket.Source,
	})
}

// TrackTicketFailure records a ticket write that was not acknowledged
func (s *Service) TrackTicketFailure(ctx context.Context, source models.TicketSource) error {
	return s.TrackEvent(ctx, EventTicketFailure, 1, map[string]interface{}{
		"source": source,
	})
}

// TrackSLABreach records a ticket moved by the SLA checker
func (s *Service) TrackSLABreach(ctx context.Context, ticketID string, status models.TicketStatus) error {
	return s.TrackEvent(ctx, EventSLABreach, 1, map[string]interface{}{
		"ticket_id": ticketID,
		"status":    status,
	})
}

// TrackEmailSent records a notice sent through SendGrid
func (s *Service) TrackEmailSent(ctx context.Context, emailType string, recipient string) error {
	return s.TrackEvent(ctx, EventEmailSent, 1, map[string]interface{}{
		"type":           emailType,
		"recipient_hash": hashEmail(recipient),
	})
}

// TrackIngestion records knowledge base chunks stored by an ingestion run
func (s *Service) TrackIngestion(ctx context.Context, docID string, chunks int) error {
	return s.TrackEvent(ctx, EventChunksIngested, chunks, map[string]interface{}{
		"doc_id": docID,
	})
}

// PeriodRange resolves a named period to its [start, end] range; unknown names mean today
func PeriodRange(period string, now time.Time) (string, time.Time, time.Time) {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch period {
	case PeriodYesterday:
		return period, midnight.AddDate(0, 0, -1), midnight
	case PeriodLast7Days:
		return period, now.AddDate(0, 0, -7), now
	case PeriodLast30Days:
		return period, now.AddDate(0, 0, -30), now
	case PeriodToday:
		return period, midnight, now
	default:
		return PeriodToday, midnight, now
	}
}

type eventTotal struct {
	EventType string `db:"event_type"`
	Total     int    `db:"total"`
}

// GetSummary retrieves analytics summary for a time period
func (s *Service) GetSummary(ctx context.Context, period string) (*models.AnalyticsSummary, error) {
	period, startDate, endDate := PeriodRange(period, s.now())

	summary := &models.AnalyticsSummary{
		Period:    period,
		StartDate: startDate,
		EndDate:   endDate,
	}

	query := `
		SELECT event_type, COALESCE(SUM(total_count), 0) AS total
		FROM analytics_daily
		WHERE date >= $1 AND date <= $2
		GROUP BY event_type
	`
	var totals []eventTotal
	if err := database.ExecuteReadOnlyQuery(ctx, s.writeClient.GetDB(), &totals, query,
		startDate.Format("2006-01-02"), endDate.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("failed to get analytics summary: %w", err)
	}

	for _, row := range totals {
		switch row.EventType {
		case EventConversation:
			summary.TotalConversations = row.Total
		case EventTicketCreated:
			summary.TicketsCreated = row.Total
		case EventTicketFailure:
			summary.TicketFailures = row.Total
		case EventClientTypeAsked:
			summary.ClientTypeAsked = row.Total
		case EventSLABreach:
			summary.SLABreaches = row.Total
		case EventOpenAICall:
			summary.OpenAICalls = row.Total
		case EventEmailSent:
			summary.EmailsSent = row.Total
		case EventChunksIngested:
			summary.ChunksIngested = row.Total
		}
	}

	tokenQuery := `
		SELECT COALESCE(SUM((metadata->>'tokens')::int), 0) AS total_tokens
		FROM analytics_events
		WHERE event_type = $1 AND created_at >= $2 AND created_at <= $3
		AND metadata->>'tokens' IS NOT NULL
	`
	var totalTokens int
	if err := database.ExecuteReadOnlyQuerySingle(ctx, s.writeClient.GetDB(), &totalTokens, tokenQuery, EventOpenAICall, startDate, endDate); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to sum token usage")
	} else {
		summary.OpenAITokensUsed = totalTokens
	}

	return summary, nil
}

// hashEmail creates a simple hash of an email for privacy
func hashEmail(email string) string {
	if len(email) < 3 {
		return "***"
	}
	return email[:2] + "***" + email[len(email)-3:]
}
