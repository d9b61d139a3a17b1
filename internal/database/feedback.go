package database

import (
	"context"
	"fmt"
	"time"

	"helpdesk/internal/models"
)

// FeedbackService stores staff verdicts on automatic classification
type FeedbackService struct {
	writeClient *WriteClient
}

// NewFeedbackService creates a new feedback service
func NewFeedbackService(writeClient *WriteClient) (*FeedbackService, error) {
	if writeClient == nil {
		return nil, fmt.Errorf("write client is required for feedback service")
	}

	service := &FeedbackService{writeClient: writeClient}
	service.CreateTables(context.Background())

	return service, nil
}

// CreateTables creates the feedback table
func (s *FeedbackService) CreateTables(ctx context.Context) {
	s.writeClient.Migrate(ctx, []string{
		`CREATE TABLE IF NOT EXISTS classification_feedback (
			id SERIAL PRIMARY KEY,
			ticket_id VARCHAR(36) NOT NULL,
			predicted_category VARCHAR(50) NOT NULL,
			predicted_department VARCHAR(100) NOT NULL,
			correct_category VARCHAR(50) NOT NULL,
			correct_department VARCHAR(100) NOT NULL,
			is_correct BOOLEAN NOT NULL,
			comment TEXT NOT NULL DEFAULT '',
			feedback_by VARCHAR(36),
			feedback_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_classification_feedback_at ON classification_feedback(feedback_at)`,
	})
}

// SubmitFeedback stores a staff verdict comparing the predicted and the correct routing
func (s *FeedbackService) SubmitFeedback(ctx context.Context, feedback *models.ClassificationFeedback) error {
	feedback.IsCorrect = feedback.PredictedCategory == feedback.CorrectCategory &&
		feedback.PredictedDepartment == feedback.CorrectDepartment
	if feedback.FeedbackAt.IsZero() {
		feedback.FeedbackAt = time.Now().UTC()
	}

	query := `
		INSERT INTO classification_feedback
			(ticket_id, predicted_category, predicted_department, correct_category, correct_department, is_correct, comment, feedback_by, feedback_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.writeClient.ExecuteWriteQuery(ctx, query,
		feedback.TicketID, feedback.PredictedCategory, feedback.PredictedDepartment,
		feedback.CorrectCategory, feedback.CorrectDepartment, feedback.IsCorrect,
		feedback.Comment, feedback.FeedbackBy, feedback.FeedbackAt)
	if err != nil {
		return fmt.Errorf("failed to submit classification feedback: %w", err)
	}
	return nil
}

type accuracyRow struct {
	Key     string `db:"key"`
	Correct int    `db:"correct"`
	Total   int    `db:"total"`
}

type interactionStats struct {
	Total             int     `db:"total"`
	AutoResolved      int     `db:"auto_resolved"`
	AverageConfidence float64 `db:"average_confidence"`
}

// Metrics computes classification accuracy and auto-resolve statistics for [from, to]
func (s *FeedbackService) Metrics(ctx context.Context, from, to time.Time) (*models.MonitoringMetrics, error) {
	db := s.writeClient.GetDB()
	metrics := &models.MonitoringMetrics{
		From:         from,
		To:           to,
		ByCategory:   map[string]models.AccuracyBucket{},
		ByDepartment: map[string]models.AccuracyBucket{},
	}

	groupQuery := func(column string) string {
		return fmt.Sprintf(`
			SELECT %s AS key,
				COUNT(*) FILTER (WHERE is_correct) AS correct,
				COUNT(*) AS total
			FROM classification_feedback
			WHERE feedback_at >= $1 AND feedback_at <= $2
			GROUP BY %s
		`, column, column)
	}

	var byCategory []accuracyRow
	if err := ExecuteReadOnlyQuery(ctx, db, &byCategory, groupQuery("predicted_category"), from, to); err != nil {
		return nil, fmt.Errorf("failed to compute category accuracy: %w", err)
	}
	for _, row := range byCategory {
		metrics.ByCategory[row.Key] = bucket(row.Correct, row.Total)
		metrics.TotalClassifications += row.Total
		metrics.CorrectClassifications += row.Correct
	}
	metrics.AccuracyPercent = percent(metrics.CorrectClassifications, metrics.TotalClassifications)

	var byDepartment []accuracyRow
	if err := ExecuteReadOnlyQuery(ctx, db, &byDepartment, groupQuery("predicted_department"), from, to); err != nil {
		return nil, fmt.Errorf("failed to compute department accuracy: %w", err)
	}
	for _, row := range byDepartment {
		metrics.ByDepartment[row.Key] = bucket(row.Correct, row.Total)
	}

	// Interactions live in the table owned by ConversationService
	var stats interactionStats
	statsQuery := `
		SELECT COUNT(*) AS total,
			COUNT(*) FILTER (WHERE NOT ticket_created) AS auto_resolved,
			COALESCE(AVG(confidence) FILTER (WHERE NOT ticket_created), 0) AS average_confidence
		FROM chat_interactions
		WHERE created_at >= $1 AND created_at <= $2
	`
	if err := ExecuteReadOnlyQuerySingle(ctx, db, &stats, statsQuery, from, to); err != nil {
		return nil, fmt.Errorf("failed to compute interaction stats: %w", err)
	}
	metrics.TotalInteractions = stats.Total
	metrics.AutoResolved = stats.AutoResolved
	metrics.AutoResolveRate = percent(stats.AutoResolved, stats.Total)
	metrics.AverageConfidence = stats.AverageConfidence

	return metrics, nil
}

func bucket(correct, total int) models.AccuracyBucket {
	return models.AccuracyBucket{Correct: correct, Total: total, Percent: percent(correct, total)}
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
