package models

import "time"

// AnalyticsSummary represents aggregated analytics for a time period
type AnalyticsSummary struct {
	Period             string    `json:"period"`              // "today", "yesterday", "last_7_days", "last_30_days"
	TotalConversations int       `json:"total_conversations"` // Chat messages classified
	TicketsCreated     int       `json:"tickets_created"`     // Tickets opened by the classifier
	TicketFailures     int       `json:"ticket_failures"`     // Ticket writes that were not acknowledged
	ClientTypeAsked    int       `json:"client_type_asked"`   // Clarifying client type questions
	SLABreaches        int       `json:"sla_breaches"`        // Tickets escalated or sent on site by the SLA checker
	OpenAICalls        int       `json:"openai_calls"`        // Total OpenAI API calls
	OpenAITokensUsed   int       `json:"openai_tokens_used"`  // Total tokens consumed
	EmailsSent         int       `json:"emails_sent"`         // Notices sent via SendGrid
	ChunksIngested     int       `json:"chunks_ingested"`     // Knowledge base chunks stored
	StartDate          time.Time `json:"start_date"`          // Period start
	EndDate            time.Time `json:"end_date"`            // Period end
}

// AnalyticsResponse represents the API response for analytics
// @Description Analytics response payload
type AnalyticsResponse struct {
	Success bool              `json:"success" example:"true"`
	Summary *AnalyticsSummary `json:"summary,omitempty"`
	Error   string            `json:"error,omitempty" example:""`
}

// ChatInteraction records one classified chat message
type ChatInteraction struct {
	ID            int          `json:"id" db:"id"`
	UserID        string       `json:"user_id" db:"user_id"`
	Source        TicketSource `json:"source" db:"source"`
	Message       string       `json:"message" db:"message"`
	Answer        string       `json:"answer" db:"answer"`
	Confidence    float64      `json:"confidence" db:"confidence"`
	TicketCreated bool         `json:"ticket_created" db:"ticket_created"`
	TicketID      *string      `json:"ticket_id,omitempty" db:"ticket_id"`
	Category      *string      `json:"category,omitempty" db:"category"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

// ClassificationFeedback is a staff verdict on an automatic categorization
// @Description Classification feedback
type ClassificationFeedback struct {
	ID                  int       `json:"id" db:"id"`
	TicketID            string    `json:"ticket_id" db:"ticket_id"`
	PredictedCategory   string    `json:"predicted_category" db:"predicted_category"`
	PredictedDepartment string    `json:"predicted_department" db:"predicted_department"`
	CorrectCategory     string    `json:"correct_category" db:"correct_category"`
	CorrectDepartment   string    `json:"correct_department" db:"correct_department"`
	IsCorrect           bool      `json:"is_correct" db:"is_correct"`
	Comment             string    `json:"comment" db:"comment"`
	FeedbackBy          *string   `json:"feedback_by,omitempty" db:"feedback_by"`
	FeedbackAt          time.Time `json:"feedback_at" db:"feedback_at"`
}

// FeedbackRequest is submitted by staff after reviewing a ticket
// @Description Classification feedback payload
type FeedbackRequest struct {
	CorrectCategory   string `json:"correct_category" validate:"required" example:"billing"`
	CorrectDepartment string `json:"correct_department" validate:"required" example:"Billing"`
	Comment           string `json:"comment"`
}

// AccuracyBucket counts correct predictions for one key
type AccuracyBucket struct {
	Correct int     `json:"correct" db:"correct"`
	Total   int     `json:"total" db:"total"`
	Percent float64 `json:"percent"`
}

// MonitoringMetrics summarizes classifier quality over a period
// @Description Monitoring metrics
type MonitoringMetrics struct {
	From                   time.Time                 `json:"from"`
	To                     time.Time                 `json:"to"`
	TotalClassifications   int                       `json:"total_classifications"`
	CorrectClassifications int                       `json:"correct_classifications"`
	AccuracyPercent        float64                   `json:"accuracy_percent"`
	ByCategory             map[string]AccuracyBucket `json:"by_category"`
	ByDepartment           map[string]AccuracyBucket `json:"by_department"`
	TotalInteractions      int                       `json:"total_interactions"`
	AutoResolved           int                       `json:"auto_resolved"`
	AutoResolveRate        float64                   `json:"auto_resolve_rate"`
	AverageConfidence      float64                   `json:"average_confidence"`
}
