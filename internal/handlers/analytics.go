package handlers

import (
	"context"
	"net/http"
	"time"

	"helpdesk/internal/analytics"
	"helpdesk/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// SummaryProvider aggregates usage analytics
type SummaryProvider interface {
	GetSummary(ctx context.Context, period string) (*models.AnalyticsSummary, error)
}

// FeedbackStore stores classification verdicts and computes quality metrics
type FeedbackStore interface {
	SubmitFeedback(ctx context.Context, feedback *models.ClassificationFeedback) error
	Metrics(ctx context.Context, from, to time.Time) (*models.MonitoringMetrics, error)
}

// InteractionStore lists classified chat messages
type InteractionStore interface {
	ListInteractions(ctx context.Context, userID string, limit, offset int) ([]models.ChatInteraction, error)
	CountInteractions(ctx context.Context, userID string) (int, error)
}

// InteractionListResponse is a page of chat interactions
// @Description Paginated chat interactions
type InteractionListResponse struct {
	Interactions []models.ChatInteraction `json:"interactions"`
	Total        int                      `json:"total"`
	Limit        int                      `json:"limit"`
	Offset       int                      `json:"offset"`
}

// AnalyticsHandler returns analytics summary for a given period
// @Summary Get analytics summary
// @Description Get analytics summary for a specified time period (today, yesterday, last_7_days, last_30_days)
// @Tags analytics
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param period query string false "Time period (today, yesterday, last_7_days, last_30_days)" default(yesterday)
// @Success 200 {object} models.AnalyticsResponse
// @Failure 500 {object} models.AnalyticsResponse
// @Router /api/analytics [get]
func AnalyticsHandler(analyticsService SummaryProvider, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("handler", "analytics").Logger()

	return func(c echo.Context) error {
		period := c.QueryParam("period")
		if period == "" {
			period = analytics.PeriodYesterday
		}

		summary, err := analyticsService.GetSummary(c.Request().Context(), period)
		if err != nil {
			logger.Error().Err(err).Str("period", period).Msg("Failed to get analytics summary")
			return c.JSON(http.StatusInternalServerError, models.AnalyticsResponse{
				Success: false,
				Error:   "Failed to get analytics summary",
			})
		}

		return c.JSON(http.StatusOK, models.AnalyticsResponse{
			Success: true,
			Summary: summary,
		})
	}
}

// FeedbackHandler records whether a ticket was routed correctly
// @Summary Submit classification feedback
// @Description Compare the ticket's predicted category and department with the correct ones
// @Tags monitoring
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Param request body models.FeedbackRequest true "Verdict"
// @Success 201 {object} models.ClassificationFeedback
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/tickets/{id}/feedback [post]
func FeedbackHandler(tickets TicketReader, feedback FeedbackStore, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("handler", "feedback").Logger()

	return func(c echo.Context) error {
		var req models.FeedbackRequest
		if ok, err := bindRequest(c, &req); !ok {
			return err
		}

		ctx := c.Request().Context()
		ticket, err := tickets.GetTicket(ctx, c.Param("id"))
		if err != nil {
			return storeError(c, err, ticketNotFound)
		}

		verdict := &models.ClassificationFeedback{
			TicketID:            ticket.ID,
			PredictedCategory:   ticket.Category,
			PredictedDepartment: ticket.Department,
			CorrectCategory:     req.CorrectCategory,
			CorrectDepartment:   req.CorrectDepartment,
			Comment:             req.Comment,
			FeedbackBy:          actor(c),
		}
		if err := feedback.SubmitFeedback(ctx, verdict); err != nil {
			logger.Error().Err(err).Str("ticket_id", ticket.ID).Msg("Failed to submit feedback")
			return storeError(c, err, ticketNotFound)
		}
		return c.JSON(http.StatusCreated, verdict)
	}
}

// MetricsHandler reports classifier accuracy and the auto-resolve rate
// @Summary Monitoring metrics
// @Tags monitoring
// @Produce json
// @Security BearerAuth
// @Param period query string false "Time period (today, yesterday, last_7_days, last_30_days)" default(last_7_days)
// @Success 200 {object} models.MonitoringMetrics
// @Failure 500 {object} models.ErrorResponse
// @Router /api/monitoring/metrics [get]
func MetricsHandler(feedback FeedbackStore, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("handler", "metrics").Logger()

	return func(c echo.Context) error {
		period := c.QueryParam("period")
		if period == "" {
			period = analytics.PeriodLast7Days
		}
		_, from, to := analytics.PeriodRange(period, time.Now())

		metrics, err := feedback.Metrics(c.Request().Context(), from, to)
		if err != nil {
			logger.Error().Err(err).Str("period", period).Msg("Failed to compute metrics")
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to compute metrics"})
		}
		return c.JSON(http.StatusOK, metrics)
	}
}

// InteractionsHandler lists classified chat messages
// @Summary List chat interactions
// @Tags monitoring
// @Produce json
// @Security BearerAuth
// @Param user_id query string false "Customer id"
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} InteractionListResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/monitoring/interactions [get]
func InteractionsHandler(store InteractionStore, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("handler", "interactions").Logger()

	return func(c echo.Context) error {
		ctx := c.Request().Context()
		limit, offset := pagination(c)
		userID := c.QueryParam("user_id")

		interactions, err := store.ListInteractions(ctx, userID, limit, offset)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to list interactions")
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to list interactions"})
		}
		total, err := store.CountInteractions(ctx, userID)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to count interactions")
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to list interactions"})
		}

		return c.JSON(http.StatusOK, InteractionListResponse{
			Interactions: interactions,
			Total:        total,
			Limit:        limit,
			Offset:       offset,
		})
	}
}
