package handlers

import (
	"context"
	"errors"
	"net/http"

	"helpdesk/internal/assistant"
	"helpdesk/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// TicketProcessor runs a ticket through the AI assistant
type TicketProcessor interface {
	Process(ctx context.Context, id string, changedBy *string) (*models.Ticket, *models.TicketAnalysis, error)
}

// KnowledgeSearcher looks up knowledge base chunks for a free text query
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.RetrievedChunk, error)
}

// ProcessTicketHandler reclassifies and summarizes a ticket, auto-resolving it when possible
// @Summary Process a ticket with AI
// @Description Classify, summarize and draft an answer for the ticket from the knowledge base. Confident answers to self-service questions auto-resolve the ticket.
// @Tags tickets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Success 200 {object} models.AIProcessResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/tickets/{id}/process [post]
func ProcessTicketHandler(processor TicketProcessor, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("handler", "process_ticket").Logger()

	return func(c echo.Context) error {
		if processor == nil {
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "AI processing is not configured"})
		}

		id := c.Param("id")
		ticket, analysis, err := processor.Process(c.Request().Context(), id, actor(c))
		if err != nil {
			logger.Warn().Err(err).Str("ticket_id", id).Msg("Ticket processing failed")
			return storeError(c, err, ticketNotFound)
		}

		return c.JSON(http.StatusOK, processResponse(ticket, analysis))
	}
}

func processResponse(ticket *models.Ticket, analysis *models.TicketAnalysis) models.AIProcessResponse {
	resp := models.AIProcessResponse{
		TicketID:    ticket.ID,
		Status:      ticket.Status,
		Language:    ticket.Language,
		Category:    ticket.Category,
		Subcategory: ticket.Subcategory,
		Department:  ticket.Department,
		Priority:    ticket.Priority,
		Summary:     ticket.Summary,
		AutoResolve: analysis.AutoResolve,
		NeedOnSite:  ticket.NeedOnSite,
	}
	if analysis.AutoResolve {
		resp.SuggestedResponse = analysis.Answer.Answer
		resp.ResolutionSteps = analysis.Answer.ResolutionSteps
	}
	for _, chunk := range analysis.Sources {
		resp.Sources = append(resp.Sources, chunk.ToSource())
	}
	return resp
}

// KBSearchHandler returns the knowledge base chunks closest to a query
// @Summary Search the knowledge base
// @Description Semantic search over the knowledge base. k defaults to 5 and is capped at 20.
// @Tags knowledge
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.KBSearchRequest true "Search query"
// @Success 200 {object} models.KBSearchResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/kb/search [post]
func KBSearchHandler(searcher KnowledgeSearcher, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("handler", "kb_search").Logger()

	return func(c echo.Context) error {
		if searcher == nil {
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "Knowledge base search is not configured"})
		}

		var req models.KBSearchRequest
		if ok, err := bindRequest(c, &req); !ok {
			return err
		}

		chunks, err := searcher.Search(c.Request().Context(), req.Query, req.K)
		if err != nil {
			if errors.Is(err, assistant.ErrEmptyQuery) {
				return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
			}
			logger.Error().Err(err).Msg("Knowledge base search failed")
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
		}

		resp := models.KBSearchResponse{Query: req.Query, Results: make([]models.Source, 0, len(chunks))}
		for _, chunk := range chunks {
			resp.Results = append(resp.Results, chunk.ToSource())
		}
		return c.JSON(http.StatusOK, resp)
	}
}
