package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"helpdesk/internal/classifier"
	"helpdesk/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// EmptyMessageError is the reply to a blank chat message
const EmptyMessageError = "Пустой запрос"

// Classifier is the shared chat classifier
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) (*classifier.Result, error)
}

// ChatHandler answers a chat message from the knowledge base, opening a ticket when needed
// @Summary Ask the help desk
// @Description Answer a question from the knowledge base. The first message may be answered with a client type question; a ticket is opened when the question cannot be answered.
// @Tags chat
// @Accept json
// @Produce json
// @Param request body models.ChatRequest true "Chat request"
// @Success 200 {object} models.ChatResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/chat [post]
func ChatHandler(service Classifier, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("handler", "chat").Logger()

	return func(c echo.Context) error {
		var req models.ChatRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		}
		if strings.TrimSpace(req.Message) == "" {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: EmptyMessageError})
		}

		language := req.Language
		if language == "" {
			language = "ru"
		}
		source := req.Source
		if !source.Valid() {
			source = models.SourceChat
		}

		clientType := req.ClientType
		if clientType != models.ClientCorporate && clientType != models.ClientPrivate {
			clientType = models.ClientUnknown
		}

		result, err := service.Classify(c.Request().Context(), classifier.Request{
			Message:    req.Message,
			History:    req.History,
			UserID:     req.UserID,
			Language:   language,
			Source:     source,
			ClientType: clientType,
		})
		if err != nil {
			if errors.Is(err, classifier.ErrEmptyMessage) {
				return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: EmptyMessageError})
			}
			logger.Error().Err(err).Str("user_id", req.UserID).Msg("Chat classification failed")
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Не удалось обработать запрос"})
		}

		return c.JSON(http.StatusOK, result.ChatResponse())
	}
}

// WhatsAppAnalyzeHandler classifies a message for an external WhatsApp bot
// @Summary Analyze a WhatsApp message
// @Description Tell an external bot whether a message can be answered right away, with the categorization used when it cannot. Guarded by X-WhatsApp-API-Key when configured.
// @Tags whatsapp
// @Accept json
// @Produce json
// @Param X-WhatsApp-API-Key header string false "Bot API key"
// @Param request body models.WhatsAppAnalyzeRequest true "Message"
// @Success 200 {object} models.WhatsAppAnalyzeResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/whatsapp/analyze [post]
func WhatsAppAnalyzeHandler(service Classifier, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("handler", "whatsapp").Logger()

	return func(c echo.Context) error {
		var req models.WhatsAppAnalyzeRequest
		if ok, err := bindRequest(c, &req); !ok {
			return err
		}

		result, err := service.Classify(c.Request().Context(), classifier.Request{
			Message:  req.Text,
			History:  req.ConversationHistory,
			UserID:   req.WhatsAppNumber,
			Source:   models.SourceWhatsApp,
			NoTicket: !req.CreateTicket,
		})
		if err != nil {
			if errors.Is(err, classifier.ErrEmptyMessage) {
				return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: EmptyMessageError})
			}
			logger.Error().Err(err).Str("whatsapp_number", req.WhatsAppNumber).Msg("WhatsApp analysis failed")
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Не удалось обработать запрос"})
		}

		resp := models.WhatsAppAnalyzeResponse{
			CanAnswer:          !result.NeedsTicket,
			Answer:             result.Answer,
			Priority:           string(models.PriorityMedium),
			Subject:            result.Subject,
			Confidence:         result.Confidence,
			TicketID:           result.TicketID,
			RequiresClientType: result.RequiresClientType,
		}
		if cat := result.Categorization; cat != nil {
			resp.Category = cat.Category
			resp.Subcategory = cat.Subcategory
			resp.Priority = string(cat.Priority)
			resp.Department = cat.Department
		}

		return c.JSON(http.StatusOK, resp)
	}
}
