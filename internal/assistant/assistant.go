// Package assistant runs the model steps of ticket processing: classification,
// summarization, knowledge base retrieval and a suggested answer.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"helpdesk/internal/categorizer"
	"helpdesk/internal/models"
	"helpdesk/internal/utils"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// AutoResolveThreshold is the confidence both the classification and the answer must exceed
const AutoResolveThreshold = 0.7

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 20
	summaryFallbackLen = 200
	defaultSubcategory = "general"
)

// FallbackAnswer is suggested when the model could not draft a reply
const FallbackAnswer = "Спасибо за обращение. Мы рассмотрим вашу заявку в ближайшее время."

// ErrEmptyQuery is returned for blank knowledge base searches
var ErrEmptyQuery = errors.New("search query is required")

var errEmptyCompletion = errors.New("completion was empty")

// Completer is the chat completion collaborator
type Completer interface {
	CreateChatCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, maxTokens int, temperature float32) (*openai.ChatCompletionResponse, error)
	CreateStructuredCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, maxTokens int, temperature float32, schema *openai.ChatCompletionResponseFormatJSONSchema) (*openai.ChatCompletionResponse, error)
}

// Embedder turns text into a query vector
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher retrieves knowledge base chunks by vector similarity
type Searcher interface {
	Search(ctx context.Context, embedding []float32, limit int, sourceType string) ([]models.RetrievedChunk, error)
}

// Service is the ticket assistant
type Service struct {
	completer  Completer
	embedder   Embedder
	searcher   Searcher
	sourceType string
	logger     zerolog.Logger
}

// NewService creates an assistant searching the sourceType knowledge partition
func NewService(completer Completer, embedder Embedder, searcher Searcher, sourceType string, logger zerolog.Logger) *Service {
	return &Service{
		completer:  completer,
		embedder:   embedder,
		searcher:   searcher,
		sourceType: sourceType,
		logger:     logger.With().Str("component", "assistant").Logger(),
	}
}

// Analyze runs every step over the ticket. Failed model steps fall back to
// safe defaults, so only a cancelled context is reported as an error.
func (s *Service) Analyze(ctx context.Context, ticket *models.Ticket) (*models.TicketAnalysis, error) {
	text := ticketText(ticket)

	classification := s.Classify(ctx, text)
	summary := s.Summarize(ctx, ticket.Content)

	chunks, err := s.Search(ctx, text, defaultSearchLimit)
	if err != nil {
		s.logger.Warn().Err(err).Str("ticket_id", ticket.ID).Msg("Knowledge base retrieval failed")
	}
	answer := s.Answer(ctx, text, classification.Language, chunks)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	analysis := &models.TicketAnalysis{
		Classification: classification,
		Summary:        summary,
		Answer:         answer,
		Sources:        chunks,
		AutoResolve:    ShouldAutoResolve(classification, answer),
	}

	s.logger.Info().
		Str("ticket_id", ticket.ID).
		Str("category", classification.Category).
		Float64("classification_confidence", classification.Confidence).
		Float64("answer_confidence", answer.Confidence).
		Int("chunks", len(chunks)).
		Bool("auto_resolve", analysis.AutoResolve).
		Msg("Ticket analyzed")

	return analysis, nil
}

// ShouldAutoResolve reports whether the ticket can be closed with the suggested answer
func ShouldAutoResolve(classification models.TicketClassification, answer models.SuggestedAnswer) bool {
	return classification.AutoResolveCandidate &&
		classification.Confidence > AutoResolveThreshold &&
		answer.Confidence > AutoResolveThreshold &&
		!answer.NeedOnSite
}

// Classify asks the model to route the ticket
func (s *Service) Classify(ctx context.Context, text string) models.TicketClassification {
	var classification models.TicketClassification
	if err := s.structured(ctx, classifyMessages(text), classifyMaxTokens, "ticket_classification", &classificationSchema, &classification); err != nil {
		s.logger.Warn().Err(err).Msg("Ticket classification failed, using defaults")
		return fallbackClassification(text)
	}
	return normalizeClassification(classification, text)
}

// Summarize condenses the ticket for engineers
func (s *Service) Summarize(ctx context.Context, content string) string {
	resp, err := s.completer.CreateChatCompletion(ctx, summaryMessages(content), summaryMaxTokens, temperature)
	if err == nil {
		if summary := strings.TrimSpace(firstContent(resp)); summary != "" {
			return summary
		}
		err = errEmptyCompletion
	}
	s.logger.Warn().Err(err).Msg("Ticket summary failed, truncating content")
	return truncate(strings.TrimSpace(content), summaryFallbackLen)
}

// Answer drafts a reply from the retrieved chunks
func (s *Service) Answer(ctx context.Context, text, language string, chunks []models.RetrievedChunk) models.SuggestedAnswer {
	var answer models.SuggestedAnswer
	if err := s.structured(ctx, answerMessages(text, language, chunks), answerMaxTokens, "ticket_answer", &answerSchema, &answer); err != nil {
		s.logger.Warn().Err(err).Msg("Suggested answer failed")
		return models.SuggestedAnswer{Answer: FallbackAnswer}
	}

	answer.Answer = strings.TrimSpace(answer.Answer)
	if answer.Answer == "" {
		return models.SuggestedAnswer{Answer: FallbackAnswer}
	}
	answer.Confidence = clamp(answer.Confidence)
	return answer
}

// Search embeds the query and returns up to limit chunks; limit defaults to 5 and is capped at 20
func (s *Service) Search(ctx context.Context, query string, limit int) ([]models.RetrievedChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	chunks, err := s.searcher.Search(ctx, embedding, limit, s.sourceType)
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge base: %w", err)
	}
	return chunks, nil
}

func (s *Service) structured(ctx context.Context, messages []openai.ChatCompletionMessage, maxTokens int, name string, schema *jsonschema.Definition, target any) error {
	resp, err := s.completer.CreateStructuredCompletion(ctx, messages, maxTokens, temperature, schemaFormat(name, schema))
	if err != nil {
		return err
	}
	content := strings.TrimSpace(firstContent(resp))
	if content == "" {
		return errEmptyCompletion
	}
	if err := json.Unmarshal([]byte(content), target); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

func normalizeClassification(c models.TicketClassification, text string) models.TicketClassification {
	c.Language = utils.ResolveLanguage(c.Language, text)
	if !slices.Contains(categories, c.Category) {
		c.Category = categorizer.CategoryOther
	}
	if !slices.Contains(departments, c.Department) {
		c.Department = categorizer.DepartmentTechSupport
	}
	if !c.Priority.Valid() {
		c.Priority = models.PriorityMedium
	}
	c.Subcategory = strings.ToLower(strings.TrimSpace(c.Subcategory))
	if c.Subcategory == "" {
		c.Subcategory = defaultSubcategory
	}
	c.Confidence = clamp(c.Confidence)
	return c
}

func fallbackClassification(text string) models.TicketClassification {
	return models.TicketClassification{
		Language:    utils.DetectLanguage(text).Code,
		Category:    categorizer.CategoryOther,
		Subcategory: defaultSubcategory,
		Department:  categorizer.DepartmentTechSupport,
		Priority:    models.PriorityMedium,
	}
}

func ticketText(ticket *models.Ticket) string {
	if ticket.Subject == "" {
		return ticket.Content
	}
	return ticket.Subject + "\n\n" + ticket.Content
}

func firstContent(resp *openai.ChatCompletionResponse) string {
	if resp == nil || len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}

func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + "..."
}

func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}
