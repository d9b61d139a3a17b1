// Package classifier answers help desk questions from the knowledge base and decides
// when a conversation has to be escalated to a ticket. Every channel goes through Service.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"helpdesk/internal/categorizer"
	"helpdesk/internal/models"
	"helpdesk/internal/utils"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// RetrievalLimit is the number of chunks retrieved per question
const RetrievalLimit = 6

// DefaultUserID is used when the caller is not identified
const DefaultUserID = "anonymous"

// ErrEmptyMessage is returned for blank questions
var ErrEmptyMessage = errors.New("empty message")

// Embedder turns the question into a query vector
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher retrieves knowledge base chunks by vector similarity
type Searcher interface {
	Search(ctx context.Context, embedding []float32, limit int, sourceType string) ([]models.RetrievedChunk, error)
}

// Completer is the chat completion collaborator
type Completer interface {
	CreateChatCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, maxTokens int, temperature float32) (*openai.ChatCompletionResponse, error)
	CreateStructuredCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, maxTokens int, temperature float32, schema *openai.ChatCompletionResponseFormatJSONSchema) (*openai.ChatCompletionResponse, error)
	GetGPTModel() string
}

// TicketCreator persists escalated conversations; a nil error means the write was acknowledged
type TicketCreator interface {
	Open(ctx context.Context, ticket *models.Ticket) error
}

// InteractionRecorder logs every classified message
type InteractionRecorder interface {
	RecordInteraction(ctx context.Context, interaction models.ChatInteraction) error
}

// Tracker receives usage analytics
type Tracker interface {
	TrackConversation(ctx context.Context, source models.TicketSource, tokens int, model string) error
	TrackClientTypeAsked(ctx context.Context, source models.TicketSource) error
	TrackTicketFailure(ctx context.Context, source models.TicketSource) error
}

// Dependencies wires the collaborators. Interactions and Tracker are optional.
type Dependencies struct {
	Embedder     Embedder
	Searcher     Searcher
	Completer    Completer
	Tickets      TicketCreator
	Interactions InteractionRecorder
	Tracker      Tracker
}

// Options tune the classifier
type Options struct {
	SourceType       string // Knowledge partition searched for answers
	StructuredOutput bool   // Ask for a JSON schema response instead of a marker block
}

// Request is one user message with the conversation so far
type Request struct {
	Message    string
	History    []models.ConversationTurn
	UserID     string
	Language   string
	Source     models.TicketSource
	ClientType models.ClientType // Skips detection when set
	NoTicket   bool              // Categorize an escalation without persisting it
}

// Result is the reply for one message
type Result struct {
	Answer             string
	Sources            []models.Source
	Confidence         float64
	NeedsTicket        bool
	Reason             string
	TicketCreated      bool
	TicketFailed       bool
	TicketID           string
	RequiresClientType bool
	ClientType         models.ClientType
	Subject            string
	Categorization     *categorizer.Categorization
}

// ChatResponse converts the result to the public API shape
func (r *Result) ChatResponse() models.ChatResponse {
	return models.ChatResponse{
		Answer:             r.Answer,
		Sources:            r.Sources,
		Confidence:         r.Confidence,
		TicketCreated:      r.TicketCreated,
		TicketID:           r.TicketID,
		RequiresClientType: r.RequiresClientType,
		ClientType:         r.ClientType,
	}
}

// Service is the shared chat classifier
type Service struct {
	deps       Dependencies
	sourceType string
	structured bool
	logger     zerolog.Logger
}

// NewService creates a classifier
func NewService(deps Dependencies, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		deps:       deps,
		sourceType: opts.SourceType,
		structured: opts.StructuredOutput,
		logger:     logger.With().Str("component", "classifier").Logger(),
	}
}

// Classify answers the message, escalating it to a ticket when the knowledge base cannot
func (s *Service) Classify(ctx context.Context, req Request) (*Result, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if req.UserID == "" {
		req.UserID = DefaultUserID
	}
	if req.Source == "" {
		req.Source = models.SourceChat
	}

	clientType := req.ClientType
	if clientType == models.ClientUnknown {
		clientType = ExtractClientType(message, req.History)
	}

	if clientType == models.ClientUnknown {
		result := &Result{
			Answer:             ClientTypeQuestion,
			Sources:            []models.Source{},
			RequiresClientType: true,
		}
		if s.deps.Tracker != nil {
			if err := s.deps.Tracker.TrackClientTypeAsked(ctx, req.Source); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to track client type question")
			}
		}
		s.record(ctx, req, message, result)
		return result, nil
	}

	embedding, err := s.deps.Embedder.EmbedQuery(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to embed message: %w", err)
	}

	chunks, err := s.deps.Searcher.Search(ctx, embedding, RetrievalLimit, s.sourceType)
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge base: %w", err)
	}

	if len(chunks) == 0 {
		result := &Result{
			Answer:     NoInformationAnswer,
			Sources:    []models.Source{},
			ClientType: clientType,
		}
		s.record(ctx, req, message, result)
		return result, nil
	}

	maxSimilarity := 0.0
	sources := make([]models.Source, 0, len(chunks))
	for _, chunk := range chunks {
		maxSimilarity = max(maxSimilarity, chunk.Similarity)
		sources = append(sources, chunk.ToSource())
	}

	answer, decision, err := s.complete(ctx, req, message, clientType, chunks)
	if err != nil {
		return nil, err
	}

	if clientType != models.ClientCorporate {
		answer = StripClientTypeWording(answer)
	}
	answer = StripSources(answer)

	verdict := resolve(decision, maxSimilarity, technicalText(message, req.History))
	if verdict.suppressed {
		answer = stripNoInfo(answer)
		s.logger.Debug().
			Float64("max_similarity", maxSimilarity).
			Msg("Ticket request overridden, relevant context available")
	}

	result := &Result{
		Answer:      answer,
		Sources:     sources,
		Confidence:  verdict.confidence,
		NeedsTicket: verdict.escalate,
		Reason:      verdict.reason,
		ClientType:  clientType,
	}

	if verdict.escalate {
		s.escalate(ctx, req, message, result)
	}

	s.record(ctx, req, message, result)
	return result, nil
}

// complete asks the model for an answer and the escalation decision
func (s *Service) complete(ctx context.Context, req Request, message string, clientType models.ClientType, chunks []models.RetrievedChunk) (string, *Decision, error) {
	completer := s.deps.Completer

	if s.structured {
		messages := buildMessages(message, req.History, clientType, chunks, true)
		resp, err := completer.CreateStructuredCompletion(ctx, messages, maxTokens, temperature, responseFormat())
		if err == nil {
			s.trackUsage(ctx, req.Source, resp)
			content := resp.Choices[0].Message.Content
			if answer, decision, ok := parseStructured(content); ok {
				return StripMarker(answer), decision, nil
			}
			s.logger.Warn().Msg("Structured completion was not valid JSON, parsing as text")
			decision, _ := ParseMarker(content)
			return StripMarker(content), decision, nil
		}
		s.logger.Warn().Err(err).Msg("Structured completion failed, retrying as text")
	}

	messages := buildMessages(message, req.History, clientType, chunks, false)
	resp, err := completer.CreateChatCompletion(ctx, messages, maxTokens, temperature)
	if err != nil {
		return "", nil, fmt.Errorf("failed to complete answer: %w", err)
	}
	s.trackUsage(ctx, req.Source, resp)

	content := resp.Choices[0].Message.Content
	decision, _ := ParseMarker(content)
	return StripMarker(content), decision, nil
}

// escalate categorizes the conversation and opens a ticket
func (s *Service) escalate(ctx context.Context, req Request, message string, result *Result) {
	categorization := categorizer.Categorize(message, req.History, result.ClientType)
	result.Categorization = &categorization
	result.Subject = categorizer.Subject(message)

	if req.NoTicket || s.deps.Tickets == nil {
		return
	}

	ticket := &models.Ticket{
		UserID:      req.UserID,
		ClientType:  result.ClientType,
		Language:    utils.ResolveLanguage(req.Language, message),
		Source:      req.Source,
		Subject:     result.Subject,
		Category:    categorization.Category,
		Subcategory: categorization.Subcategory,
		Department:  categorization.Department,
		Priority:    categorization.Priority,
		Confidence:  result.Confidence,
		Content:     Transcript(message, req.History),
		Status:      models.StatusOpen,
	}

	if err := s.deps.Tickets.Open(ctx, ticket); err != nil {
		s.logger.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to create ticket")
		result.TicketFailed = true
		result.Answer = appendNotice(stripConfirmation(result.Answer), TicketFailureNotice)
		if s.deps.Tracker != nil {
			if err := s.deps.Tracker.TrackTicketFailure(ctx, req.Source); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to track ticket failure")
			}
		}
		return
	}

	result.TicketCreated = true
	result.TicketID = ticket.ID
	if !strings.Contains(result.Answer, confirmationMarker) {
		result.Answer = appendNotice(result.Answer, TicketConfirmation)
	}

	s.logger.Info().
		Str("ticket_id", ticket.ID).
		Str("category", ticket.Category).
		Str("priority", string(ticket.Priority)).
		Msg("Ticket created from conversation")
}

func (s *Service) trackUsage(ctx context.Context, source models.TicketSource, resp *openai.ChatCompletionResponse) {
	if s.deps.Tracker == nil {
		return
	}
	if err := s.deps.Tracker.TrackConversation(ctx, source, resp.Usage.TotalTokens, s.deps.Completer.GetGPTModel()); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to track conversation")
	}
}

func (s *Service) record(ctx context.Context, req Request, message string, result *Result) {
	if s.deps.Interactions == nil {
		return
	}

	interaction := models.ChatInteraction{
		UserID:        req.UserID,
		Source:        req.Source,
		Message:       message,
		Answer:        result.Answer,
		Confidence:    result.Confidence,
		TicketCreated: result.TicketCreated,
	}
	if result.TicketID != "" {
		interaction.TicketID = &result.TicketID
	}
	if result.Categorization != nil {
		interaction.Category = &result.Categorization.Category
	}

	if err := s.deps.Interactions.RecordInteraction(ctx, interaction); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record chat interaction")
	}
}

// technicalText is the conversation scanned for hands-on work keywords
func technicalText(message string, history []models.ConversationTurn) string {
	parts := make([]string, 0, len(history)+1)
	parts = append(parts, message)
	for _, turn := range history {
		parts = append(parts, turn.Content)
	}
	return strings.Join(parts, " ")
}
