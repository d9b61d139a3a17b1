// Package channel connects messenger bots to the shared classifier. Each adapter
// keeps a per-sender session and relays replies produced by Conversation.
package channel

import (
	"context"
	"strings"
	"sync"
	"time"

	"helpdesk/internal/classifier"
	"helpdesk/internal/models"
	"helpdesk/internal/session"

	"github.com/rs/zerolog"
)

// Replies sent without asking the classifier
const (
	WelcomeMessage = "Здравствуйте! Опишите ваш вопрос или проблему, и мы постараемся помочь."
	ErrorMessage   = "Извините, сейчас не удаётся обработать ваш запрос. Попробуйте, пожалуйста, позже."
)

// classifyTimeout bounds one classification including embedding and completion
const classifyTimeout = 2 * time.Minute

var resetCommands = map[string]bool{
	"/start": true,
	"/reset": true,
	"/new":   true,
}

// Classifier answers one message given the conversation so far
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) (*classifier.Result, error)
}

// Channel is a running messenger adapter
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// Conversation turns inbound messages into replies, keeping the sender's history
type Conversation struct {
	sessions   session.Store
	classifier Classifier
	source     models.TicketSource
	logger     zerolog.Logger

	mu     sync.Mutex
	queues map[string][]message // pending messages per sender, removed once drained
}

type message struct {
	ctx     context.Context
	text    string
	deliver func(reply string)
}

// NewConversation creates a conversation handler for one channel
func NewConversation(sessions session.Store, c Classifier, source models.TicketSource, logger zerolog.Logger) *Conversation {
	return &Conversation{
		sessions:   sessions,
		classifier: c,
		source:     source,
		logger:     logger.With().Str("component", "channel").Str("channel", string(source)).Logger(),
		queues:     make(map[string][]message),
	}
}

// Submit queues a message from senderID and returns at once. Messages of one sender are
// answered one at a time in the order they were submitted, and deliver is called with
// each reply. Messages whose context is done by their turn are dropped.
func (c *Conversation) Submit(ctx context.Context, senderID, text string, deliver func(reply string)) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	msg := message{ctx: ctx, text: text, deliver: deliver}

	c.mu.Lock()
	defer c.mu.Unlock()

	if pending, busy := c.queues[senderID]; busy {
		c.queues[senderID] = append(pending, msg)
		return
	}
	c.queues[senderID] = []message{}
	go c.drain(senderID, msg)
}

// Reply handles one message and waits for the answer. An empty reply means nothing
// should be sent.
func (c *Conversation) Reply(ctx context.Context, senderID, text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	done := make(chan string, 1)
	c.Submit(ctx, senderID, text, func(reply string) { done <- reply })

	select {
	case reply := <-done:
		return reply
	case <-ctx.Done():
		return ""
	}
}

func (c *Conversation) drain(senderID string, msg message) {
	for {
		if msg.ctx.Err() == nil {
			reply := c.reply(msg.ctx, senderID, msg.text)
			if msg.deliver != nil {
				msg.deliver(reply)
			}
		}

		c.mu.Lock()
		pending := c.queues[senderID]
		if len(pending) == 0 {
			delete(c.queues, senderID)
			c.mu.Unlock()
			return
		}
		msg = pending[0]
		c.queues[senderID] = pending[1:]
		c.mu.Unlock()
	}
}

// activeSenders is the number of senders with a message in flight
func (c *Conversation) activeSenders() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queues)
}

func (c *Conversation) reply(ctx context.Context, senderID, text string) string {
	if resetCommands[strings.ToLower(text)] {
		if err := c.sessions.Reset(ctx, senderID); err != nil {
			c.logger.Warn().Err(err).Str("sender", senderID).Msg("Failed to reset session")
		}
		return WelcomeMessage
	}

	history, err := c.sessions.History(ctx, senderID)
	if err != nil {
		c.logger.Warn().Err(err).Str("sender", senderID).Msg("Failed to load session, continuing without history")
		history = nil
	}
	clientType, err := c.sessions.ClientType(ctx, senderID)
	if err != nil {
		clientType = models.ClientUnknown
	}

	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	result, err := c.classifier.Classify(ctx, classifier.Request{
		Message:    text,
		History:    history,
		UserID:     senderID,
		Source:     c.source,
		ClientType: clientType,
	})
	if err != nil {
		c.logger.Error().Err(err).Str("sender", senderID).Msg("Failed to classify message")
		return ErrorMessage
	}

	now := time.Now().UTC()
	turns := []models.ConversationTurn{
		{Role: models.RoleUser, Content: text, Timestamp: now},
		{Role: models.RoleAssistant, Content: result.Answer, Timestamp: now},
	}
	if err := c.sessions.Append(ctx, senderID, turns...); err != nil {
		c.logger.Warn().Err(err).Str("sender", senderID).Msg("Failed to save session")
	}
	if result.ClientType != models.ClientUnknown && result.ClientType != clientType {
		if err := c.sessions.SetClientType(ctx, senderID, result.ClientType); err != nil {
			c.logger.Warn().Err(err).Str("sender", senderID).Msg("Failed to save client type")
		}
	}

	if result.TicketCreated {
		c.logger.Info().Str("sender", senderID).Str("ticket_id", result.TicketID).Msg("Ticket created from conversation")
	}

	return result.Answer
}

// AllowList restricts which senders a bot answers; an empty list allows everyone
type AllowList map[string]bool

// NewAllowList builds an allow list, ignoring blanks and a leading "+"
func NewAllowList(ids []string) AllowList {
	list := AllowList{}
	for _, id := range ids {
		id = strings.TrimPrefix(strings.TrimSpace(id), "+")
		if id != "" {
			list[id] = true
		}
	}
	return list
}

// IsAllowed reports whether senderID may talk to the bot
func (a AllowList) IsAllowed(senderID string) bool {
	if len(a) == 0 {
		return true
	}
	return a[strings.TrimPrefix(senderID, "+")]
}
