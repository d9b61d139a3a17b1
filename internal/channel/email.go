package channel

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"helpdesk/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const (
	// SendGrid retries failed webhook posts for up to three days
	emailDedupeTTL      = 72 * time.Hour
	emailShutdownWait   = 10 * time.Second
	emailMaxFormMemory  = 10 << 20
	defaultEmailSubject = "Обращение в службу поддержки"
)

// ReplySender delivers an answer to a customer mailbox
type ReplySender interface {
	SendReply(to, subject, body, inReplyTo, references string) error
}

// EmailConfig configures the SendGrid Inbound Parse webhook
type EmailConfig struct {
	Addr      string
	User      string
	Password  string // Basic auth is off when empty
	AllowFrom []string
	Mailbox   string // Our own address; mail from it is never answered
}

// EmailChannel answers customer mail posted by the SendGrid Inbound Parse webhook
type EmailChannel struct {
	conversation *Conversation
	sender       ReplySender
	allow        AllowList
	mailbox      string
	addr         string
	echo         *echo.Echo
	seen         *cache.Cache
	ctx          context.Context
	cancel       context.CancelFunc
	logger       zerolog.Logger
}

// NewEmail creates the webhook server; it listens once started
func NewEmail(cfg EmailConfig, sender ReplySender, conversation *Conversation, logger zerolog.Logger) *EmailChannel {
	allow := make([]string, 0, len(cfg.AllowFrom))
	for _, address := range cfg.AllowFrom {
		allow = append(allow, strings.ToLower(address))
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8025"
	}

	e := &EmailChannel{
		conversation: conversation,
		sender:       sender,
		allow:        NewAllowList(allow),
		mailbox:      strings.ToLower(strings.TrimSpace(cfg.Mailbox)),
		addr:         cfg.Addr,
		seen:         cache.New(emailDedupeTTL, time.Hour),
		ctx:          context.Background(),
		logger:       logger.With().Str("component", "email").Logger(),
	}

	e.echo = echo.New()
	e.echo.HideBanner = true
	e.echo.HidePort = true
	e.echo.Use(middleware.Recover())
	e.echo.Use(middleware.BodyLimit("20M"))
	if cfg.Password != "" {
		e.echo.Use(middleware.BasicAuth(func(user, password string, _ echo.Context) (bool, error) {
			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(cfg.User)) == 1
			passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(cfg.Password)) == 1
			return userOK && passwordOK, nil
		}))
	}
	e.echo.POST("/inbound", e.inbound)
	return e
}

// Name returns the channel name
func (e *EmailChannel) Name() string {
	return string(models.SourceEmail)
}

// Handler exposes the webhook routes
func (e *EmailChannel) Handler() http.Handler {
	return e.echo
}

// Start listens for webhook posts in the background
func (e *EmailChannel) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	go func() {
		if err := e.echo.Start(e.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error().Err(err).Str("addr", e.addr).Msg("Email webhook server failed")
		}
	}()

	e.logger.Info().Str("addr", e.addr).Msg("Email webhook listening")
	return nil
}

// Stop shuts the webhook server down and drops queued replies
func (e *EmailChannel) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), emailShutdownWait)
	defer cancel()
	if err := e.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown email webhook: %w", err)
	}
	e.logger.Info().Msg("Email channel stopped")
	return nil
}

// inbound acknowledges every parsable post so SendGrid does not retry it
func (e *EmailChannel) inbound(c echo.Context) error {
	msg, err := parseInbound(c.Request())
	if err != nil {
		e.logger.Warn().Err(err).Msg("Rejected inbound email")
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid inbound email"})
	}

	e.Accept(msg)
	return c.NoContent(http.StatusOK)
}

// Accept queues msg for an answer. It reports false for duplicates and mail that must
// not be answered.
func (e *EmailChannel) Accept(msg *InboundEmail) bool {
	log := e.logger.With().Str("from", msg.From).Str("message_id", msg.MessageID).Logger()

	switch {
	case msg.AutoSubmitted:
		log.Debug().Msg("Skipped automatic email")
		return false
	case msg.From == e.mailbox:
		log.Debug().Msg("Skipped email from own mailbox")
		return false
	case !e.allow.IsAllowed(msg.From):
		log.Debug().Msg("Rejected email from sender outside allow list")
		return false
	case msg.Body == "":
		log.Debug().Msg("Skipped email without new text")
		return false
	}
	if msg.MessageID != "" {
		if err := e.seen.Add(msg.MessageID, struct{}{}, cache.DefaultExpiration); err != nil {
			log.Debug().Msg("Skipped redelivered email")
			return false
		}
	}

	text := msg.Body
	if msg.Subject != "" && !isReplySubject(msg.Subject) {
		text = msg.Subject + "\n\n" + msg.Body
	}

	subject := replySubject(msg.Subject)
	references := strings.TrimSpace(msg.References + " " + msg.MessageID)
	e.conversation.Submit(e.ctx, msg.From, text, func(reply string) {
		if reply == "" {
			return
		}
		if err := e.sender.SendReply(msg.From, subject, reply, msg.MessageID, references); err != nil {
			log.Error().Err(err).Msg("Failed to send email reply")
		}
	})
	return true
}

// parseInbound reads either the raw message of a "Send Raw" webhook or its parsed fields
func parseInbound(r *http.Request) (*InboundEmail, error) {
	if err := r.ParseMultipartForm(emailMaxFormMemory); err != nil {
		return nil, fmt.Errorf("failed to parse webhook form: %w", err)
	}

	if raw := r.FormValue("email"); raw != "" {
		return ParseEmail(strings.NewReader(raw))
	}

	headers := strings.TrimRight(r.FormValue("headers"), "\r\n")
	if headers == "" {
		headers = "From: " + r.FormValue("from") + "\r\nSubject: " + r.FormValue("subject")
	}
	header, err := mail.ReadMessage(strings.NewReader(headers + "\r\n\r\n"))
	if err != nil {
		return nil, fmt.Errorf("failed to read email headers: %w", err)
	}
	msg, err := fromHeader(header.Header)
	if err != nil {
		return nil, err
	}

	body := r.FormValue("text")
	if strings.TrimSpace(body) == "" {
		body = htmlText(r.FormValue("html"))
	}
	msg.Body = replyText(body)
	return msg, nil
}

func isReplySubject(subject string) bool {
	lower := strings.ToLower(subject)
	return strings.HasPrefix(lower, "re:") || strings.HasPrefix(lower, "на:") || strings.HasPrefix(lower, "aw:")
}

func replySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = defaultEmailSubject
	}
	if isReplySubject(subject) {
		return subject
	}
	return "Re: " + subject
}
