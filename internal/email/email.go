package email

import (
	"fmt"
	"time"

	"helpdesk/internal/models"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Email types reported to analytics
const (
	TypeSLABreach      = "sla_breach"
	TypeTicketCreated  = "ticket_created"
	defaultFromAddress = "noreply@helpdesk.local"
)

type sender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// EmailService handles sending emails via SendGrid
type EmailService struct {
	apiKey       string
	supportEmail string
	client       sender
	now          func() time.Time
}

// NewEmailService creates a new email service instance
func NewEmailService(apiKey, supportEmail string) *EmailService {
	if supportEmail == "" {
		supportEmail = "support@helpdesk.local"
	}
	service := &EmailService{
		apiKey:       apiKey,
		supportEmail: supportEmail,
		now:          time.Now,
	}
	if apiKey != "" {
		service.client = sendgrid.NewSendClient(apiKey)
	}
	return service
}

// Enabled reports whether a SendGrid key is configured
func (es *EmailService) Enabled() bool {
	return es.client != nil
}

// SupportEmail returns the address notices are sent to
func (es *EmailService) SupportEmail() string {
	return es.supportEmail
}

// SendSLABreachNotice tells the support team that a ticket missed its SLA
func (es *EmailService) SendSLABreachNotice(ticket *models.Ticket, reason string) error {
	subject := fmt.Sprintf("[%s] SLA breach: ticket %s", ticket.Priority, ticket.ID)
	body := fmt.Sprintf(`A ticket missed its service level deadline.

Ticket: %s
Subject: %s
Department: %s
Priority: %s
Status: %s
Reason: %s
Created: %s
Timestamp: %s

Content:
%s`, ticket.ID, ticket.Subject, ticket.Department, ticket.Priority, ticket.Status, reason,
		ticket.CreatedAt.Format(time.RFC3339), es.now().UTC().Format(time.RFC3339), ticket.Content)

	return es.send(subject, body)
}

// SendTicketCreatedNotice tells the support team about a critical ticket opened from a conversation
func (es *EmailService) SendTicketCreatedNotice(ticket *models.Ticket) error {
	subject := fmt.Sprintf("[%s] New ticket from %s: %s", ticket.Priority, ticket.Source, ticket.Subject)
	body := fmt.Sprintf(`A new ticket was registered by the help desk assistant.

Ticket: %s
Category: %s / %s
Department: %s
Priority: %s
Client type: %s
Confidence: %.2f

Conversation:
%s`, ticket.ID, ticket.Category, ticket.Subcategory, ticket.Department, ticket.Priority,
		ticket.ClientType, ticket.Confidence, ticket.Content)

	return es.send(subject, body)
}

// SendReply answers a customer from the support mailbox, threading it under inReplyTo
func (es *EmailService) SendReply(to, subject, body, inReplyTo, references string) error {
	from := mail.NewEmail("Help Desk", es.supportEmail)
	message := mail.NewV3MailInit(from, subject, mail.NewEmail("", to), mail.NewContent("text/plain", body))
	if inReplyTo != "" {
		message.SetHeader("In-Reply-To", inReplyTo)
	}
	if references != "" {
		message.SetHeader("References", references)
	}
	return es.deliver(message)
}

func (es *EmailService) send(subject, body string) error {
	from := mail.NewEmail("Help Desk", defaultFromAddress)
	to := mail.NewEmail("Support Team", es.supportEmail)
	return es.deliver(mail.NewSingleEmail(from, subject, to, body, body))
}

func (es *EmailService) deliver(message *mail.SGMailV3) error {
	if es.client == nil {
		return fmt.Errorf("SendGrid API key not configured")
	}

	response, err := es.client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("SendGrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}

	return nil
}
