// Package tickets coordinates ticket lifecycle changes with SLA deadlines,
// lifecycle events and support notifications
package tickets

import (
	"context"
	"errors"
	"strings"
	"time"

	"helpdesk/internal/categorizer"
	"helpdesk/internal/email"
	"helpdesk/internal/events"
	"helpdesk/internal/models"
	"helpdesk/internal/sla"
	"helpdesk/internal/utils"

	"github.com/rs/zerolog"
)

// ErrInvalidTransition is returned for status changes the lifecycle does not allow
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrEmptyContent is returned when a manual ticket has no text
var ErrEmptyContent = errors.New("ticket content is required")

// ErrAnalyzerUnavailable is returned by Process when no model backend is configured
var ErrAnalyzerUnavailable = errors.New("ticket analysis is not configured")

// Store is the ticket persistence the desk works on
type Store interface {
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	UpdateTicket(ctx context.Context, id string, update models.TicketUpdate, changedBy *string, reason string) (*models.Ticket, error)
	ChangeStatus(ctx context.Context, id string, status models.TicketStatus, changedBy *string, reason string) (*models.Ticket, error)
	Assign(ctx context.Context, id string, department, assignee string, changedBy *string) (*models.Ticket, error)
}

// Notifier emails the support team about new urgent tickets
type Notifier interface {
	Enabled() bool
	SupportEmail() string
	SendTicketCreatedNotice(ticket *models.Ticket) error
}

// Tracker receives ticket analytics
type Tracker interface {
	TrackTicketCreated(ctx context.Context, ticket *models.Ticket) error
	TrackEmailSent(ctx context.Context, emailType string, recipient string) error
}

// Analyzer runs the model steps over a ticket
type Analyzer interface {
	Analyze(ctx context.Context, ticket *models.Ticket) (*models.TicketAnalysis, error)
}

// Desk is the single entry point for ticket mutations
type Desk struct {
	store     Store
	policy    sla.Policy
	publisher events.Publisher
	notifier  Notifier
	tracker   Tracker
	analyzer  Analyzer
	logger    zerolog.Logger
	now       func() time.Time
}

// NewDesk creates a desk; publisher, notifier and tracker may be nil
func NewDesk(store Store, policy sla.Policy, publisher events.Publisher, notifier Notifier, tracker Tracker, logger zerolog.Logger) *Desk {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Desk{
		store:     store,
		policy:    policy,
		publisher: publisher,
		notifier:  notifier,
		tracker:   tracker,
		logger:    logger.With().Str("component", "tickets").Logger(),
		now:       time.Now,
	}
}

// WithAnalyzer enables Process
func (d *Desk) WithAnalyzer(analyzer Analyzer) *Desk {
	d.analyzer = analyzer
	return d
}

// Open stamps SLA deadlines and stores the ticket. A nil error means the store
// acknowledged the write; event and notification failures are only logged.
func (d *Desk) Open(ctx context.Context, ticket *models.Ticket) error {
	now := d.now().UTC()
	if ticket.Status == "" {
		ticket.Status = models.StatusOpen
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	d.policy.Stamp(ctx, ticket, ticket.CreatedAt)

	if err := d.store.CreateTicket(ctx, ticket); err != nil {
		return err
	}

	d.logger.Info().
		Str("ticket_id", ticket.ID).
		Str("source", string(ticket.Source)).
		Str("department", ticket.Department).
		Str("priority", string(ticket.Priority)).
		Msg("Ticket opened")

	d.publish(ctx, events.TicketCreated(ticket))

	if d.tracker != nil {
		if err := d.tracker.TrackTicketCreated(ctx, ticket); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to track ticket")
		}
	}

	if ticket.Priority == models.PriorityCritical && d.notifier != nil && d.notifier.Enabled() {
		if err := d.notifier.SendTicketCreatedNotice(ticket); err != nil {
			d.logger.Warn().Err(err).Str("ticket_id", ticket.ID).Msg("Failed to send ticket notice")
		} else if d.tracker != nil {
			if err := d.tracker.TrackEmailSent(ctx, email.TypeTicketCreated, d.notifier.SupportEmail()); err != nil {
				d.logger.Warn().Err(err).Msg("Failed to track email")
			}
		}
	}

	return nil
}

// Create registers a ticket typed in by staff or a call agent, categorized from its content
func (d *Desk) Create(ctx context.Context, req models.CreateTicketRequest) (*models.Ticket, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	source := req.Source
	if source == "" {
		source = models.SourcePortal
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = categorizer.Subject(content)
	}
	userID := req.UserID
	if userID == "" {
		userID = "anonymous"
	}

	categorization := categorizer.Categorize(subject+" "+content, nil, req.ClientType)
	ticket := &models.Ticket{
		UserID:      userID,
		ClientType:  req.ClientType,
		Language:    utils.ResolveLanguage(req.Language, content),
		Source:      source,
		Subject:     subject,
		Category:    categorization.Category,
		Subcategory: categorization.Subcategory,
		Department:  categorization.Department,
		Priority:    categorization.Priority,
		Confidence:  1,
		Content:     content,
		Status:      models.StatusOpen,
	}

	if err := d.Open(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// Update applies a staff patch
func (d *Desk) Update(ctx context.Context, id string, update models.TicketUpdate, changedBy *string, reason string) (*models.Ticket, error) {
	current, err := d.store.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.Status != nil && !update.Status.Valid() {
		return nil, ErrInvalidTransition
	}

	updated, err := d.store.UpdateTicket(ctx, id, update, changedBy, reason)
	if err != nil {
		return nil, err
	}
	d.statusChanged(ctx, updated, current.Status, reason)
	return updated, nil
}

// Accept takes an open or escalated ticket into work
func (d *Desk) Accept(ctx context.Context, id string, changedBy *string) (*models.Ticket, error) {
	return d.transition(ctx, id, models.StatusAccepted, changedBy, "accepted", models.StatusOpen, models.StatusEscalated)
}

// Assign routes the ticket to a department and/or engineer which accepts it
func (d *Desk) Assign(ctx context.Context, id, department, assignee string, changedBy *string) (*models.Ticket, error) {
	current, err := d.store.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, ErrInvalidTransition
	}

	updated, err := d.store.Assign(ctx, id, department, assignee, changedBy)
	if err != nil {
		return nil, err
	}
	d.statusChanged(ctx, updated, current.Status, "assigned")
	return updated, nil
}

// CompleteRemote resolves a ticket fixed without a visit
func (d *Desk) CompleteRemote(ctx context.Context, id string, changedBy *string, reason string) (*models.Ticket, error) {
	if reason == "" {
		reason = "resolved remotely"
	}
	return d.transition(ctx, id, models.StatusResolved, changedBy, reason,
		models.StatusOpen, models.StatusAccepted, models.StatusInProgress, models.StatusEscalated)
}

// RequestOnSite sends an engineer to the customer
func (d *Desk) RequestOnSite(ctx context.Context, id string, changedBy *string, reason string) (*models.Ticket, error) {
	if reason == "" {
		reason = "on-site visit requested"
	}
	return d.transition(ctx, id, models.StatusOnSite, changedBy, reason,
		models.StatusOpen, models.StatusAccepted, models.StatusInProgress, models.StatusEscalated)
}

// Close finishes a ticket for good
func (d *Desk) Close(ctx context.Context, id string, changedBy *string, reason string) (*models.Ticket, error) {
	if reason == "" {
		reason = "closed"
	}
	current, err := d.store.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == models.StatusClosed {
		return nil, ErrInvalidTransition
	}
	return d.change(ctx, current, models.StatusClosed, changedBy, reason)
}

// Process runs the ticket through the analyzer, stores the new routing and
// summary, and auto-resolves the ticket when the suggested answer is confident
func (d *Desk) Process(ctx context.Context, id string, changedBy *string) (*models.Ticket, *models.TicketAnalysis, error) {
	if d.analyzer == nil {
		return nil, nil, ErrAnalyzerUnavailable
	}
	current, err := d.store.GetTicket(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if current.Status.Terminal() {
		return nil, nil, ErrInvalidTransition
	}

	analysis, err := d.analyzer.Analyze(ctx, current)
	if err != nil {
		return nil, nil, err
	}

	c := analysis.Classification
	update := models.TicketUpdate{
		Language:             &c.Language,
		Category:             &c.Category,
		Subcategory:          &c.Subcategory,
		Department:           &c.Department,
		Priority:             &c.Priority,
		Summary:              &analysis.Summary,
		AutoResolveCandidate: &c.AutoResolveCandidate,
	}
	if analysis.Answer.NeedOnSite {
		needOnSite := true
		update.NeedOnSite = &needOnSite
	}
	if analysis.AutoResolve {
		status, resolved := models.StatusAutoResolved, true
		update.Status = &status
		update.AutoResolved = &resolved
	}

	updated, err := d.store.UpdateTicket(ctx, id, update, changedBy, "ai_processed")
	if err != nil {
		return nil, nil, err
	}

	d.logger.Info().
		Str("ticket_id", id).
		Str("category", updated.Category).
		Str("department", updated.Department).
		Bool("auto_resolved", analysis.AutoResolve).
		Msg("Ticket processed")
	d.statusChanged(ctx, updated, current.Status, "ai_processed")
	return updated, analysis, nil
}

// transition changes status when the current one is in from
func (d *Desk) transition(ctx context.Context, id string, status models.TicketStatus, changedBy *string, reason string, from ...models.TicketStatus) (*models.Ticket, error) {
	current, err := d.store.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, s := range from {
		if current.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrInvalidTransition
	}
	return d.change(ctx, current, status, changedBy, reason)
}

func (d *Desk) change(ctx context.Context, current *models.Ticket, status models.TicketStatus, changedBy *string, reason string) (*models.Ticket, error) {
	updated, err := d.store.ChangeStatus(ctx, current.ID, status, changedBy, reason)
	if err != nil {
		return nil, err
	}
	d.statusChanged(ctx, updated, current.Status, reason)
	return updated, nil
}

func (d *Desk) statusChanged(ctx context.Context, ticket *models.Ticket, oldStatus models.TicketStatus, reason string) {
	if ticket.Status == oldStatus {
		return
	}
	d.logger.Info().
		Str("ticket_id", ticket.ID).
		Str("old_status", string(oldStatus)).
		Str("new_status", string(ticket.Status)).
		Msg("Ticket status changed")
	d.publish(ctx, events.StatusChanged(ticket, oldStatus, reason))
}

func (d *Desk) publish(ctx context.Context, event events.Event) {
	if err := d.publisher.Publish(ctx, event); err != nil {
		d.logger.Warn().Err(err).Str("event", event.Type).Str("ticket_id", event.TicketID).Msg("Failed to publish event")
	}
}
