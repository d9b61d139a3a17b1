package sla

import (
	"context"
	"fmt"
	"time"

	"helpdesk/internal/email"
	"helpdesk/internal/events"
	"helpdesk/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Breach reasons recorded in the ticket history
const (
	ReasonAcceptMissed = "sla accept deadline missed"
	ReasonRemoteMissed = "sla remote resolution deadline missed"
)

const checkTimeout = 30 * time.Second

// Store is the part of the ticket store the checker needs
type Store interface {
	ListAcceptOverdue(ctx context.Context, now time.Time) ([]models.Ticket, error)
	ListRemoteOverdue(ctx context.Context, now time.Time) ([]models.Ticket, error)
	ChangeStatus(ctx context.Context, id string, status models.TicketStatus, changedBy *string, reason string) (*models.Ticket, error)
}

// Notifier emails the support team about breaches
type Notifier interface {
	Enabled() bool
	SupportEmail() string
	SendSLABreachNotice(ticket *models.Ticket, reason string) error
}

// Tracker receives breach analytics
type Tracker interface {
	TrackSLABreach(ctx context.Context, ticketID string, status models.TicketStatus) error
	TrackEmailSent(ctx context.Context, emailType string, recipient string) error
}

// CheckStats counts the tickets moved by one pass
type CheckStats struct {
	Escalated int
	OnSite    int
	Failed    int
}

// Checker periodically escalates overdue tickets
type Checker struct {
	store     Store
	publisher events.Publisher
	notifier  Notifier
	tracker   Tracker
	schedule  string
	logger    zerolog.Logger
	now       func() time.Time
	cron      *cron.Cron
}

// NewChecker creates a checker running on a cron schedule such as "@every 1m".
// notifier and tracker may be nil.
func NewChecker(store Store, publisher events.Publisher, notifier Notifier, tracker Tracker, schedule string, logger zerolog.Logger) *Checker {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Checker{
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		tracker:   tracker,
		schedule:  schedule,
		logger:    logger.With().Str("component", "sla").Logger(),
		now:       time.Now,
	}
}

// Start schedules the check; overlapping runs are skipped
func (c *Checker) Start() error {
	c.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.cron.AddFunc(c.schedule, c.run); err != nil {
		return fmt.Errorf("invalid SLA schedule %q: %w", c.schedule, err)
	}
	c.cron.Start()
	c.logger.Info().Str("schedule", c.schedule).Msg("SLA checker started")
	return nil
}

// Stop halts scheduling and waits for a running check
func (c *Checker) Stop() {
	if c.cron == nil {
		return
	}
	<-c.cron.Stop().Done()
}

func (c *Checker) run() {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	stats, err := c.Check(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("SLA check failed")
		return
	}
	if stats.Escalated+stats.OnSite+stats.Failed > 0 {
		c.logger.Info().
			Int("escalated", stats.Escalated).
			Int("on_site", stats.OnSite).
			Int("failed", stats.Failed).
			Msg("SLA check completed")
	}
}

// Check runs one pass: open tickets past the accept deadline are escalated,
// accepted or in-progress tickets past the remote deadline go on site
func (c *Checker) Check(ctx context.Context) (CheckStats, error) {
	var stats CheckStats
	now := c.now().UTC()

	overdue, err := c.store.ListAcceptOverdue(ctx, now)
	if err != nil {
		return stats, err
	}
	for i := range overdue {
		if c.breach(ctx, &overdue[i], models.StatusEscalated, ReasonAcceptMissed) {
			stats.Escalated++
		} else {
			stats.Failed++
		}
	}

	remote, err := c.store.ListRemoteOverdue(ctx, now)
	if err != nil {
		return stats, err
	}
	for i := range remote {
		if c.breach(ctx, &remote[i], models.StatusOnSite, ReasonRemoteMissed) {
			stats.OnSite++
		} else {
			stats.Failed++
		}
	}

	return stats, nil
}

func (c *Checker) breach(ctx context.Context, ticket *models.Ticket, status models.TicketStatus, reason string) bool {
	oldStatus := ticket.Status
	updated, err := c.store.ChangeStatus(ctx, ticket.ID, status, nil, reason)
	if err != nil {
		c.logger.Error().Err(err).Str("ticket_id", ticket.ID).Msg("Failed to escalate overdue ticket")
		return false
	}

	c.logger.Warn().
		Str("ticket_id", updated.ID).
		Str("old_status", string(oldStatus)).
		Str("new_status", string(updated.Status)).
		Msg(reason)

	if err := c.publisher.Publish(ctx, events.SLABreached(updated, oldStatus, reason)); err != nil {
		c.logger.Warn().Err(err).Str("ticket_id", updated.ID).Msg("Failed to publish SLA breach")
	}

	if c.tracker != nil {
		if err := c.tracker.TrackSLABreach(ctx, updated.ID, updated.Status); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to track SLA breach")
		}
	}

	if c.notifier != nil && c.notifier.Enabled() {
		if err := c.notifier.SendSLABreachNotice(updated, reason); err != nil {
			c.logger.Warn().Err(err).Str("ticket_id", updated.ID).Msg("Failed to send SLA breach notice")
		} else if c.tracker != nil {
			if err := c.tracker.TrackEmailSent(ctx, email.TypeSLABreach, c.notifier.SupportEmail()); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to track email")
			}
		}
	}

	return true
}
