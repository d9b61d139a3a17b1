// Package events publishes ticket lifecycle events to a message bus
package events

import (
	"context"
	"fmt"
	"time"

	"helpdesk/internal/config"
	"helpdesk/internal/models"

	"github.com/rs/zerolog"
)

// Event types
const (
	TypeTicketCreated       = "ticket.created"
	TypeTicketStatusChanged = "ticket.status_changed"
	TypeTicketSLABreached   = "ticket.sla_breached"
)

// Event is a ticket lifecycle change
type Event struct {
	Type       string              `json:"type"`
	TicketID   string              `json:"ticket_id"`
	Status     models.TicketStatus `json:"status"`
	OldStatus  models.TicketStatus `json:"old_status,omitempty"`
	Department string              `json:"department"`
	Priority   models.Priority     `json:"priority"`
	Source     models.TicketSource `json:"source,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// TicketCreated builds the event for a freshly stored ticket
func TicketCreated(ticket *models.Ticket) Event {
	return Event{
		Type:       TypeTicketCreated,
		TicketID:   ticket.ID,
		Status:     ticket.Status,
		Department: ticket.Department,
		Priority:   ticket.Priority,
		Source:     ticket.Source,
		OccurredAt: time.Now().UTC(),
	}
}

// StatusChanged builds the event for a status transition
func StatusChanged(ticket *models.Ticket, oldStatus models.TicketStatus, reason string) Event {
	return Event{
		Type:       TypeTicketStatusChanged,
		TicketID:   ticket.ID,
		Status:     ticket.Status,
		OldStatus:  oldStatus,
		Department: ticket.Department,
		Priority:   ticket.Priority,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}

// SLABreached builds the event for a ticket moved by the SLA checker
func SLABreached(ticket *models.Ticket, oldStatus models.TicketStatus, reason string) Event {
	event := StatusChanged(ticket, oldStatus, reason)
	event.Type = TypeTicketSLABreached
	return event
}

// Publisher sends events to a bus
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NewPublisher builds the publisher selected by EVENTS_BACKEND
func NewPublisher(cfg *config.Config, logger zerolog.Logger) (Publisher, error) {
	switch cfg.EventsBackend {
	case config.EventsBackendNATS:
		return NewNATSPublisher(cfg.NATSURL, logger)
	case config.EventsBackendKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger), nil
	case config.EventsBackendNone, "":
		return NoopPublisher{}, nil
	default:
		return nil, fmt.Errorf("unsupported events backend %q", cfg.EventsBackend)
	}
}

// NoopPublisher drops every event
type NoopPublisher struct{}

// Publish does nothing
func (NoopPublisher) Publish(ctx context.Context, event Event) error { return nil }

// Close does nothing
func (NoopPublisher) Close() error { return nil }
