// Package sla stamps ticket deadlines and escalates tickets that miss them
package sla

import (
	"context"
	"time"

	"helpdesk/internal/config"
	"helpdesk/internal/models"
)

// DepartmentLookup resolves per-department accept times
type DepartmentLookup interface {
	GetDepartmentByName(ctx context.Context, name string) (*models.Department, error)
}

// Policy computes the accept and remote resolution deadlines of new tickets
type Policy struct {
	AcceptAfter time.Duration
	RemoteAfter time.Duration
	departments DepartmentLookup
}

// NewPolicy builds the policy from SLA_ACCEPT_MINUTES and SLA_REMOTE_MINUTES.
// departments may be nil; when set, a department's own accept time wins.
func NewPolicy(cfg *config.Config, departments DepartmentLookup) Policy {
	return Policy{
		AcceptAfter: time.Duration(cfg.SLAAcceptMinutes) * time.Minute,
		RemoteAfter: time.Duration(cfg.SLARemoteMinutes) * time.Minute,
		departments: departments,
	}
}

// Stamp sets the deadlines of a ticket opened at from. Terminal tickets get none.
func (p Policy) Stamp(ctx context.Context, ticket *models.Ticket, from time.Time) {
	if ticket.Status.Terminal() {
		return
	}

	accept := p.AcceptAfter
	if p.departments != nil && ticket.Department != "" {
		if department, err := p.departments.GetDepartmentByName(ctx, ticket.Department); err == nil && department.SLAAcceptMinutes > 0 {
			accept = time.Duration(department.SLAAcceptMinutes) * time.Minute
		}
	}

	if accept > 0 {
		deadline := from.Add(accept)
		ticket.SLAAcceptDeadline = &deadline
	}
	if p.RemoteAfter > 0 {
		deadline := from.Add(p.RemoteAfter)
		ticket.SLARemoteDeadline = &deadline
	}
}
