package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"helpdesk/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const ticketColumns = `id, user_id, client_type, language, source, subject, category, subcategory,
	department, priority, confidence, content, status, assigned_to, auto_resolve_candidate,
	need_on_site, sla_accept_deadline, sla_remote_deadline, created_at, updated_at, closed_at,
	summary, auto_resolved`

// TicketService handles ticket storage
type TicketService struct {
	writeClient *WriteClient
	now         func() time.Time
}

// NewTicketService creates a new ticket service
func NewTicketService(writeClient *WriteClient) (*TicketService, error) {
	if writeClient == nil {
		return nil, fmt.Errorf("write client is required for ticket service")
	}

	service := &TicketService{
		writeClient: writeClient,
		now:         time.Now,
	}

	service.CreateTables(context.Background())

	return service, nil
}

// CreateTables creates the ticket tables in the database
func (s *TicketService) CreateTables(ctx context.Context) {
	s.writeClient.Migrate(ctx, []string{
		`CREATE TABLE IF NOT EXISTS tickets (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL DEFAULT 'anonymous',
			client_type VARCHAR(20) NOT NULL DEFAULT '',
			language VARCHAR(10) NOT NULL DEFAULT 'ru',
			source VARCHAR(20) NOT NULL DEFAULT 'chat',
			subject TEXT NOT NULL DEFAULT '',
			category VARCHAR(50) NOT NULL DEFAULT 'other',
			subcategory VARCHAR(50) NOT NULL DEFAULT '',
			department VARCHAR(100) NOT NULL DEFAULT 'TechSupport',
			priority VARCHAR(20) NOT NULL DEFAULT 'medium',
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'open',
			assigned_to VARCHAR(36),
			auto_resolve_candidate BOOLEAN NOT NULL DEFAULT FALSE,
			need_on_site BOOLEAN NOT NULL DEFAULT FALSE,
			sla_accept_deadline TIMESTAMP,
			sla_remote_deadline TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			closed_at TIMESTAMP,
			summary TEXT NOT NULL DEFAULT '',
			auto_resolved BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`ALTER TABLE tickets ADD COLUMN IF NOT EXISTS summary TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE tickets ADD COLUMN IF NOT EXISTS auto_resolved BOOLEAN NOT NULL DEFAULT FALSE`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_department ON tickets(department)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_created_at ON tickets(created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS ticket_messages (
			id VARCHAR(36) PRIMARY KEY,
			ticket_id VARCHAR(36) NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
			author_id VARCHAR(36),
			role VARCHAR(20) NOT NULL,
			content TEXT NOT NULL,
			internal BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticket_messages_ticket_id ON ticket_messages(ticket_id)`,
		`CREATE TABLE IF NOT EXISTS ticket_history (
			id SERIAL PRIMARY KEY,
			ticket_id VARCHAR(36) NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
			field_name VARCHAR(50) NOT NULL,
			old_value TEXT NOT NULL DEFAULT '',
			new_value TEXT NOT NULL DEFAULT '',
			changed_by VARCHAR(36),
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticket_history_ticket_id ON ticket_history(ticket_id)`,
	})
}

// CreateTicket stores a new ticket. Missing id, status and timestamps are filled in.
func (s *TicketService) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	now := s.now().UTC()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.Status == "" {
		ticket.Status = models.StatusOpen
	}
	if ticket.Priority == "" {
		ticket.Priority = models.PriorityMedium
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now

	query := `
		INSERT INTO tickets (` + ticketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`

	return s.writeClient.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			ticket.ID, ticket.UserID, ticket.ClientType, ticket.Language, ticket.Source, ticket.Subject,
			ticket.Category, ticket.Subcategory, ticket.Department, ticket.Priority, ticket.Confidence,
			ticket.Content, ticket.Status, ticket.AssignedTo, ticket.AutoResolveCandidate, ticket.NeedOnSite,
			ticket.SLAAcceptDeadline, ticket.SLARemoteDeadline, ticket.CreatedAt, ticket.UpdatedAt, ticket.ClosedAt,
			ticket.Summary, ticket.AutoResolved,
		)
		if err != nil {
			return fmt.Errorf("failed to create ticket: %w", err)
		}

		return insertHistory(ctx, tx, ticket.ID, "status", "", string(ticket.Status), nil, "created")
	})
}

// GetTicket retrieves a ticket by id
func (s *TicketService) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	if err := ExecuteReadOnlyQuerySingle(ctx, s.writeClient.GetDB(), &ticket, query, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return &ticket, nil
}

// ListTickets retrieves a filtered page of tickets, newest first, with the total match count
func (s *TicketService) ListTickets(ctx context.Context, filter models.TicketFilter) ([]models.Ticket, int, error) {
	var conditions []string
	var args []interface{}
	addCondition := func(column string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filter.Department != "" {
		addCondition("department", filter.Department)
	}
	if filter.Status != "" {
		addCondition("status", filter.Status)
	}
	if filter.Priority != "" {
		addCondition("priority", filter.Priority)
	}
	if filter.AssignedTo != "" {
		addCondition("assigned_to", filter.AssignedTo)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM tickets` + where
	if err := ExecuteReadOnlyQuerySingle(ctx, s.writeClient.GetDB(), &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count tickets: %w", err)
	}

	pageArgs := append(append([]interface{}{}, args...), filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM tickets%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		ticketColumns, where, len(args)+1, len(args)+2)

	tickets := []models.Ticket{}
	if err := ExecuteReadOnlyQuery(ctx, s.writeClient.GetDB(), &tickets, query, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to list tickets: %w", err)
	}

	return tickets, total, nil
}

// UpdateTicket applies a patch and records every changed field in the ticket history
func (s *TicketService) UpdateTicket(ctx context.Context, id string, update models.TicketUpdate, changedBy *string, reason string) (*models.Ticket, error) {
	var updated models.Ticket

	err := s.writeClient.WithTx(ctx, func(tx *sqlx.Tx) error {
		var current models.Ticket
		query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &current, query, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load ticket: %w", err)
		}

		next, changes := applyUpdate(current, update, s.now().UTC())
		if len(changes) == 0 {
			updated = current
			return nil
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE tickets SET subject = $1, category = $2, subcategory = $3, department = $4, priority = $5,
				status = $6, assigned_to = $7, need_on_site = $8, updated_at = $9, closed_at = $10,
				language = $11, summary = $12, auto_resolve_candidate = $13, auto_resolved = $14
			WHERE id = $15
		`, next.Subject, next.Category, next.Subcategory, next.Department, next.Priority,
			next.Status, next.AssignedTo, next.NeedOnSite, next.UpdatedAt, next.ClosedAt,
			next.Language, next.Summary, next.AutoResolveCandidate, next.AutoResolved, id)
		if err != nil {
			return fmt.Errorf("failed to update ticket: %w", err)
		}

		for _, change := range changes {
			if err := insertHistory(ctx, tx, id, change.field, change.oldValue, change.newValue, changedBy, reason); err != nil {
				return err
			}
		}

		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

// ChangeStatus moves a ticket to a new status
func (s *TicketService) ChangeStatus(ctx context.Context, id string, status models.TicketStatus, changedBy *string, reason string) (*models.Ticket, error) {
	update := models.TicketUpdate{Status: &status}
	if status == models.StatusOnSite {
		needOnSite := true
		update.NeedOnSite = &needOnSite
	}
	return s.UpdateTicket(ctx, id, update, changedBy, reason)
}

// Assign routes a ticket to a department and/or engineer and accepts it
func (s *TicketService) Assign(ctx context.Context, id string, department, assignee string, changedBy *string) (*models.Ticket, error) {
	accepted := models.StatusAccepted
	update := models.TicketUpdate{Status: &accepted}
	if department != "" {
		update.Department = &department
	}
	if assignee != "" {
		update.AssignedTo = &assignee
	}
	return s.UpdateTicket(ctx, id, update, changedBy, "assigned")
}

// DeleteTicket removes a ticket together with its messages and history
func (s *TicketService) DeleteTicket(ctx context.Context, id string) error {
	result, err := s.writeClient.ExecuteWriteQuery(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMessage appends a message to a ticket
func (s *TicketService) AddMessage(ctx context.Context, message *models.TicketMessage) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = s.now().UTC()
	}

	query := `
		INSERT INTO ticket_messages (id, ticket_id, author_id, role, content, internal, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.writeClient.ExecuteWriteQuery(ctx, query,
		message.ID, message.TicketID, message.AuthorID, message.Role, message.Content, message.Internal, message.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add ticket message: %w", err)
	}
	return nil
}

// ListMessages retrieves the messages of a ticket, oldest first
func (s *TicketService) ListMessages(ctx context.Context, ticketID string) ([]models.TicketMessage, error) {
	query := `
		SELECT id, ticket_id, author_id, role, content, internal, created_at
		FROM ticket_messages
		WHERE ticket_id = $1
		ORDER BY created_at ASC
	`
	messages := []models.TicketMessage{}
	if err := ExecuteReadOnlyQuery(ctx, s.writeClient.GetDB(), &messages, query, ticketID); err != nil {
		return nil, fmt.Errorf("failed to list ticket messages: %w", err)
	}
	return messages, nil
}

// ListHistory retrieves the change log of a ticket, oldest first
func (s *TicketService) ListHistory(ctx context.Context, ticketID string) ([]models.TicketHistoryEntry, error) {
	query := `
		SELECT id, ticket_id, field_name, old_value, new_value, changed_by, reason, created_at
		FROM ticket_history
		WHERE ticket_id = $1
		ORDER BY created_at ASC, id ASC
	`
	history := []models.TicketHistoryEntry{}
	if err := ExecuteReadOnlyQuery(ctx, s.writeClient.GetDB(), &history, query, ticketID); err != nil {
		return nil, fmt.Errorf("failed to list ticket history: %w", err)
	}
	return history, nil
}

// ListAcceptOverdue returns open tickets whose accept deadline has passed
func (s *TicketService) ListAcceptOverdue(ctx context.Context, now time.Time) ([]models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE status = $1 AND sla_accept_deadline <= $2`
	tickets := []models.Ticket{}
	if err := ExecuteReadOnlyQuery(ctx, s.writeClient.GetDB(), &tickets, query, models.StatusOpen, now); err != nil {
		return nil, fmt.Errorf("failed to list accept overdue tickets: %w", err)
	}
	return tickets, nil
}

// ListRemoteOverdue returns accepted or in-progress tickets whose remote resolution deadline has passed
func (s *TicketService) ListRemoteOverdue(ctx context.Context, now time.Time) ([]models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE status IN ($1, $2) AND sla_remote_deadline <= $3`
	tickets := []models.Ticket{}
	if err := ExecuteReadOnlyQuery(ctx, s.writeClient.GetDB(), &tickets, query, models.StatusAccepted, models.StatusInProgress, now); err != nil {
		return nil, fmt.Errorf("failed to list remote overdue tickets: %w", err)
	}
	return tickets, nil
}

type fieldChange struct {
	field    string
	oldValue string
	newValue string
}

// applyUpdate returns the patched ticket and the list of fields that actually changed
func applyUpdate(current models.Ticket, update models.TicketUpdate, now time.Time) (models.Ticket, []fieldChange) {
	next := current
	var changes []fieldChange

	setString := func(field string, target *string, value *string) {
		if value != nil && *value != *target {
			changes = append(changes, fieldChange{field, *target, *value})
			*target = *value
		}
	}

	setBool := func(field string, target *bool, value *bool) {
		if value != nil && *value != *target {
			changes = append(changes, fieldChange{field, fmt.Sprint(*target), fmt.Sprint(*value)})
			*target = *value
		}
	}

	setString("subject", &next.Subject, update.Subject)
	setString("category", &next.Category, update.Category)
	setString("subcategory", &next.Subcategory, update.Subcategory)
	setString("department", &next.Department, update.Department)
	setString("language", &next.Language, update.Language)
	setString("summary", &next.Summary, update.Summary)

	if update.Priority != nil && *update.Priority != next.Priority {
		changes = append(changes, fieldChange{"priority", string(next.Priority), string(*update.Priority)})
		next.Priority = *update.Priority
	}
	if update.AssignedTo != nil && (next.AssignedTo == nil || *next.AssignedTo != *update.AssignedTo) {
		old := ""
		if next.AssignedTo != nil {
			old = *next.AssignedTo
		}
		changes = append(changes, fieldChange{"assigned_to", old, *update.AssignedTo})
		assignee := *update.AssignedTo
		next.AssignedTo = &assignee
	}
	setBool("auto_resolve_candidate", &next.AutoResolveCandidate, update.AutoResolveCandidate)
	setBool("need_on_site", &next.NeedOnSite, update.NeedOnSite)
	setBool("auto_resolved", &next.AutoResolved, update.AutoResolved)
	if update.Status != nil && *update.Status != next.Status {
		changes = append(changes, fieldChange{"status", string(next.Status), string(*update.Status)})
		next.Status = *update.Status
		if next.Status.Terminal() {
			next.ClosedAt = &now
		} else {
			next.ClosedAt = nil
		}
	}

	if len(changes) > 0 {
		next.UpdatedAt = now
	}
	return next, changes
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, ticketID, field, oldValue, newValue string, changedBy *string, reason string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ticket_history (ticket_id, field_name, old_value, new_value, changed_by, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ticketID, field, oldValue, newValue, changedBy, reason)
	if err != nil {
		return fmt.Errorf("failed to record ticket history: %w", err)
	}
	return nil
}
