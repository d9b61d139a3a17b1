package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"
	"testing"
	"time"

	"helpdesk/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func newTestTicketService(t *testing.T) (*TicketService, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	wc, err := NewWriteClient(sqlx.NewDb(mockDB, "sqlmock"))
	require.NoError(t, err)

	return &TicketService{writeClient: wc, now: func() time.Time { return fixedNow }}, mock
}

func ticketColumnNames() []string {
	var names []string
	for _, column := range strings.Split(ticketColumns, ",") {
		names = append(names, strings.TrimSpace(column))
	}
	return names
}

func ticketRows(tickets ...models.Ticket) *sqlmock.Rows {
	rows := sqlmock.NewRows(ticketColumnNames())
	for _, t := range tickets {
		rows.AddRow(t.ID, t.UserID, string(t.ClientType), t.Language, string(t.Source), t.Subject,
			t.Category, t.Subcategory, t.Department, string(t.Priority), t.Confidence, t.Content,
			string(t.Status), nullString(t.AssignedTo), t.AutoResolveCandidate, t.NeedOnSite,
			nullTime(t.SLAAcceptDeadline), nullTime(t.SLARemoteDeadline), t.CreatedAt, t.UpdatedAt, nullTime(t.ClosedAt),
			t.Summary, t.AutoResolved)
	}
	return rows
}

func nullString(s *string) driver.Value {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) driver.Value {
	if t == nil {
		return nil
	}
	return *t
}

func sampleTicket() models.Ticket {
	deadline := fixedNow.Add(15 * time.Minute)
	return models.Ticket{
		ID:                "t-1",
		UserID:            "77010000000",
		ClientType:        models.ClientPrivate,
		Language:          "ru",
		Source:            models.SourceChat,
		Subject:           "Нет интернета",
		Category:          "technical",
		Subcategory:       "internet",
		Department:        "TechSupport",
		Priority:          models.PriorityMedium,
		Confidence:        0.4,
		Content:           "Пользователь: не работает интернет",
		Status:            models.StatusOpen,
		SLAAcceptDeadline: &deadline,
		CreatedAt:         fixedNow.Add(-time.Hour),
		UpdatedAt:         fixedNow.Add(-time.Hour),
	}
}

func TestNewTicketService_RequiresWriteClient(t *testing.T) {
	service, err := NewTicketService(nil)
	assert.Error(t, err)
	assert.Nil(t, service)
}

func TestCreateTicket(t *testing.T) {
	t.Run("fills defaults and records creation", func(t *testing.T) {
		service, mock := newTestTicketService(t)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO tickets").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO ticket_history").
			WithArgs(sqlmock.AnyArg(), "status", "", "open", nil, "created").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		ticket := &models.Ticket{Content: "Пользователь: нет связи", Department: "Network"}
		err := service.CreateTicket(context.Background(), ticket)

		require.NoError(t, err)
		assert.NotEmpty(t, ticket.ID)
		assert.Equal(t, models.StatusOpen, ticket.Status)
		assert.Equal(t, models.PriorityMedium, ticket.Priority)
		assert.Equal(t, fixedNow, ticket.CreatedAt)
		assert.Equal(t, fixedNow, ticket.UpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		service, mock := newTestTicketService(t)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO tickets").WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		err := service.CreateTicket(context.Background(), &models.Ticket{Content: "x"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create ticket")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("history failure rolls back", func(t *testing.T) {
		service, mock := newTestTicketService(t)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO tickets").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO ticket_history").WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		err := service.CreateTicket(context.Background(), &models.Ticket{Content: "x"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to record ticket history")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetTicket(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		service, mock := newTestTicketService(t)
		ticket := sampleTicket()

		mock.ExpectBegin()
		mock.ExpectQuery("FROM tickets WHERE id = \\$1").WithArgs("t-1").WillReturnRows(ticketRows(ticket))
		mock.ExpectRollback()

		got, err := service.GetTicket(context.Background(), "t-1")

		require.NoError(t, err)
		assert.Equal(t, "t-1", got.ID)
		assert.Equal(t, models.StatusOpen, got.Status)
		assert.Equal(t, "TechSupport", got.Department)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		service, mock := newTestTicketService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM tickets WHERE id = \\$1").WithArgs("nope").WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		got, err := service.GetTicket(context.Background(), "nope")

		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, got)
	})
}

func TestListTickets(t *testing.T) {
	service, mock := newTestTicketService(t)
	ticket := sampleTicket()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM tickets WHERE department = \\$1 AND status = \\$2").
		WithArgs("TechSupport", "open").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectQuery("FROM tickets WHERE department = \\$1 AND status = \\$2 ORDER BY created_at DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs("TechSupport", "open", 20, 0).
		WillReturnRows(ticketRows(ticket))
	mock.ExpectRollback()

	tickets, total, err := service.ListTickets(context.Background(), models.TicketFilter{
		Department: "TechSupport",
		Status:     models.StatusOpen,
		Limit:      20,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, tickets, 1)
	assert.Equal(t, "t-1", tickets[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTicket(t *testing.T) {
	t.Run("records each changed field", func(t *testing.T) {
		service, mock := newTestTicketService(t)
		ticket := sampleTicket()
		changedBy := "u-1"

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WithArgs("t-1").WillReturnRows(ticketRows(ticket))
		mock.ExpectExec("UPDATE tickets SET").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ticket_history").
			WithArgs("t-1", "priority", "medium", "high", "u-1", "reviewed").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO ticket_history").
			WithArgs("t-1", "status", "open", "resolved", "u-1", "reviewed").
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectCommit()

		priority := models.PriorityHigh
		status := models.StatusResolved
		got, err := service.UpdateTicket(context.Background(), "t-1",
			models.TicketUpdate{Priority: &priority, Status: &status}, &changedBy, "reviewed")

		require.NoError(t, err)
		assert.Equal(t, models.PriorityHigh, got.Priority)
		assert.Equal(t, models.StatusResolved, got.Status)
		require.NotNil(t, got.ClosedAt)
		assert.Equal(t, fixedNow, *got.ClosedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no changes skips the write", func(t *testing.T) {
		service, mock := newTestTicketService(t)
		ticket := sampleTicket()

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WithArgs("t-1").WillReturnRows(ticketRows(ticket))
		mock.ExpectCommit()

		status := models.StatusOpen
		got, err := service.UpdateTicket(context.Background(), "t-1", models.TicketUpdate{Status: &status}, nil, "")

		require.NoError(t, err)
		assert.Equal(t, ticket.UpdatedAt, got.UpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing ticket", func(t *testing.T) {
		service, mock := newTestTicketService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WithArgs("nope").WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		status := models.StatusClosed
		got, err := service.UpdateTicket(context.Background(), "nope", models.TicketUpdate{Status: &status}, nil, "")

		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestApplyUpdate(t *testing.T) {
	tests := []struct {
		name       string
		update     func() models.TicketUpdate
		wantFields []string
		check      func(t *testing.T, next models.Ticket)
	}{
		{
			name: "terminal status sets closed_at",
			update: func() models.TicketUpdate {
				s := models.StatusClosed
				return models.TicketUpdate{Status: &s}
			},
			wantFields: []string{"status"},
			check: func(t *testing.T, next models.Ticket) {
				require.NotNil(t, next.ClosedAt)
				assert.Equal(t, fixedNow, next.UpdatedAt)
			},
		},
		{
			name: "reopening clears closed_at",
			update: func() models.TicketUpdate {
				s := models.StatusInProgress
				return models.TicketUpdate{Status: &s}
			},
			wantFields: []string{"status"},
			check: func(t *testing.T, next models.Ticket) {
				assert.Nil(t, next.ClosedAt)
			},
		},
		{
			name: "assignment and department",
			update: func() models.TicketUpdate {
				dept, who := "Network", "eng-7"
				return models.TicketUpdate{Department: &dept, AssignedTo: &who}
			},
			wantFields: []string{"department", "assigned_to"},
			check: func(t *testing.T, next models.Ticket) {
				require.NotNil(t, next.AssignedTo)
				assert.Equal(t, "eng-7", *next.AssignedTo)
				assert.Equal(t, "Network", next.Department)
			},
		},
		{
			name: "analysis fields with auto resolution",
			update: func() models.TicketUpdate {
				language, summary := "kk", "Клиент не может войти в личный кабинет."
				candidate, resolved := true, true
				s := models.StatusAutoResolved
				return models.TicketUpdate{
					Language:             &language,
					Summary:              &summary,
					AutoResolveCandidate: &candidate,
					AutoResolved:         &resolved,
					Status:               &s,
				}
			},
			wantFields: []string{"language", "summary", "auto_resolve_candidate", "auto_resolved", "status"},
			check: func(t *testing.T, next models.Ticket) {
				assert.Equal(t, "kk", next.Language)
				assert.True(t, next.AutoResolved)
				require.NotNil(t, next.ClosedAt)
				assert.Equal(t, fixedNow, *next.ClosedAt)
			},
		},
		{
			name: "unchanged values are ignored",
			update: func() models.TicketUpdate {
				subject, category := "Нет интернета", "technical"
				return models.TicketUpdate{Subject: &subject, Category: &category}
			},
			wantFields: nil,
			check: func(t *testing.T, next models.Ticket) {
				assert.Equal(t, fixedNow.Add(-time.Hour), next.UpdatedAt)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := sampleTicket()
			closed := fixedNow.Add(-time.Minute)
			current.ClosedAt = &closed

			next, changes := applyUpdate(current, tt.update(), fixedNow)

			var fields []string
			for _, change := range changes {
				fields = append(fields, change.field)
			}
			assert.Equal(t, tt.wantFields, fields)
			tt.check(t, next)
		})
	}
}

func TestChangeStatus_OnSiteSetsFlag(t *testing.T) {
	service, mock := newTestTicketService(t)
	ticket := sampleTicket()
	ticket.Status = models.StatusInProgress

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("t-1").WillReturnRows(ticketRows(ticket))
	mock.ExpectExec("UPDATE tickets SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ticket_history").
		WithArgs("t-1", "need_on_site", "false", "true", nil, "sla_remote_breach").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO ticket_history").
		WithArgs("t-1", "status", "in_progress", "on_site", nil, "sla_remote_breach").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	got, err := service.ChangeStatus(context.Background(), "t-1", models.StatusOnSite, nil, "sla_remote_breach")

	require.NoError(t, err)
	assert.True(t, got.NeedOnSite)
	assert.Equal(t, models.StatusOnSite, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssign_AcceptsTicket(t *testing.T) {
	service, mock := newTestTicketService(t)
	ticket := sampleTicket()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("t-1").WillReturnRows(ticketRows(ticket))
	mock.ExpectExec("UPDATE tickets SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ticket_history").WithArgs("t-1", "department", "TechSupport", "Network", nil, "assigned").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO ticket_history").WithArgs("t-1", "assigned_to", "", "eng-7", nil, "assigned").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("INSERT INTO ticket_history").WithArgs("t-1", "status", "open", "accepted", nil, "assigned").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	got, err := service.Assign(context.Background(), "t-1", "Network", "eng-7", nil)

	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTicket(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		service, mock := newTestTicketService(t)
		mock.ExpectExec("DELETE FROM tickets WHERE id = \\$1").WithArgs("t-1").WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, service.DeleteTicket(context.Background(), "t-1"))
	})

	t.Run("missing", func(t *testing.T) {
		service, mock := newTestTicketService(t)
		mock.ExpectExec("DELETE FROM tickets WHERE id = \\$1").WithArgs("nope").WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, service.DeleteTicket(context.Background(), "nope"), ErrNotFound)
	})
}

func TestAddMessage(t *testing.T) {
	service, mock := newTestTicketService(t)
	mock.ExpectExec("INSERT INTO ticket_messages").
		WithArgs(sqlmock.AnyArg(), "t-1", nil, "engineer", "Выезжаем", true, fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	message := &models.TicketMessage{TicketID: "t-1", Role: "engineer", Content: "Выезжаем", Internal: true}
	err := service.AddMessage(context.Background(), message)

	require.NoError(t, err)
	assert.NotEmpty(t, message.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOverdue(t *testing.T) {
	service, mock := newTestTicketService(t)
	ticket := sampleTicket()

	mock.ExpectBegin()
	mock.ExpectQuery("WHERE status = \\$1 AND sla_accept_deadline <= \\$2").
		WithArgs("open", fixedNow).
		WillReturnRows(ticketRows(ticket))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectQuery("WHERE status IN \\(\\$1, \\$2\\) AND sla_remote_deadline <= \\$3").
		WithArgs("accepted", "in_progress", fixedNow).
		WillReturnRows(ticketRows())
	mock.ExpectRollback()

	accept, err := service.ListAcceptOverdue(context.Background(), fixedNow)
	require.NoError(t, err)
	assert.Len(t, accept, 1)

	remote, err := service.ListRemoteOverdue(context.Background(), fixedNow)
	require.NoError(t, err)
	assert.Empty(t, remote)
	assert.NoError(t, mock.ExpectationsWereMet())
}
