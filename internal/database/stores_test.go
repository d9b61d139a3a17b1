package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"helpdesk/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriteClient(t *testing.T) (*WriteClient, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	wc, err := NewWriteClient(sqlx.NewDb(mockDB, "sqlmock"))
	require.NoError(t, err)
	return wc, mock
}

func TestNewWriteClient_RequiresDB(t *testing.T) {
	wc, err := NewWriteClient(nil)
	assert.Error(t, err)
	assert.Nil(t, wc)
}

func TestWriteClient_Migrate_IgnoresFailures(t *testing.T) {
	wc, mock := newTestWriteClient(t)

	mock.ExpectExec("CREATE TABLE one").WillReturnError(sql.ErrConnDone)
	mock.ExpectExec("CREATE TABLE two").WillReturnResult(sqlmock.NewResult(0, 0))

	wc.Migrate(context.Background(), []string{"CREATE TABLE one", "CREATE TABLE two"})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDepartment(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name: "unreferenced department is deleted",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT name FROM departments").WithArgs(3).
					WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Legal"))
				mock.ExpectQuery("SELECT \\(SELECT COUNT").WithArgs("Legal").
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
				mock.ExpectExec("DELETE FROM departments").WithArgs(3).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "referenced department is refused",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT name FROM departments").WithArgs(3).
					WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Billing"))
				mock.ExpectQuery("SELECT \\(SELECT COUNT").WithArgs("Billing").
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
				mock.ExpectRollback()
			},
			wantErr: ErrConflict,
		},
		{
			name: "missing department",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT name FROM departments").WithArgs(3).
					WillReturnError(sql.ErrNoRows)
				mock.ExpectRollback()
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wc, mock := newTestWriteClient(t)
			service := &DepartmentService{writeClient: wc}
			tt.setupMock(mock)

			err := service.DeleteDepartment(context.Background(), 3)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateDepartment(t *testing.T) {
	wc, mock := newTestWriteClient(t)
	service := &DepartmentService{writeClient: wc}
	created := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO departments").
		WithArgs("Legal", "Юристы", 30, "legal@helpdesk.local").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(7, created))

	dept, err := service.CreateDepartment(context.Background(), models.DepartmentRequest{
		Name:             "Legal",
		Description:      "Юристы",
		SLAAcceptMinutes: 30,
		NotifyEmail:      "legal@helpdesk.local",
	})

	require.NoError(t, err)
	assert.Equal(t, 7, dept.ID)
	assert.Equal(t, created, dept.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDepartment_DuplicateName(t *testing.T) {
	wc, mock := newTestWriteClient(t)
	service := &DepartmentService{writeClient: wc}

	mock.ExpectQuery("INSERT INTO departments").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "departments_name_key"})

	dept, err := service.CreateDepartment(context.Background(), models.DepartmentRequest{Name: "Network"})

	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "departments_name_key")
	assert.Nil(t, dept)
}

func TestUpdateDepartment_Missing(t *testing.T) {
	wc, mock := newTestWriteClient(t)
	service := &DepartmentService{writeClient: wc}

	mock.ExpectExec("UPDATE departments SET").WillReturnResult(sqlmock.NewResult(0, 0))

	dept, err := service.UpdateDepartment(context.Background(), 42, models.DepartmentRequest{Name: "X"})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, dept)
}

func TestDeleteUser(t *testing.T) {
	t.Run("refused while tickets are assigned", func(t *testing.T) {
		wc, mock := newTestWriteClient(t)
		service := &UserService{writeClient: wc}

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM tickets WHERE assigned_to = \\$1").WithArgs("u-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectRollback()

		assert.ErrorIs(t, service.DeleteUser(context.Background(), "u-1"), ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deleted", func(t *testing.T) {
		wc, mock := newTestWriteClient(t)
		service := &UserService{writeClient: wc}

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM tickets WHERE assigned_to = \\$1").WithArgs("u-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectRollback()
		mock.ExpectExec("DELETE FROM users").WithArgs("u-1").WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, service.DeleteUser(context.Background(), "u-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateUser_NormalizesEmail(t *testing.T) {
	wc, mock := newTestWriteClient(t)
	service := &UserService{writeClient: wc}

	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "admin@helpdesk.local", "Admin", "admin", nil, "hash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Email: "  Admin@Helpdesk.Local ", FullName: "Admin", Role: models.RoleAdmin, PasswordHash: "hash"}
	require.NoError(t, service.CreateUser(context.Background(), user))

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "admin@helpdesk.local", user.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	wc, mock := newTestWriteClient(t)
	service := &UserService{writeClient: wc}

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	err := service.CreateUser(context.Background(), &models.User{Email: "admin@helpdesk.local", Role: models.RoleAdmin})

	assert.ErrorIs(t, err, ErrConflict)
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	wc, mock := newTestWriteClient(t)
	service := &UserService{writeClient: wc}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM users WHERE email = \\$1").WithArgs("ghost@helpdesk.local").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	user, err := service.GetUserByEmail(context.Background(), "Ghost@helpdesk.local")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, user)
}

func TestSubmitFeedback_ComputesCorrectness(t *testing.T) {
	tests := []struct {
		name        string
		correctDept string
		wantCorrect bool
	}{
		{name: "matching routing", correctDept: "Billing", wantCorrect: true},
		{name: "wrong department", correctDept: "Network", wantCorrect: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wc, mock := newTestWriteClient(t)
			service := &FeedbackService{writeClient: wc}

			mock.ExpectExec("INSERT INTO classification_feedback").
				WithArgs("t-1", "billing", "Billing", "billing", tt.correctDept, tt.wantCorrect, "", nil, sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(1, 1))

			feedback := &models.ClassificationFeedback{
				TicketID:            "t-1",
				PredictedCategory:   "billing",
				PredictedDepartment: "Billing",
				CorrectCategory:     "billing",
				CorrectDepartment:   tt.correctDept,
			}
			require.NoError(t, service.SubmitFeedback(context.Background(), feedback))

			assert.Equal(t, tt.wantCorrect, feedback.IsCorrect)
			assert.False(t, feedback.FeedbackAt.IsZero())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFeedbackMetrics(t *testing.T) {
	wc, mock := newTestWriteClient(t)
	service := &FeedbackService{writeClient: wc}
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(30 * 24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT predicted_category AS key").WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"key", "correct", "total"}).
			AddRow("technical", 3, 4).
			AddRow("billing", 1, 1))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT predicted_department AS key").WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"key", "correct", "total"}).
			AddRow("TechSupport", 3, 4).
			AddRow("Billing", 1, 1))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectQuery("FROM chat_interactions").WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"total", "auto_resolved", "average_confidence"}).AddRow(10, 4, 0.61))
	mock.ExpectRollback()

	metrics, err := service.Metrics(context.Background(), from, to)

	require.NoError(t, err)
	assert.Equal(t, 5, metrics.TotalClassifications)
	assert.Equal(t, 4, metrics.CorrectClassifications)
	assert.InDelta(t, 80.0, metrics.AccuracyPercent, 0.001)
	assert.InDelta(t, 75.0, metrics.ByCategory["technical"].Percent, 0.001)
	assert.Equal(t, 1, metrics.ByDepartment["Billing"].Total)
	assert.Equal(t, 10, metrics.TotalInteractions)
	assert.Equal(t, 4, metrics.AutoResolved)
	assert.InDelta(t, 40.0, metrics.AutoResolveRate, 0.001)
	assert.InDelta(t, 0.61, metrics.AverageConfidence, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPercent_ZeroTotal(t *testing.T) {
	assert.Equal(t, 0.0, percent(3, 0))
	assert.Equal(t, 50.0, percent(1, 2))
}

func TestRecordInteraction(t *testing.T) {
	wc, mock := newTestWriteClient(t)
	service := &ConversationService{writeClient: wc}
	ticketID := "t-9"
	category := "technical"

	mock.ExpectExec("INSERT INTO chat_interactions").
		WithArgs("77010000000", "whatsapp", "не работает роутер", "ответ", 0.1, true, "t-9", "technical").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := service.RecordInteraction(context.Background(), models.ChatInteraction{
		UserID:        "77010000000",
		Source:        models.SourceWhatsApp,
		Message:       "не работает роутер",
		Answer:        "ответ",
		Confidence:    0.1,
		TicketCreated: true,
		TicketID:      &ticketID,
		Category:      &category,
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListInteractions(t *testing.T) {
	wc, mock := newTestWriteClient(t)
	service := &ConversationService{writeClient: wc}
	created := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM chat_interactions").WithArgs("", 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "source", "message", "answer", "confidence", "ticket_created", "ticket_id", "category", "created_at"}).
			AddRow(1, "anonymous", "chat", "привет", "Здравствуйте", 0.8, false, nil, nil, created))
	mock.ExpectRollback()

	interactions, err := service.ListInteractions(context.Background(), "", 50, 0)

	require.NoError(t, err)
	require.Len(t, interactions, 1)
	assert.Equal(t, models.SourceChat, interactions[0].Source)
	assert.Nil(t, interactions[0].TicketID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
