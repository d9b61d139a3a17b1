package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"helpdesk/internal/models"

	"github.com/google/uuid"
)

const userColumns = `id, email, full_name, role, department, password_hash, created_at`

// UserService handles staff account storage
type UserService struct {
	writeClient *WriteClient
}

// NewUserService creates a new user service
func NewUserService(writeClient *WriteClient) (*UserService, error) {
	if writeClient == nil {
		return nil, fmt.Errorf("write client is required for user service")
	}

	service := &UserService{writeClient: writeClient}
	service.CreateTables(context.Background())

	return service, nil
}

// CreateTables creates the users table
func (s *UserService) CreateTables(ctx context.Context) {
	s.writeClient.Migrate(ctx, []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(36) PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			full_name VARCHAR(255) NOT NULL DEFAULT '',
			role VARCHAR(30) NOT NULL,
			department VARCHAR(100),
			password_hash VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_department ON users(department)`,
	})
}

// CreateUser stores a new staff account; the password must already be hashed
func (s *UserService) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.writeClient.ExecuteWriteQuery(ctx, query,
		user.ID, user.Email, user.FullName, user.Role, user.Department, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", constraintError(err))
	}
	return nil
}

// GetUserByEmail retrieves a staff account by email
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

// GetUser retrieves a staff account by id
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *UserService) getUser(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	if err := ExecuteReadOnlyQuerySingle(ctx, s.writeClient.GetDB(), &user, query, arg); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// ListUsers retrieves staff accounts, optionally limited to one role
func (s *UserService) ListUsers(ctx context.Context, role models.UserRole) ([]models.User, error) {
	users := []models.User{}
	query := `SELECT ` + userColumns + ` FROM users`
	var args []interface{}
	if role != "" {
		query += ` WHERE role = $1`
		args = append(args, role)
	}
	query += ` ORDER BY created_at DESC`

	if err := ExecuteReadOnlyQuery(ctx, s.writeClient.GetDB(), &users, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// DeleteUser removes a staff account that has no assigned tickets
func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	var assigned int
	if err := ExecuteReadOnlyQuerySingle(ctx, s.writeClient.GetDB(), &assigned,
		`SELECT COUNT(*) FROM tickets WHERE assigned_to = $1`, id); err != nil {
		return fmt.Errorf("failed to check assigned tickets: %w", err)
	}
	if assigned > 0 {
		return ErrConflict
	}

	result, err := s.writeClient.ExecuteWriteQuery(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUsers returns the number of staff accounts
func (s *UserService) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := ExecuteReadOnlyQuerySingle(ctx, s.writeClient.GetDB(), &count, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
