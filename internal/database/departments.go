package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"helpdesk/internal/models"

	"github.com/jmoiron/sqlx"
)

// Default departments seeded on first start; names match the categorizer output
var defaultDepartments = []models.DepartmentRequest{
	{Name: "TechSupport", Description: "Техническая поддержка", SLAAcceptMinutes: 15},
	{Name: "Network", Description: "Сетевые специалисты", SLAAcceptMinutes: 15},
	{Name: "Billing", Description: "Оплата и тарифы", SLAAcceptMinutes: 30},
}

// DepartmentService handles department storage
type DepartmentService struct {
	writeClient *WriteClient
}

// NewDepartmentService creates a new department service
func NewDepartmentService(writeClient *WriteClient) (*DepartmentService, error) {
	if writeClient == nil {
		return nil, fmt.Errorf("write client is required for department service")
	}

	service := &DepartmentService{writeClient: writeClient}
	service.CreateTables(context.Background())

	return service, nil
}

// CreateTables creates the departments table and seeds the default departments
func (s *DepartmentService) CreateTables(ctx context.Context) {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS departments (
			id SERIAL PRIMARY KEY,
			name VARCHAR(100) UNIQUE NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			sla_accept_minutes INT NOT NULL DEFAULT 15,
			notify_email VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, dept := range defaultDepartments {
		queries = append(queries, fmt.Sprintf(
			`INSERT INTO departments (name, description, sla_accept_minutes) VALUES ('%s', '%s', %d) ON CONFLICT (name) DO NOTHING`,
			dept.Name, dept.Description, dept.SLAAcceptMinutes))
	}
	s.writeClient.Migrate(ctx, queries)
}

const departmentColumns = `id, name, description, sla_accept_minutes, notify_email, created_at`

// ListDepartments retrieves all departments ordered by name
func (s *DepartmentService) ListDepartments(ctx context.Context) ([]models.Department, error) {
	departments := []models.Department{}
	query := `SELECT ` + departmentColumns + ` FROM departments ORDER BY name`
	if err := ExecuteReadOnlyQuery(ctx, s.writeClient.GetDB(), &departments, query); err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	return departments, nil
}

// GetDepartment retrieves a department by id
func (s *DepartmentService) GetDepartment(ctx context.Context, id int) (*models.Department, error) {
	var dept models.Department
	query := `SELECT ` + departmentColumns + ` FROM departments WHERE id = $1`
	if err := ExecuteReadOnlyQuerySingle(ctx, s.writeClient.GetDB(), &dept, query, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return &dept, nil
}

// GetDepartmentByName retrieves a department by its routing name
func (s *DepartmentService) GetDepartmentByName(ctx context.Context, name string) (*models.Department, error) {
	var dept models.Department
	query := `SELECT ` + departmentColumns + ` FROM departments WHERE name = $1`
	if err := ExecuteReadOnlyQuerySingle(ctx, s.writeClient.GetDB(), &dept, query, name); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return &dept, nil
}

// CreateDepartment stores a new department
func (s *DepartmentService) CreateDepartment(ctx context.Context, req models.DepartmentRequest) (*models.Department, error) {
	dept := models.Department{
		Name:             req.Name,
		Description:      req.Description,
		SLAAcceptMinutes: req.SLAAcceptMinutes,
		NotifyEmail:      req.NotifyEmail,
	}

	query := `
		INSERT INTO departments (name, description, sla_accept_minutes, notify_email)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	row := struct {
		ID        int          `db:"id"`
		CreatedAt sql.NullTime `db:"created_at"`
	}{}
	if err := s.writeClient.ExecuteWriteQuerySingle(ctx, &row, query, dept.Name, dept.Description, dept.SLAAcceptMinutes, dept.NotifyEmail); err != nil {
		return nil, fmt.Errorf("failed to create department: %w", constraintError(err))
	}
	dept.ID = row.ID
	dept.CreatedAt = row.CreatedAt.Time

	return &dept, nil
}

// UpdateDepartment replaces the editable fields of a department
func (s *DepartmentService) UpdateDepartment(ctx context.Context, id int, req models.DepartmentRequest) (*models.Department, error) {
	query := `
		UPDATE departments SET name = $1, description = $2, sla_accept_minutes = $3, notify_email = $4
		WHERE id = $5
	`
	result, err := s.writeClient.ExecuteWriteQuery(ctx, query, req.Name, req.Description, req.SLAAcceptMinutes, req.NotifyEmail, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update department: %w", constraintError(err))
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return nil, ErrNotFound
	}
	return s.GetDepartment(ctx, id)
}

// DeleteDepartment removes a department that no ticket or user references
func (s *DepartmentService) DeleteDepartment(ctx context.Context, id int) error {
	return s.writeClient.WithTx(ctx, func(tx *sqlx.Tx) error {
		var name string
		if err := tx.GetContext(ctx, &name, `SELECT name FROM departments WHERE id = $1`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load department: %w", err)
		}

		var references int
		query := `SELECT (SELECT COUNT(*) FROM tickets WHERE department = $1) + (SELECT COUNT(*) FROM users WHERE department = $1)`
		if err := tx.GetContext(ctx, &references, query, name); err != nil {
			return fmt.Errorf("failed to check department references: %w", err)
		}
		if references > 0 {
			return ErrConflict
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM departments WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete department: %w", err)
		}
		return nil
	})
}
