package models

import "time"

// UserRole is the permission level of a staff member
type UserRole string

// Staff roles
const (
	RoleAdmin          UserRole = "admin"
	RoleSupervisor     UserRole = "supervisor"
	RoleOperator       UserRole = "operator"
	RoleDepartmentUser UserRole = "department_user"
	RoleEngineer       UserRole = "engineer"
	RoleCallAgent      UserRole = "call_agent"
	RoleManager        UserRole = "manager"
)

// Valid reports whether r is a known role
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleSupervisor, RoleOperator, RoleDepartmentUser, RoleEngineer, RoleCallAgent, RoleManager:
		return true
	}
	return false
}

// User is a staff account
// @Description Staff user
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	FullName     string    `json:"full_name" db:"full_name"`
	Role         UserRole  `json:"role" db:"role"`
	Department   *string   `json:"department,omitempty" db:"department"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// CreateUserRequest registers a staff member
// @Description Staff user creation payload
type CreateUserRequest struct {
	Email      string   `json:"email" validate:"required,email" example:"engineer@helpdesk.local"`
	Password   string   `json:"password" validate:"required,min=8" example:"s3cret-pass"`
	FullName   string   `json:"full_name" validate:"required" example:"Айгерим Садыкова"`
	Role       UserRole `json:"role" validate:"required" example:"engineer"`
	Department string   `json:"department,omitempty" example:"Network"`
}

// Department is a team tickets are routed to
// @Description Department
type Department struct {
	ID               int       `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	Description      string    `json:"description" db:"description"`
	SLAAcceptMinutes int       `json:"sla_accept_minutes" db:"sla_accept_minutes"`
	NotifyEmail      string    `json:"notify_email" db:"notify_email"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// DepartmentRequest creates or updates a department
// @Description Department payload
type DepartmentRequest struct {
	Name             string `json:"name" validate:"required,max=100" example:"Billing"`
	Description      string `json:"description" example:"Оплата и тарифы"`
	SLAAcceptMinutes int    `json:"sla_accept_minutes" validate:"min=0" example:"15"`
	NotifyEmail      string `json:"notify_email" validate:"omitempty,email" example:"billing@helpdesk.local"`
}
