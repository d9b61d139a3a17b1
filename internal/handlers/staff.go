package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"helpdesk/internal/auth"
	"helpdesk/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// DepartmentStore persists departments
type DepartmentStore interface {
	ListDepartments(ctx context.Context) ([]models.Department, error)
	GetDepartment(ctx context.Context, id int) (*models.Department, error)
	CreateDepartment(ctx context.Context, req models.DepartmentRequest) (*models.Department, error)
	UpdateDepartment(ctx context.Context, id int, req models.DepartmentRequest) (*models.Department, error)
	DeleteDepartment(ctx context.Context, id int) error
}

// UserStore persists staff accounts
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, role models.UserRole) ([]models.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Authenticator issues and revokes staff tokens
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*models.LoginResponse, error)
	Revoke(token string) error
}

// StaffHandlers serves login, users and departments
type StaffHandlers struct {
	auth        Authenticator
	users       UserStore
	departments DepartmentStore
	logger      zerolog.Logger
}

// NewStaffHandlers creates the staff handlers
func NewStaffHandlers(authenticator Authenticator, users UserStore, departments DepartmentStore, logger zerolog.Logger) *StaffHandlers {
	return &StaffHandlers{
		auth:        authenticator,
		users:       users,
		departments: departments,
		logger:      logger.With().Str("handler", "staff").Logger(),
	}
}

// Login exchanges credentials for a bearer token
// @Summary Staff login
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Credentials"
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /api/auth/login [post]
func (h *StaffHandlers) Login(c echo.Context) error {
	var req models.LoginRequest
	if ok, err := bindRequest(c, &req); !ok {
		return err
	}

	resp, err := h.auth.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.logger.Warn().Str("email", req.Email).Msg("Failed login attempt")
			return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password"})
		}
		h.logger.Error().Err(err).Msg("Login failed")
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}

	h.logger.Info().Str("user_id", resp.User.ID).Msg("Staff logged in")
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes the current token
// @Summary Staff logout
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.MessageResponse
// @Router /api/auth/logout [post]
func (h *StaffHandlers) Logout(c echo.Context) error {
	token, _ := c.Get(auth.ContextToken).(string)
	if err := h.auth.Revoke(token); err != nil {
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized. Please login first."})
	}
	return c.JSON(http.StatusOK, models.MessageResponse{Success: true, Message: "Logged out"})
}

// Me returns the logged in staff account
// @Summary Current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 404 {object} models.ErrorResponse
// @Router /api/auth/me [get]
func (h *StaffHandlers) Me(c echo.Context) error {
	claims := auth.ClaimsFrom(c)
	if claims == nil {
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized. Please login first."})
	}
	user, err := h.users.GetUser(c.Request().Context(), claims.Subject)
	if err != nil {
		return storeError(c, err, "User not found")
	}
	return c.JSON(http.StatusOK, user)
}

// ListUsers returns staff accounts
// @Summary List users
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param role query string false "Role filter"
// @Success 200 {array} models.User
// @Router /api/users [get]
func (h *StaffHandlers) ListUsers(c echo.Context) error {
	users, err := h.users.ListUsers(c.Request().Context(), models.UserRole(c.QueryParam("role")))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list users")
		return storeError(c, err, "User not found")
	}
	return c.JSON(http.StatusOK, users)
}

// CreateUser registers a staff account
// @Summary Create user
// @Description Admins only
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateUserRequest true "User"
// @Success 201 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Router /api/users [post]
func (h *StaffHandlers) CreateUser(c echo.Context) error {
	var req models.CreateUserRequest
	if ok, err := bindRequest(c, &req); !ok {
		return err
	}
	if !req.Role.Valid() {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Unknown role"})
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to hash password")
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}

	user := &models.User{
		Email:        req.Email,
		FullName:     req.FullName,
		Role:         req.Role,
		PasswordHash: hash,
	}
	if req.Department != "" {
		department := req.Department
		user.Department = &department
	}

	if err := h.users.CreateUser(c.Request().Context(), user); err != nil {
		h.logger.Error().Err(err).Str("email", req.Email).Msg("Failed to create user")
		return storeError(c, err, "User not found")
	}
	return c.JSON(http.StatusCreated, user)
}

// DeleteUser removes a staff account
// @Summary Delete user
// @Description Admins only. Refused for the caller's own account and for users with assigned tickets.
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/users/{id} [delete]
func (h *StaffHandlers) DeleteUser(c echo.Context) error {
	id := c.Param("id")
	if self := actor(c); self != nil && *self == id {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Cannot delete your own account"})
	}
	if err := h.users.DeleteUser(c.Request().Context(), id); err != nil {
		return storeError(c, err, "User not found")
	}
	return c.JSON(http.StatusOK, models.MessageResponse{Success: true, Message: "User deleted"})
}

// ListDepartments returns all departments
// @Summary List departments
// @Tags departments
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Department
// @Router /api/departments [get]
func (h *StaffHandlers) ListDepartments(c echo.Context) error {
	departments, err := h.departments.ListDepartments(c.Request().Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list departments")
		return storeError(c, err, "Department not found")
	}
	return c.JSON(http.StatusOK, departments)
}

// GetDepartment returns one department
// @Summary Get department
// @Tags departments
// @Produce json
// @Security BearerAuth
// @Param id path int true "Department ID"
// @Success 200 {object} models.Department
// @Failure 404 {object} models.ErrorResponse
// @Router /api/departments/{id} [get]
func (h *StaffHandlers) GetDepartment(c echo.Context) error {
	id, ok := departmentID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid department id"})
	}
	department, err := h.departments.GetDepartment(c.Request().Context(), id)
	if err != nil {
		return storeError(c, err, "Department not found")
	}
	return c.JSON(http.StatusOK, department)
}

// CreateDepartment adds a department
// @Summary Create department
// @Tags departments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.DepartmentRequest true "Department"
// @Success 201 {object} models.Department
// @Failure 400 {object} models.ErrorResponse
// @Router /api/departments [post]
func (h *StaffHandlers) CreateDepartment(c echo.Context) error {
	var req models.DepartmentRequest
	if ok, err := bindRequest(c, &req); !ok {
		return err
	}
	department, err := h.departments.CreateDepartment(c.Request().Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Str("name", req.Name).Msg("Failed to create department")
		return storeError(c, err, "Department not found")
	}
	return c.JSON(http.StatusCreated, department)
}

// UpdateDepartment replaces a department
// @Summary Update department
// @Tags departments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Department ID"
// @Param request body models.DepartmentRequest true "Department"
// @Success 200 {object} models.Department
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/departments/{id} [put]
func (h *StaffHandlers) UpdateDepartment(c echo.Context) error {
	id, ok := departmentID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid department id"})
	}
	var req models.DepartmentRequest
	if ok, err := bindRequest(c, &req); !ok {
		return err
	}
	department, err := h.departments.UpdateDepartment(c.Request().Context(), id, req)
	if err != nil {
		return storeError(c, err, "Department not found")
	}
	return c.JSON(http.StatusOK, department)
}

// DeleteDepartment removes a department nobody references
// @Summary Delete department
// @Tags departments
// @Produce json
// @Security BearerAuth
// @Param id path int true "Department ID"
// @Success 200 {object} models.MessageResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/departments/{id} [delete]
func (h *StaffHandlers) DeleteDepartment(c echo.Context) error {
	id, ok := departmentID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid department id"})
	}
	if err := h.departments.DeleteDepartment(c.Request().Context(), id); err != nil {
		return storeError(c, err, "Department not found")
	}
	return c.JSON(http.StatusOK, models.MessageResponse{Success: true, Message: "Department deleted"})
}

func departmentID(c echo.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	return id, err == nil && id > 0
}
