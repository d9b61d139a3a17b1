package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"helpdesk/internal/auth"
	"helpdesk/internal/database"
	"helpdesk/internal/models"
	"helpdesk/internal/tickets"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Pagination limits for list endpoints
const (
	defaultLimit = 20
	maxLimit     = 100
)

// RequestValidator plugs validator/v10 into echo's c.Validate
type RequestValidator struct {
	validate *validator.Validate
}

// NewValidator creates the request validator used by the server
func NewValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New()}
}

// Validate checks the struct's validate tags
func (v *RequestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// bindRequest decodes and validates the body into req, replying 400 on failure.
// It returns false when the handler should stop.
func bindRequest(c echo.Context, req interface{}) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: validationMessage(err)})
	}
	return true, nil
}

func validationMessage(err error) string {
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		return "Invalid field " + fe.Field() + ": " + fe.Tag()
	}
	return err.Error()
}

// storeError maps store and lifecycle errors to HTTP replies
func storeError(c echo.Context, err error, notFound string) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: notFound})
	case errors.Is(err, database.ErrConflict):
		return c.JSON(http.StatusConflict, models.ErrorResponse{Error: "Record is in use or already exists"})
	case errors.Is(err, tickets.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, models.ErrorResponse{Error: "Status change not allowed"})
	case errors.Is(err, tickets.ErrEmptyContent):
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, tickets.ErrAnalyzerUnavailable):
		return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "AI processing is not configured"})
	}
	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
}

// pagination reads limit and offset query parameters
func pagination(c echo.Context) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// actor is the id of the staff member making the request, nil for anonymous calls
func actor(c echo.Context) *string {
	claims := auth.ClaimsFrom(c)
	if claims == nil || claims.Subject == "" {
		return nil
	}
	id := claims.Subject
	return &id
}
