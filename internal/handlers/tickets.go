package handlers

import (
	"context"
	"net/http"

	"helpdesk/internal/auth"
	"helpdesk/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const ticketNotFound = "Ticket not found"

// TicketReader loads tickets and their attachments
type TicketReader interface {
	ListTickets(ctx context.Context, filter models.TicketFilter) ([]models.Ticket, int, error)
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	ListMessages(ctx context.Context, ticketID string) ([]models.TicketMessage, error)
	ListHistory(ctx context.Context, ticketID string) ([]models.TicketHistoryEntry, error)
	AddMessage(ctx context.Context, message *models.TicketMessage) error
	DeleteTicket(ctx context.Context, id string) error
}

// TicketDesk runs ticket lifecycle changes
type TicketDesk interface {
	Create(ctx context.Context, req models.CreateTicketRequest) (*models.Ticket, error)
	Update(ctx context.Context, id string, update models.TicketUpdate, changedBy *string, reason string) (*models.Ticket, error)
	Accept(ctx context.Context, id string, changedBy *string) (*models.Ticket, error)
	Assign(ctx context.Context, id, department, assignee string, changedBy *string) (*models.Ticket, error)
	CompleteRemote(ctx context.Context, id string, changedBy *string, reason string) (*models.Ticket, error)
	RequestOnSite(ctx context.Context, id string, changedBy *string, reason string) (*models.Ticket, error)
	Close(ctx context.Context, id string, changedBy *string, reason string) (*models.Ticket, error)
}

// TicketHandlers serves the staff ticket API
type TicketHandlers struct {
	store  TicketReader
	desk   TicketDesk
	logger zerolog.Logger
}

// NewTicketHandlers creates the ticket handlers
func NewTicketHandlers(store TicketReader, desk TicketDesk, logger zerolog.Logger) *TicketHandlers {
	return &TicketHandlers{
		store:  store,
		desk:   desk,
		logger: logger.With().Str("handler", "tickets").Logger(),
	}
}

// List returns a page of tickets
// @Summary List tickets
// @Description List tickets, newest first. Department users and engineers only see their own department.
// @Tags tickets
// @Produce json
// @Security BearerAuth
// @Param department query string false "Department"
// @Param status query string false "Status"
// @Param priority query string false "Priority"
// @Param assigned_to query string false "Assignee user id"
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} models.TicketListResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/tickets [get]
func (h *TicketHandlers) List(c echo.Context) error {
	limit, offset := pagination(c)
	filter := models.TicketFilter{
		Department: c.QueryParam("department"),
		Status:     models.TicketStatus(c.QueryParam("status")),
		Priority:   models.Priority(c.QueryParam("priority")),
		AssignedTo: c.QueryParam("assigned_to"),
		Limit:      limit,
		Offset:     offset,
	}
	if claims := auth.ClaimsFrom(c); claims != nil && claims.Department != "" &&
		(claims.Role == models.RoleDepartmentUser || claims.Role == models.RoleEngineer) {
		filter.Department = claims.Department
	}

	tickets, total, err := h.store.ListTickets(c.Request().Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list tickets")
		return storeError(c, err, ticketNotFound)
	}

	return c.JSON(http.StatusOK, models.TicketListResponse{
		Tickets: tickets,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// Get returns a ticket with its messages and history
// @Summary Get ticket
// @Tags tickets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Success 200 {object} models.TicketDetailsResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/tickets/{id} [get]
func (h *TicketHandlers) Get(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ticket, err := h.store.GetTicket(ctx, id)
	if err != nil {
		return storeError(c, err, ticketNotFound)
	}
	messages, err := h.store.ListMessages(ctx, id)
	if err != nil {
		h.logger.Error().Err(err).Str("ticket_id", id).Msg("Failed to list ticket messages")
		return storeError(c, err, ticketNotFound)
	}
	history, err := h.store.ListHistory(ctx, id)
	if err != nil {
		h.logger.Error().Err(err).Str("ticket_id", id).Msg("Failed to list ticket history")
		return storeError(c, err, ticketNotFound)
	}

	return c.JSON(http.StatusOK, models.TicketDetailsResponse{
		Ticket:   *ticket,
		Messages: messages,
		History:  history,
	})
}

// Create registers a ticket by hand
// @Summary Create ticket
// @Description Register a ticket from a call or a walk-in; category, department and priority are derived from the content.
// @Tags tickets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateTicketRequest true "Ticket"
// @Success 201 {object} models.Ticket
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/tickets [post]
func (h *TicketHandlers) Create(c echo.Context) error {
	var req models.CreateTicketRequest
	if ok, err := bindRequest(c, &req); !ok {
		return err
	}
	if req.Source != "" && !req.Source.Valid() {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Unknown ticket source"})
	}

	ticket, err := h.desk.Create(c.Request().Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create ticket")
		return storeError(c, err, ticketNotFound)
	}
	return c.JSON(http.StatusCreated, ticket)
}

// Update patches a ticket
// @Summary Update ticket
// @Tags tickets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Param request body models.TicketUpdate true "Changed fields"
// @Success 200 {object} models.Ticket
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/tickets/{id} [patch]
func (h *TicketHandlers) Update(c echo.Context) error {
	var update models.TicketUpdate
	if err := c.Bind(&update); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
	}
	if update.Priority != nil && !update.Priority.Valid() {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Unknown priority"})
	}

	ticket, err := h.desk.Update(c.Request().Context(), c.Param("id"), update, actor(c), "updated")
	if err != nil {
		return storeError(c, err, ticketNotFound)
	}
	return c.JSON(http.StatusOK, ticket)
}

// Accept takes a ticket into work
// @Summary Accept ticket
// @Tags tickets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Success 200 {object} models.Ticket
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/tickets/{id}/accept [post]
func (h *TicketHandlers) Accept(c echo.Context) error {
	ticket, err := h.desk.Accept(c.Request().Context(), c.Param("id"), actor(c))
	if err != nil {
		return storeError(c, err, ticketNotFound)
	}
	return c.JSON(http.StatusOK, ticket)
}

// Assign routes a ticket to a department or engineer
// @Summary Assign ticket
// @Description Admins and supervisors only
// @Tags tickets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Param request body models.AssignRequest true "Assignment"
// @Success 200 {object} models.Ticket
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/tickets/{id}/assign [post]
func (h *TicketHandlers) Assign(c echo.Context) error {
	var req models.AssignRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
	}
	if req.Department == "" && req.AssignedTo == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "department or assigned_to is required"})
	}

	ticket, err := h.desk.Assign(c.Request().Context(), c.Param("id"), req.Department, req.AssignedTo, actor(c))
	if err != nil {
		return storeError(c, err, ticketNotFound)
	}
	return c.JSON(http.StatusOK, ticket)
}

// CompleteRemote resolves a ticket without a visit
// @Summary Complete ticket remotely
// @Tags tickets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Success 200 {object} models.Ticket
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/tickets/{id}/complete_remote [post]
func (h *TicketHandlers) CompleteRemote(c echo.Context) error {
	ticket, err := h.desk.CompleteRemote(c.Request().Context(), c.Param("id"), actor(c), c.QueryParam("reason"))
	if err != nil {
		return storeError(c, err, ticketNotFound)
	}
	return c.JSON(http.StatusOK, ticket)
}

// RequestOnSite sends an engineer to the customer
// @Summary Request on-site visit
// @Tags tickets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Success 200 {object} models.Ticket
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/tickets/{id}/request_on_site [post]
func (h *TicketHandlers) RequestOnSite(c echo.Context) error {
	ticket, err := h.desk.RequestOnSite(c.Request().Context(), c.Param("id"), actor(c), c.QueryParam("reason"))
	if err != nil {
		return storeError(c, err, ticketNotFound)
	}
	return c.JSON(http.StatusOK, ticket)
}

// Close finishes a ticket
// @Summary Close ticket
// @Tags tickets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Success 200 {object} models.Ticket
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/tickets/{id}/close [post]
func (h *TicketHandlers) Close(c echo.Context) error {
	ticket, err := h.desk.Close(c.Request().Context(), c.Param("id"), actor(c), c.QueryParam("reason"))
	if err != nil {
		return storeError(c, err, ticketNotFound)
	}
	return c.JSON(http.StatusOK, ticket)
}

// Delete removes a ticket
// @Summary Delete ticket
// @Description Admins and supervisors only
// @Tags tickets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Success 200 {object} models.MessageResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/tickets/{id} [delete]
func (h *TicketHandlers) Delete(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.DeleteTicket(c.Request().Context(), id); err != nil {
		return storeError(c, err, ticketNotFound)
	}
	h.logger.Info().Str("ticket_id", id).Msg("Ticket deleted")
	return c.JSON(http.StatusOK, models.MessageResponse{Success: true, Message: "Ticket deleted"})
}

// ListMessages returns the messages of a ticket
// @Summary List ticket messages
// @Tags tickets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Success 200 {array} models.TicketMessage
// @Failure 404 {object} models.ErrorResponse
// @Router /api/tickets/{id}/messages [get]
func (h *TicketHandlers) ListMessages(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if _, err := h.store.GetTicket(ctx, id); err != nil {
		return storeError(c, err, ticketNotFound)
	}

	messages, err := h.store.ListMessages(ctx, id)
	if err != nil {
		return storeError(c, err, ticketNotFound)
	}
	return c.JSON(http.StatusOK, messages)
}

// AddMessage appends a staff message to a ticket
// @Summary Add ticket message
// @Tags tickets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Param request body models.AddMessageRequest true "Message"
// @Success 201 {object} models.TicketMessage
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/tickets/{id}/messages [post]
func (h *TicketHandlers) AddMessage(c echo.Context) error {
	var req models.AddMessageRequest
	if ok, err := bindRequest(c, &req); !ok {
		return err
	}

	ctx := c.Request().Context()
	id := c.Param("id")
	if _, err := h.store.GetTicket(ctx, id); err != nil {
		return storeError(c, err, ticketNotFound)
	}

	role := "staff"
	if claims := auth.ClaimsFrom(c); claims != nil {
		role = string(claims.Role)
	}
	message := &models.TicketMessage{
		TicketID: id,
		AuthorID: actor(c),
		Role:     role,
		Content:  req.Content,
		Internal: req.Internal,
	}
	if err := h.store.AddMessage(ctx, message); err != nil {
		h.logger.Error().Err(err).Str("ticket_id", id).Msg("Failed to add ticket message")
		return storeError(c, err, ticketNotFound)
	}
	return c.JSON(http.StatusCreated, message)
}
