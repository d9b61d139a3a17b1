package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"helpdesk/internal/auth"
	"helpdesk/internal/database"
	"helpdesk/internal/models"
	"helpdesk/internal/tickets"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTicketStore struct {
	tickets  map[string]*models.Ticket
	messages []models.TicketMessage
	filter   models.TicketFilter
}

func newFakeTicketStore(ids ...string) *fakeTicketStore {
	store := &fakeTicketStore{tickets: map[string]*models.Ticket{}}
	for _, id := range ids {
		store.tickets[id] = &models.Ticket{
			ID:         id,
			Category:   "technical",
			Department: "Network",
			Status:     models.StatusOpen,
		}
	}
	return store
}

func (f *fakeTicketStore) ListTickets(_ context.Context, filter models.TicketFilter) ([]models.Ticket, int, error) {
	f.filter = filter
	list := make([]models.Ticket, 0, len(f.tickets))
	for _, t := range f.tickets {
		list = append(list, *t)
	}
	return list, len(list), nil
}

func (f *fakeTicketStore) GetTicket(_ context.Context, id string) (*models.Ticket, error) {
	t, ok := f.tickets[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return t, nil
}

func (f *fakeTicketStore) ListMessages(_ context.Context, ticketID string) ([]models.TicketMessage, error) {
	var out []models.TicketMessage
	for _, m := range f.messages {
		if m.TicketID == ticketID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeTicketStore) ListHistory(_ context.Context, ticketID string) ([]models.TicketHistoryEntry, error) {
	return []models.TicketHistoryEntry{{TicketID: ticketID}}, nil
}

func (f *fakeTicketStore) AddMessage(_ context.Context, message *models.TicketMessage) error {
	message.ID = fmt.Sprintf("m%d", len(f.messages)+1)
	f.messages = append(f.messages, *message)
	return nil
}

func (f *fakeTicketStore) DeleteTicket(_ context.Context, id string) error {
	if _, ok := f.tickets[id]; !ok {
		return database.ErrNotFound
	}
	delete(f.tickets, id)
	return nil
}

type fakeDesk struct {
	store     *fakeTicketStore
	err       error
	changedBy *string
	reason    string
	created   models.CreateTicketRequest
}

func (d *fakeDesk) transition(id string, status models.TicketStatus, changedBy *string, reason string) (*models.Ticket, error) {
	if d.err != nil {
		return nil, d.err
	}
	t, err := d.store.GetTicket(context.Background(), id)
	if err != nil {
		return nil, err
	}
	d.changedBy = changedBy
	d.reason = reason
	t.Status = status
	return t, nil
}

func (d *fakeDesk) Create(_ context.Context, req models.CreateTicketRequest) (*models.Ticket, error) {
	d.created = req
	t := &models.Ticket{ID: "T-new", Status: models.StatusOpen, Source: req.Source}
	d.store.tickets[t.ID] = t
	return t, nil
}

func (d *fakeDesk) Update(_ context.Context, id string, update models.TicketUpdate, changedBy *string, reason string) (*models.Ticket, error) {
	t, err := d.transition(id, models.StatusOpen, changedBy, reason)
	if err == nil && update.Priority != nil {
		t.Priority = *update.Priority
	}
	return t, err
}

func (d *fakeDesk) Accept(_ context.Context, id string, changedBy *string) (*models.Ticket, error) {
	return d.transition(id, models.StatusAccepted, changedBy, "")
}

func (d *fakeDesk) Assign(_ context.Context, id, department, _ string, changedBy *string) (*models.Ticket, error) {
	t, err := d.transition(id, models.StatusAccepted, changedBy, "")
	if err == nil && department != "" {
		t.Department = department
	}
	return t, err
}

func (d *fakeDesk) CompleteRemote(_ context.Context, id string, changedBy *string, reason string) (*models.Ticket, error) {
	return d.transition(id, models.StatusResolved, changedBy, reason)
}

func (d *fakeDesk) RequestOnSite(_ context.Context, id string, changedBy *string, reason string) (*models.Ticket, error) {
	return d.transition(id, models.StatusOnSite, changedBy, reason)
}

func (d *fakeDesk) Close(_ context.Context, id string, changedBy *string, reason string) (*models.Ticket, error) {
	return d.transition(id, models.StatusClosed, changedBy, reason)
}

func withClaims(c echo.Context, userID string, role models.UserRole, department string) {
	c.Set(auth.ContextClaims, &auth.Claims{
		Role:             role,
		Department:       department,
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
	})
}

func newTicketHandlers(ids ...string) (*TicketHandlers, *fakeTicketStore, *fakeDesk) {
	store := newFakeTicketStore(ids...)
	desk := &fakeDesk{store: store}
	return NewTicketHandlers(store, desk, zerolog.Nop()), store, desk
}

func TestTicketHandlers_List(t *testing.T) {
	tests := []struct {
		name               string
		target             string
		role               models.UserRole
		department         string
		expectedDepartment string
		expectedLimit      int
	}{
		{
			name:               "operator sees the requested department",
			target:             "/api/tickets?department=Billing&limit=5",
			role:               models.RoleOperator,
			expectedDepartment: "Billing",
			expectedLimit:      5,
		},
		{
			name:               "department user is scoped to their department",
			target:             "/api/tickets?department=Billing",
			role:               models.RoleDepartmentUser,
			department:         "Network",
			expectedDepartment: "Network",
			expectedLimit:      defaultLimit,
		},
		{
			name:               "engineer is scoped to their department",
			target:             "/api/tickets?limit=1000",
			role:               models.RoleEngineer,
			department:         "Network",
			expectedDepartment: "Network",
			expectedLimit:      maxLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store, _ := newTicketHandlers("T-1")
			c, rec := newTestContext(http.MethodGet, tt.target, "")
			withClaims(c, "u1", tt.role, tt.department)

			require.NoError(t, h.List(c))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.expectedDepartment, store.filter.Department)
			assert.Equal(t, tt.expectedLimit, store.filter.Limit)

			var resp models.TicketListResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, 1, resp.Total)
			assert.Len(t, resp.Tickets, 1)
		})
	}
}

func TestTicketHandlers_Get(t *testing.T) {
	h, store, _ := newTicketHandlers("T-1")
	store.messages = []models.TicketMessage{{ID: "m1", TicketID: "T-1", Content: "Нет интернета"}}

	c, rec := newTestContext(http.MethodGet, "/api/tickets/T-1", "")
	c.SetParamNames("id")
	c.SetParamValues("T-1")
	require.NoError(t, h.Get(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.TicketDetailsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "T-1", resp.Ticket.ID)
	assert.Len(t, resp.Messages, 1)
	assert.Len(t, resp.History, 1)

	c, rec = newTestContext(http.MethodGet, "/api/tickets/missing", "")
	c.SetParamNames("id")
	c.SetParamValues("missing")
	require.NoError(t, h.Get(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ticketNotFound, decodeError(t, rec))
}

func TestTicketHandlers_Create(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{name: "call agent ticket", body: `{"content":"Нет интернета","source":"call_agent"}`, expectedStatus: http.StatusCreated},
		{name: "missing content", body: `{"source":"phone"}`, expectedStatus: http.StatusBadRequest},
		{name: "unknown source", body: `{"content":"x","source":"fax"}`, expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, desk := newTicketHandlers()
			c, rec := newTestContext(http.MethodPost, "/api/tickets", tt.body)

			require.NoError(t, h.Create(c))
			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedStatus == http.StatusCreated {
				assert.Equal(t, models.SourceCallAgent, desk.created.Source)
			}
		})
	}
}

func TestTicketHandlers_Lifecycle(t *testing.T) {
	tests := []struct {
		name           string
		call           func(h *TicketHandlers, c echo.Context) error
		deskErr        error
		id             string
		expectedStatus int
		expectedState  models.TicketStatus
	}{
		{
			name:           "accept",
			call:           (*TicketHandlers).Accept,
			id:             "T-1",
			expectedStatus: http.StatusOK,
			expectedState:  models.StatusAccepted,
		},
		{
			name:           "complete remote",
			call:           (*TicketHandlers).CompleteRemote,
			id:             "T-1",
			expectedStatus: http.StatusOK,
			expectedState:  models.StatusResolved,
		},
		{
			name:           "request on site",
			call:           (*TicketHandlers).RequestOnSite,
			id:             "T-1",
			expectedStatus: http.StatusOK,
			expectedState:  models.StatusOnSite,
		},
		{
			name:           "close",
			call:           (*TicketHandlers).Close,
			id:             "T-1",
			expectedStatus: http.StatusOK,
			expectedState:  models.StatusClosed,
		},
		{
			name:           "unknown ticket",
			call:           (*TicketHandlers).Close,
			id:             "missing",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "transition not allowed",
			call:           (*TicketHandlers).Accept,
			deskErr:        fmt.Errorf("accept T-1: %w", tickets.ErrInvalidTransition),
			id:             "T-1",
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, desk := newTicketHandlers("T-1")
			desk.err = tt.deskErr
			c, rec := newTestContext(http.MethodPost, "/api/tickets/"+tt.id+"/action?reason=done", "")
			c.SetParamNames("id")
			c.SetParamValues(tt.id)
			withClaims(c, "u1", models.RoleOperator, "")

			require.NoError(t, tt.call(h, c))
			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var ticket models.Ticket
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ticket))
			assert.Equal(t, tt.expectedState, ticket.Status)
			require.NotNil(t, desk.changedBy)
			assert.Equal(t, "u1", *desk.changedBy)
		})
	}
}

func TestTicketHandlers_Update(t *testing.T) {
	h, _, desk := newTicketHandlers("T-1")

	c, rec := newTestContext(http.MethodPatch, "/api/tickets/T-1", `{"priority":"urgent"}`)
	c.SetParamNames("id")
	c.SetParamValues("T-1")
	require.NoError(t, h.Update(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newTestContext(http.MethodPatch, "/api/tickets/T-1", `{"priority":"critical"}`)
	c.SetParamNames("id")
	c.SetParamValues("T-1")
	require.NoError(t, h.Update(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "updated", desk.reason)
	assert.Nil(t, desk.changedBy)
}

func TestTicketHandlers_Assign(t *testing.T) {
	h, _, _ := newTicketHandlers("T-1")

	c, rec := newTestContext(http.MethodPost, "/api/tickets/T-1/assign", `{}`)
	c.SetParamNames("id")
	c.SetParamValues("T-1")
	require.NoError(t, h.Assign(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newTestContext(http.MethodPost, "/api/tickets/T-1/assign", `{"department":"Billing"}`)
	c.SetParamNames("id")
	c.SetParamValues("T-1")
	require.NoError(t, h.Assign(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var ticket models.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ticket))
	assert.Equal(t, "Billing", ticket.Department)
}

func TestTicketHandlers_Messages(t *testing.T) {
	h, store, _ := newTicketHandlers("T-1")

	c, rec := newTestContext(http.MethodPost, "/api/tickets/T-1/messages", `{"content":"Выехал мастер","internal":true}`)
	c.SetParamNames("id")
	c.SetParamValues("T-1")
	withClaims(c, "eng-1", models.RoleEngineer, "Network")
	require.NoError(t, h.AddMessage(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, store.messages, 1)
	assert.Equal(t, "engineer", store.messages[0].Role)
	assert.True(t, store.messages[0].Internal)
	require.NotNil(t, store.messages[0].AuthorID)
	assert.Equal(t, "eng-1", *store.messages[0].AuthorID)

	c, rec = newTestContext(http.MethodPost, "/api/tickets/T-1/messages", `{"content":""}`)
	c.SetParamNames("id")
	c.SetParamValues("T-1")
	require.NoError(t, h.AddMessage(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newTestContext(http.MethodGet, "/api/tickets/T-1/messages", "")
	c.SetParamNames("id")
	c.SetParamValues("T-1")
	require.NoError(t, h.ListMessages(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var messages []models.TicketMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	assert.Len(t, messages, 1)

	c, rec = newTestContext(http.MethodGet, "/api/tickets/missing/messages", "")
	c.SetParamNames("id")
	c.SetParamValues("missing")
	require.NoError(t, h.ListMessages(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTicketHandlers_Delete(t *testing.T) {
	h, store, _ := newTicketHandlers("T-1")

	c, rec := newTestContext(http.MethodDelete, "/api/tickets/T-1", "")
	c.SetParamNames("id")
	c.SetParamValues("T-1")
	require.NoError(t, h.Delete(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.tickets)

	c, rec = newTestContext(http.MethodDelete, "/api/tickets/T-1", "")
	c.SetParamNames("id")
	c.SetParamValues("T-1")
	require.NoError(t, h.Delete(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
