package models

import "time"

// TicketStatus is the lifecycle state of a ticket
type TicketStatus string

// Ticket statuses
const (
	StatusOpen         TicketStatus = "open"
	StatusAccepted     TicketStatus = "accepted"
	StatusInProgress   TicketStatus = "in_progress"
	StatusResolved     TicketStatus = "resolved"
	StatusAutoResolved TicketStatus = "auto_resolved"
	StatusEscalated    TicketStatus = "escalated"
	StatusOnSite       TicketStatus = "on_site"
	StatusClosed       TicketStatus = "closed"
)

// Valid reports whether s is a known status
func (s TicketStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusAccepted, StatusInProgress, StatusResolved,
		StatusAutoResolved, StatusEscalated, StatusOnSite, StatusClosed:
		return true
	}
	return false
}

// Terminal reports whether no further work is expected on the ticket
func (s TicketStatus) Terminal() bool {
	return s == StatusResolved || s == StatusAutoResolved || s == StatusClosed
}

// Priority is the urgency of a ticket
type Priority string

// Ticket priorities
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities from low (1) to critical (4); unknown values rank 0
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	}
	return 0
}

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// AtLeast returns the higher of p and floor
func (p Priority) AtLeast(floor Priority) Priority {
	if floor.Rank() > p.Rank() {
		return floor
	}
	return p
}

// ClientType distinguishes corporate callers from private ones
type ClientType string

// Client types; the empty value means not yet determined
const (
	ClientUnknown   ClientType = ""
	ClientCorporate ClientType = "corporate"
	ClientPrivate   ClientType = "private"
)

// TicketSource is the channel a ticket came from
type TicketSource string

// Ticket sources
const (
	SourcePortal    TicketSource = "portal"
	SourceChat      TicketSource = "chat"
	SourceEmail     TicketSource = "email"
	SourcePhone     TicketSource = "phone"
	SourceCallAgent TicketSource = "call_agent"
	SourceTelegram  TicketSource = "telegram"
	SourceWhatsApp  TicketSource = "whatsapp"
)

// Valid reports whether s is a known source
func (s TicketSource) Valid() bool {
	switch s {
	case SourcePortal, SourceChat, SourceEmail, SourcePhone, SourceCallAgent, SourceTelegram, SourceWhatsApp:
		return true
	}
	return false
}

// Ticket is a support request handled by staff
// @Description Support ticket
type Ticket struct {
	ID                   string       `json:"id" db:"id"`
	UserID               string       `json:"user_id" db:"user_id"`
	ClientType           ClientType   `json:"client_type" db:"client_type"`
	Language             string       `json:"language" db:"language"`
	Source               TicketSource `json:"source" db:"source"`
	Subject              string       `json:"subject" db:"subject"`
	Category             string       `json:"category" db:"category"`
	Subcategory          string       `json:"subcategory" db:"subcategory"`
	Department           string       `json:"department" db:"department"`
	Priority             Priority     `json:"priority" db:"priority"`
	Confidence           float64      `json:"confidence" db:"confidence"`
	Content              string       `json:"content" db:"content"`
	Summary              string       `json:"summary" db:"summary"`
	Status               TicketStatus `json:"status" db:"status"`
	AssignedTo           *string      `json:"assigned_to,omitempty" db:"assigned_to"`
	AutoResolveCandidate bool         `json:"auto_resolve_candidate" db:"auto_resolve_candidate"`
	NeedOnSite           bool         `json:"need_on_site" db:"need_on_site"`
	AutoResolved         bool         `json:"auto_resolved" db:"auto_resolved"`
	SLAAcceptDeadline    *time.Time   `json:"sla_accept_deadline,omitempty" db:"sla_accept_deadline"`
	SLARemoteDeadline    *time.Time   `json:"sla_remote_deadline,omitempty" db:"sla_remote_deadline"`
	CreatedAt            time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at" db:"updated_at"`
	ClosedAt             *time.Time   `json:"closed_at,omitempty" db:"closed_at"`
}

// TicketMessage is a comment or reply attached to a ticket
// @Description Ticket message
type TicketMessage struct {
	ID        string    `json:"id" db:"id"`
	TicketID  string    `json:"ticket_id" db:"ticket_id"`
	AuthorID  *string   `json:"author_id,omitempty" db:"author_id"`
	Role      string    `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
	Internal  bool      `json:"internal" db:"internal"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TicketHistoryEntry records a single field change on a ticket
// @Description Ticket change record
type TicketHistoryEntry struct {
	ID        int       `json:"id" db:"id"`
	TicketID  string    `json:"ticket_id" db:"ticket_id"`
	FieldName string    `json:"field_name" db:"field_name"`
	OldValue  string    `json:"old_value" db:"old_value"`
	NewValue  string    `json:"new_value" db:"new_value"`
	ChangedBy *string   `json:"changed_by,omitempty" db:"changed_by"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TicketFilter narrows ticket listings
type TicketFilter struct {
	Department string
	Status     TicketStatus
	Priority   Priority
	AssignedTo string
	Limit      int
	Offset     int
}

// TicketUpdate holds the editable ticket fields; nil fields are left unchanged
// @Description Ticket patch payload
type TicketUpdate struct {
	Subject              *string       `json:"subject,omitempty"`
	Category             *string       `json:"category,omitempty"`
	Subcategory          *string       `json:"subcategory,omitempty"`
	Department           *string       `json:"department,omitempty"`
	Priority             *Priority     `json:"priority,omitempty"`
	Status               *TicketStatus `json:"status,omitempty"`
	NeedOnSite           *bool         `json:"need_on_site,omitempty"`
	Summary              *string       `json:"summary,omitempty"`
	AssignedTo           *string       `json:"-"`
	Language             *string       `json:"-"`
	AutoResolveCandidate *bool         `json:"-"`
	AutoResolved         *bool         `json:"-"`
}

// CreateTicketRequest is used by staff and call agents to register a ticket by hand
// @Description Manual ticket creation payload
type CreateTicketRequest struct {
	UserID     string       `json:"user_id" example:"77010000000"`
	ClientType ClientType   `json:"client_type" example:"private"`
	Language   string       `json:"language" example:"ru"`
	Source     TicketSource `json:"source" example:"call_agent"`
	Subject    string       `json:"subject" example:"Нет интернета"`
	Content    string       `json:"content" validate:"required" example:"Клиент сообщает что интернет отключен с утра"`
}

// AssignRequest assigns a ticket to a department and/or an engineer
// @Description Ticket assignment payload
type AssignRequest struct {
	Department string `json:"department,omitempty" example:"Network"`
	AssignedTo string `json:"assigned_to,omitempty"`
}

// AddMessageRequest appends a message to a ticket
// @Description Ticket message payload
type AddMessageRequest struct {
	Content  string `json:"content" validate:"required"`
	Internal bool   `json:"internal"`
}

// TicketListResponse is a page of tickets
// @Description Paginated ticket list
type TicketListResponse struct {
	Tickets []Ticket `json:"tickets"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// TicketDetailsResponse bundles a ticket with its messages and history
// @Description Ticket with messages and history
type TicketDetailsResponse struct {
	Ticket   Ticket               `json:"ticket"`
	Messages []TicketMessage      `json:"messages"`
	History  []TicketHistoryEntry `json:"history"`
}
