package models

import "time"

// HealthResponse represents a basic health check response
// @Description Health check response
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`                 // Health status
	Timestamp time.Time `json:"timestamp" example:"2023-01-01T00:00:00Z"` // Timestamp of the check
	Version   string    `json:"version" example:"1.0.0"`                  // Application version
}

// DBHealthResponse represents a database health check response
// @Description Database health check response
type DBHealthResponse struct {
	Status    string        `json:"status" example:"healthy"`                   // Health status
	Timestamp time.Time     `json:"timestamp" example:"2023-01-01T00:00:00Z"`   // Timestamp of the check
	Connected bool          `json:"connected" example:"true"`                   // Database connection status
	Latency   time.Duration `json:"latency" swaggertype:"string" example:"1ms"` // Database ping latency
	Error     string        `json:"error,omitempty" example:""`                 // Error message if any
}

// ErrorResponse is the body of every failed API call
// @Description Error response
type ErrorResponse struct {
	Error string `json:"error" example:"Ticket not found"`
}

// MessageResponse is returned by actions that have nothing else to report
// @Description Action result
type MessageResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"Ticket deleted"`
}

// Conversation roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn represents a single message in a conversation
// @Description Single message in a conversation
type ConversationTurn struct {
	Role      string    `json:"role" example:"user"`
	Content   string    `json:"content" example:"Не работает интернет"`
	Timestamp time.Time `json:"timestamp,omitempty" swaggertype:"string"`
}

// ChatRequest represents the request body for the chat endpoint
// @Description Chat request payload
type ChatRequest struct {
	Message    string             `json:"message" example:"Как оплатить тариф?"`
	History    []ConversationTurn `json:"history"` // Previous turns, oldest first
	UserID     string             `json:"user_id" example:"anonymous"`
	Language   string             `json:"language" example:"ru"`
	Source     TicketSource       `json:"source,omitempty" example:"chat"`         // Channel the message came from, chat when empty
	ClientType ClientType         `json:"client_type,omitempty" example:"private"` // Already resolved by the caller, detected from history when empty
}

// Source is a knowledge base chunk returned alongside an answer
// @Description Knowledge base reference
type Source struct {
	Content    string  `json:"content"`
	Page       *int    `json:"page,omitempty" example:"5"`
	SourceType string  `json:"source_type" example:"kazakhtelecom"`
	Similarity float64 `json:"similarity" example:"0.42"`
}

// ChatResponse represents the response from the chat endpoint
// @Description Chat response payload
type ChatResponse struct {
	Answer             string     `json:"answer"`
	Sources            []Source   `json:"sources"`
	Confidence         float64    `json:"confidence" example:"0.42"`
	TicketCreated      bool       `json:"ticketCreated" example:"false"`
	TicketID           string     `json:"ticketId,omitempty"`
	RequiresClientType bool       `json:"requiresClientType,omitempty"`
	ClientType         ClientType `json:"clientType,omitempty" example:"private"`
	Error              string     `json:"error,omitempty" example:""`
}

// WhatsAppAnalyzeRequest is sent by external WhatsApp bots
// @Description WhatsApp message analysis request
type WhatsAppAnalyzeRequest struct {
	Text                string             `json:"text" validate:"required" example:"Не работает роутер"`
	WhatsAppNumber      string             `json:"whatsapp_number" example:"77010000000"`
	ConversationHistory []ConversationTurn `json:"conversation_history"`
	CreateTicket        bool               `json:"create_ticket"` // Persist a ticket when the message cannot be answered
}

// WhatsAppAnalyzeResponse tells the bot whether it can answer right away
// @Description WhatsApp message analysis result
type WhatsAppAnalyzeResponse struct {
	CanAnswer          bool    `json:"can_answer"`
	Answer             string  `json:"answer,omitempty"`
	Category           string  `json:"category,omitempty"`
	Subcategory        string  `json:"subcategory,omitempty"`
	Priority           string  `json:"priority"`
	Department         string  `json:"department"`
	Subject            string  `json:"subject"`
	Confidence         float64 `json:"confidence"`
	TicketID           string  `json:"ticket_id,omitempty"`
	RequiresClientType bool    `json:"requires_client_type,omitempty"`
}

// LoginRequest carries staff credentials
// @Description Login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"admin@helpdesk.local"`
	Password string `json:"password" validate:"required" example:"secret"`
}

// LoginResponse carries the bearer token for staff routes
// @Description Login response
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}
