package models

// TicketClassification is the model's routing verdict for a ticket
type TicketClassification struct {
	Language             string   `json:"language"`
	Category             string   `json:"category"`
	Subcategory          string   `json:"subcategory"`
	Department           string   `json:"department"`
	Priority             Priority `json:"priority"`
	AutoResolveCandidate bool     `json:"auto_resolve_candidate"`
	Confidence           float64  `json:"confidence"`
}

// SuggestedAnswer is a draft reply built from the knowledge base
type SuggestedAnswer struct {
	Answer          string   `json:"answer"`
	ResolutionSteps []string `json:"resolution_steps"`
	NeedOnSite      bool     `json:"need_on_site"`
	Confidence      float64  `json:"confidence"`
}

// TicketAnalysis bundles every model step run over a ticket
type TicketAnalysis struct {
	Classification TicketClassification
	Summary        string
	Answer         SuggestedAnswer
	Sources        []RetrievedChunk
	AutoResolve    bool
}

// AIProcessResponse is returned after a ticket was run through the assistant
// @Description AI ticket processing result
type AIProcessResponse struct {
	TicketID          string       `json:"ticket_id" example:"0b9c4c1e-8f0e-4a4e-9d43-2f8f3e1c1a10"`
	Status            TicketStatus `json:"status" example:"auto_resolved"`
	Language          string       `json:"language" example:"ru"`
	Category          string       `json:"category" example:"network"`
	Subcategory       string       `json:"subcategory" example:"internet"`
	Department        string       `json:"department" example:"Network"`
	Priority          Priority     `json:"priority" example:"medium"`
	Summary           string       `json:"summary"`
	AutoResolve       bool         `json:"auto_resolve"`
	NeedOnSite        bool         `json:"need_on_site"`
	SuggestedResponse string       `json:"suggested_response,omitempty"`
	ResolutionSteps   []string     `json:"resolution_steps,omitempty"`
	Sources           []Source     `json:"sources,omitempty"`
}

// KBSearchRequest is a staff knowledge base lookup
// @Description Knowledge base search payload
type KBSearchRequest struct {
	Query string `json:"query" validate:"required" example:"Как настроить роутер"`
	K     int    `json:"k,omitempty" validate:"gte=0,lte=20" example:"5"`
}

// KBSearchResponse lists the matching knowledge base chunks
// @Description Knowledge base search results
type KBSearchResponse struct {
	Query   string   `json:"query"`
	Results []Source `json:"results"`
}
