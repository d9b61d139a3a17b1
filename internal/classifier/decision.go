package classifier

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// RelevanceThreshold is the similarity at which retrieved context counts as evidence
const RelevanceThreshold = 0.20

// ReasonNoContext is recorded when nothing relevant was retrieved and the model gave no reason
const ReasonNoContext = "no relevant context"

// Decision is the escalation verdict extracted from a completion
type Decision struct {
	Confidence  float64 `json:"confidence"`
	NeedsTicket bool    `json:"needs_ticket"`
	Reason      string  `json:"reason"`
}

var (
	markerPattern    = regexp.MustCompile(`(?i)\[TICKET_REQUIRED\]\s*CONFIDENCE:\s*([\d.]+)\s*NEEDS_TICKET:\s*(true|false)\s*REASON:\s*([\s\S]+)`)
	altMarkerPattern = regexp.MustCompile(`(?i)CONFIDENCE:\s*([\d.]+)\s*REASON:\s*([\s\S]+)`)
	markerBlock      = regexp.MustCompile(`(?i)\[TICKET_REQUIRED\][\s\S]*$`)
	altMarkerLine    = regexp.MustCompile(`(?i)CONFIDENCE:\s*[\d.]+\s*REASON:\s*[^\n]+`)
)

var technicalPattern = regexp.MustCompile(`роутер|модем|оборудован|диагностик|техническ|не работает|сломал|поломк|замен|техническая проблема|помощь специалиста|требуется вмешательство|выезд|ремонт`)

// ParseMarker reads the ticket marker block from prose. The full block is tried first,
// then the bare CONFIDENCE/REASON pair which implies a ticket.
func ParseMarker(text string) (*Decision, bool) {
	if m := markerPattern.FindStringSubmatch(text); m != nil {
		return &Decision{
			Confidence:  parseConfidence(m[1]),
			NeedsTicket: strings.EqualFold(m[2], "true"),
			Reason:      firstParagraph(m[3]),
		}, true
	}
	if m := altMarkerPattern.FindStringSubmatch(text); m != nil {
		return &Decision{
			Confidence:  parseConfidence(m[1]),
			NeedsTicket: true,
			Reason:      firstParagraph(m[2]),
		}, true
	}
	return nil, false
}

// StripMarker removes any marker block from the answer text
func StripMarker(text string) string {
	text = markerBlock.ReplaceAllString(text, "")
	text = altMarkerLine.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// firstParagraph cuts the reason at the first blank line
func firstParagraph(s string) string {
	if i := strings.Index(s, "\n\n"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func parseConfidence(s string) float64 {
	s = strings.TrimRight(s, ".")
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// "0.8.5" and the like: keep the leading number
		if i := strings.Index(s, "."); i >= 0 {
			if j := strings.Index(s[i+1:], "."); j >= 0 {
				value, err = strconv.ParseFloat(s[:i+1+j], 64)
			}
		}
		if err != nil {
			return 0
		}
	}
	return clamp(value)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// structuredAnswer is the schema-constrained completion payload
type structuredAnswer struct {
	Answer string `json:"answer"`
	Decision
}

var answerSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"answer": {
			Type:        jsonschema.String,
			Description: "Ответ пользователю в Markdown без служебных блоков",
		},
		"needs_ticket": {
			Type:        jsonschema.Boolean,
			Description: "Нужна ли заявка специалисту",
		},
		"confidence": {
			Type:        jsonschema.Number,
			Description: "Уверенность в ответе от 0.0 до 1.0",
		},
		"reason": {
			Type:        jsonschema.String,
			Description: "Краткая причина, если нужна заявка",
		},
	},
	Required:             []string{"answer", "needs_ticket", "confidence", "reason"},
	AdditionalProperties: false,
}

func responseFormat() *openai.ChatCompletionResponseFormatJSONSchema {
	return &openai.ChatCompletionResponseFormatJSONSchema{
		Name:   "helpdesk_answer",
		Schema: &answerSchema,
		Strict: true,
	}
}

// parseStructured decodes a schema-constrained completion
func parseStructured(content string) (string, *Decision, bool) {
	var payload structuredAnswer
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &payload); err != nil {
		return "", nil, false
	}
	payload.Confidence = clamp(payload.Confidence)
	payload.Reason = strings.TrimSpace(payload.Reason)
	decision := payload.Decision
	return payload.Answer, &decision, true
}

// isTechnical reports whether the conversation asks for hands-on work
func isTechnical(text string) bool {
	return technicalPattern.MatchString(strings.ToLower(text))
}

// outcome is the final escalation verdict after the relevance rules
type outcome struct {
	escalate   bool
	suppressed bool
	confidence float64
	reason     string
}

// resolve applies the relevance rules to the model's decision.
// Below the threshold the turn always escalates. Above it a requested ticket
// stands only when the conversation describes technical work.
func resolve(decision *Decision, maxSimilarity float64, technicalText string) outcome {
	if maxSimilarity < RelevanceThreshold {
		result := outcome{escalate: true, confidence: maxSimilarity, reason: ReasonNoContext}
		if decision != nil {
			result.confidence = decision.Confidence
			if decision.Reason != "" {
				result.reason = decision.Reason
			}
		}
		return result
	}

	if decision != nil && decision.NeedsTicket {
		withReason := technicalText + " " + decision.Reason
		if !isTechnical(withReason) {
			return outcome{suppressed: true, confidence: max(RelevanceThreshold, maxSimilarity)}
		}
		return outcome{escalate: true, confidence: decision.Confidence, reason: decision.Reason}
	}

	confidence := maxSimilarity
	if decision != nil {
		confidence = decision.Confidence
	}
	return outcome{confidence: max(RelevanceThreshold, confidence)}
}
