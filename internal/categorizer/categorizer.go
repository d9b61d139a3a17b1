// Package categorizer routes an escalated conversation to a category, department and priority.
package categorizer

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"helpdesk/internal/models"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Department routing names
const (
	DepartmentTechSupport = "TechSupport"
	DepartmentNetwork     = "Network"
	DepartmentBilling     = "Billing"
)

// Category names
const (
	CategoryNetwork   = "network"
	CategoryTelephony = "telephony"
	CategoryTV        = "tv"
	CategoryBilling   = "billing"
	CategoryEquipment = "equipment"
	CategoryOther     = "other"
)

const subjectLimit = 50

// Categorization is the routing decision for a ticket
type Categorization struct {
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Department  string          `json:"department"`
	Priority    models.Priority `json:"priority"`
}

type branch struct {
	pattern     *regexp.Regexp
	subcategory string
	priority    models.Priority
	department  string
}

type group struct {
	category   string
	pattern    *regexp.Regexp
	department string
	branches   []branch
	fallback   string
}

// Groups are checked in order and the first match wins; the same holds for branches
var groups = []group{
	{
		category: CategoryNetwork,
		pattern:  regexp.MustCompile(`интернет|интернета|подключ|соединен|связь|сеть|network|internet|wi-fi|wifi`),
		branches: []branch{
			{pattern: regexp.MustCompile(`скорост|медлен|тормоз|lag|speed`), subcategory: "internet_speed", priority: models.PriorityHigh},
			{pattern: regexp.MustCompile(`нет интернет|не работает|отключ|disconnect`), subcategory: "connection_issue", priority: models.PriorityCritical},
			{pattern: regexp.MustCompile(`vpn|випиэн`), subcategory: "vpn_access", department: DepartmentNetwork},
		},
		fallback: "general_network",
	},
	{
		category: CategoryTelephony,
		pattern:  regexp.MustCompile(`телефон|звонок|звонки|telephony|call|phone`),
		branches: []branch{
			{pattern: regexp.MustCompile(`не звон|не работает|не могу позвонить`), subcategory: "call_issue", priority: models.PriorityHigh},
		},
		fallback: "general_telephony",
	},
	{
		category: CategoryTV,
		pattern:  regexp.MustCompile(`телевизор|тв|tv|канал|каналы|программа`),
		branches: []branch{
			{pattern: regexp.MustCompile(`не работает|нет сигнал|не показывает`), subcategory: "signal_issue", priority: models.PriorityHigh},
		},
		fallback: "general_tv",
	},
	{
		category:   CategoryBilling,
		pattern:    regexp.MustCompile(`оплат|платеж|счет|биллинг|billing|тариф|цена|стоимость|деньги`),
		department: DepartmentBilling,
		branches: []branch{
			{pattern: regexp.MustCompile(`не могу оплат|проблем|ошибк|не проходит`), subcategory: "payment_issue", priority: models.PriorityHigh},
		},
		fallback: "general_billing",
	},
	{
		category: CategoryEquipment,
		pattern:  regexp.MustCompile(`оборудован|роутер|модем|устройств|equipment|device`),
		branches: []branch{
			{pattern: regexp.MustCompile(`не работает|сломал|поломк|замен`), subcategory: "equipment_failure", priority: models.PriorityHigh},
		},
		fallback: "general_equipment",
	},
}

// Urgency keywords, most urgent first
var urgency = []struct {
	pattern  *regexp.Regexp
	priority models.Priority
}{
	{regexp.MustCompile(`срочно|критич|критическ|urgent|critical|не работает|полностью`), models.PriorityCritical},
	{regexp.MustCompile(`важно|important|проблем|problem`), models.PriorityHigh},
	{regexp.MustCompile(`вопрос|информац|уточнени|question`), models.PriorityLow},
}

// Categorize classifies the conversation text. It is pure: equal inputs give equal results.
// Urgency keywords and the corporate floor only ever raise the priority.
func Categorize(message string, history []models.ConversationTurn, clientType models.ClientType) Categorization {
	text := normalize(message, history)

	result := Categorization{
		Category:   CategoryOther,
		Department: DepartmentTechSupport,
		Priority:   models.PriorityMedium,
	}

	for _, g := range groups {
		if !g.pattern.MatchString(text) {
			continue
		}
		result.Category = g.category
		if g.department != "" {
			result.Department = g.department
		}
		result.Subcategory = g.fallback
		for _, b := range g.branches {
			if !b.pattern.MatchString(text) {
				continue
			}
			result.Subcategory = b.subcategory
			if b.priority != "" {
				result.Priority = b.priority
			}
			if b.department != "" {
				result.Department = b.department
			}
			break
		}
		break
	}

	for _, u := range urgency {
		if u.pattern.MatchString(text) {
			result.Priority = result.Priority.AtLeast(u.priority)
			break
		}
	}

	if clientType == models.ClientCorporate {
		result.Priority = result.Priority.AtLeast(models.PriorityHigh)
	}

	return result
}

// Subject derives a short ticket subject from the first message
func Subject(message string) string {
	message = strings.TrimSpace(message)
	if utf8.RuneCountInString(message) <= subjectLimit {
		return message
	}
	runes := []rune(message)
	return string(runes[:subjectLimit]) + "..."
}

func normalize(message string, history []models.ConversationTurn) string {
	parts := make([]string, 0, len(history)+1)
	parts = append(parts, message)
	for _, turn := range history {
		parts = append(parts, turn.Content)
	}
	// Casers keep state, so each call gets its own
	return cases.Lower(language.Russian).String(strings.Join(parts, " "))
}
