package assistant

import (
	"fmt"
	"strings"

	"helpdesk/internal/categorizer"
	"helpdesk/internal/models"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const (
	classifyMaxTokens = 400
	summaryMaxTokens  = 200
	answerMaxTokens   = 1200
	temperature       = 0.2
)

const classifyPrompt = `Ты классификатор заявок Help Desk Казахтелеком. Определи по тексту заявки:
- language: язык заявки (ru, kk или en)
- category: одна из network, telephony, tv, billing, equipment, other
- subcategory: короткое уточнение латиницей, например internet, wifi, payment, router
- department: Network, Billing или TechSupport
- priority: low, medium, high или critical
- auto_resolve_candidate: true, если вопрос решается инструкцией без специалиста
- confidence: уверенность в классификации от 0.0 до 1.0
Верни только JSON.`

const summaryPrompt = `Кратко перескажи заявку клиента в 1-3 предложениях для инженера поддержки.
Пиши на языке заявки, без приветствий и без выдуманных деталей.`

const answerPrompt = `Ты инженер поддержки Казахтелеком. Подготовь ответ клиенту по заявке, используя ТОЛЬКО
фрагменты базы знаний ниже (помечены как [Информация N]). Если фрагментов недостаточно, честно скажи об этом
и поставь низкую уверенность. need_on_site = true, если проблему нельзя решить без выезда специалиста.
Отвечай на языке клиента (%s). Верни только JSON.`

var classificationSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"language":    {Type: jsonschema.String, Enum: []string{"ru", "kk", "en"}},
		"category":    {Type: jsonschema.String, Enum: categories},
		"subcategory": {Type: jsonschema.String},
		"department":  {Type: jsonschema.String, Enum: departments},
		"priority": {
			Type: jsonschema.String,
			Enum: []string{
				string(models.PriorityLow), string(models.PriorityMedium),
				string(models.PriorityHigh), string(models.PriorityCritical),
			},
		},
		"auto_resolve_candidate": {Type: jsonschema.Boolean},
		"confidence":             {Type: jsonschema.Number, Description: "от 0.0 до 1.0"},
	},
	Required:             []string{"language", "category", "subcategory", "department", "priority", "auto_resolve_candidate", "confidence"},
	AdditionalProperties: false,
}

var answerSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"answer":           {Type: jsonschema.String, Description: "Ответ клиенту в Markdown"},
		"resolution_steps": {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}},
		"need_on_site":     {Type: jsonschema.Boolean},
		"confidence":       {Type: jsonschema.Number, Description: "от 0.0 до 1.0"},
	},
	Required:             []string{"answer", "resolution_steps", "need_on_site", "confidence"},
	AdditionalProperties: false,
}

var categories = []string{
	categorizer.CategoryNetwork, categorizer.CategoryTelephony, categorizer.CategoryTV,
	categorizer.CategoryBilling, categorizer.CategoryEquipment, categorizer.CategoryOther,
}

var departments = []string{
	categorizer.DepartmentNetwork, categorizer.DepartmentBilling, categorizer.DepartmentTechSupport,
}

func schemaFormat(name string, schema *jsonschema.Definition) *openai.ChatCompletionResponseFormatJSONSchema {
	return &openai.ChatCompletionResponseFormatJSONSchema{
		Name:   name,
		Schema: schema,
		Strict: true,
	}
}

func classifyMessages(text string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: classifyPrompt},
		{Role: openai.ChatMessageRoleUser, Content: text},
	}
}

func summaryMessages(text string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: summaryPrompt},
		{Role: openai.ChatMessageRoleUser, Content: text},
	}
}

func answerMessages(text, language string, chunks []models.RetrievedChunk) []openai.ChatCompletionMessage {
	var kb strings.Builder
	for i, chunk := range chunks {
		fmt.Fprintf(&kb, "[Информация %d]", i+1)
		if chunk.Page != nil {
			fmt.Fprintf(&kb, " (Страница %d)", *chunk.Page)
		}
		kb.WriteString("\n")
		kb.WriteString(chunk.Content)
		kb.WriteString("\n\n")
	}
	if len(chunks) == 0 {
		kb.WriteString("Фрагменты не найдены.\n")
	}

	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(answerPrompt, language)},
		{Role: openai.ChatMessageRoleSystem, Content: "База знаний:\n\n" + kb.String()},
		{Role: openai.ChatMessageRoleUser, Content: text},
	}
}
