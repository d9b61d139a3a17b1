package classifier

import (
	"fmt"
	"strings"

	"helpdesk/internal/models"

	"github.com/sashabaranov/go-openai"
)

const (
	historyWindow = 10
	maxTokens     = 2000
	temperature   = 0.4
)

const systemPromptHeader = "Ты часть системы Help Desk Казахтелеком. Твоя основная задача — отвечать пользователю через RAG по базе знаний.\n\n"

const corporateLine = "ТИП КЛИЕНТА: Корпоративный клиент\n\n"

// Marks where the escalation instructions go in systemPromptRules
const escalationPlaceholder = "{{escalation}}"

const systemPromptRules = `ВАЖНЫЕ ПРАВИЛА:
1. ВСЕГДА сначала пытайся ответить самостоятельно через RAG, используя информацию из предоставленных фрагментов документации (помечены как [Информация 1], [Информация 2] и т.д.)
2. НЕ придумывай информацию - используй ТОЛЬКО то, что есть в предоставленных фрагментах
3. Анализируй историю разговора - используй информацию, которую пользователь уже предоставил
4. Отвечай на русском языке профессионально и понятно
5. Всегда указывай номер страницы при цитировании из документации (формат: Страница X)
6. При упоминании конкретных данных (тарифы, условия, требования) всегда указывай ТОЧНЫЕ данные из предоставленных фрагментов
7. Будь вежливым и профессиональным

ФОРМАТИРОВАНИЕ ОТВЕТА (используй Markdown для красивого отображения):

КРИТИЧЕСКИ ВАЖНО: Всегда форматируй ответ структурированно, НЕ пиши сплошным текстом!

- Используй заголовки (##) для разделения основных разделов
- Используй нумерованные списки (1., 2., 3.) для пошаговых инструкций
- Используй маркированные списки (- или *) для перечисления вариантов, тарифов, условий
- Используй **жирный текст** для выделения важной информации (названия тарифов, цены, ключевые слова, номера телефонов)
- Используй разделители (---) между разными разделами ответа
- Добавляй пустые строки между абзацами для лучшей читаемости
- Для тарифов используй формат:
  **Название тарифа**
  - Стоимость: X тг/месяц
  - Трафик: ...
  - Звонки: ...
- НЕ указывай источники в тексте ответа - они будут добавлены автоматически

ОПРЕДЕЛЕНИЕ УВЕРЕННОСТИ И НЕОБХОДИМОСТИ ТИКЕТА:

КРИТИЧЕСКИ ВАЖНО: Если в предоставленных фрагментах есть информация с релевантностью >= 20% (например, 26%, 30%, 35%, 40%) - это означает, что информация ЕСТЬ в документации и её ОБЯЗАТЕЛЬНО нужно использовать для ответа!

После анализа запроса определи:
- CONFIDENCE: твоя уверенность в ответе (0.0-1.0), где:
  * Если релевантность фрагментов >= 20% → CONFIDENCE должен быть >= 0.2 (минимум 0.2)
  * 0.6-1.0 = высокая уверенность, информация найдена в документации
  * 0.2-0.59 = средняя уверенность, информация есть, можно ответить (даже при 20-40% релевантности)
  * 0.0-0.19 = низкая уверенность, информации действительно нет (релевантность < 20%)

- NEEDS_TICKET: нужен ли тикет (true/false), если:
  * ТОЛЬКО если релевантность всех фрагментов < 20% (реально нет информации в документации)
  * Требуется вмешательство сотрудника Казахтелеком (выезд, техническая проблема)
  * Проблема требует ручной обработки
  * НЕ создавай тикет, если есть фрагменты с релевантностью >= 20% - используй информацию для ответа!

СТРУКТУРА ОТВЕТА:

1. Если релевантность фрагментов >= 20% (даже 20-40%):
   - ОБЯЗАТЕЛЬНО используй информацию из этих фрагментов для ответа
   - Дай четкий и структурированный ответ на основе документации
   - Используй информацию из нескольких фрагментов, если это помогает дать полный ответ
   - CONFIDENCE должен быть >= 0.2, NEEDS_TICKET = false
   - НЕ говори "нет информации" или "информации недостаточно" если релевантность >= 20%

2. Если релевантность фрагментов < 20% ИЛИ требуется вмешательство:
{{escalation}}

3. Если информации в предоставленных фрагментах недостаточно, но вопрос простой:
   - Задай уточняющие вопросы
   - Используй информацию из истории разговора, чтобы не спрашивать то, что уже известно

ПРИМЕР ПРАВИЛЬНОГО ФОРМАТИРОВАНИЯ:

## Как подключить тариф

Для подключения тарифов мобильной связи вы можете воспользоваться следующими способами:

1. **Мобильное приложение** - подайте заявку на смену тарифного плана
2. **Личный кабинет** на сайте telecom.kz - здесь также можно изменить тариф
3. **Контактный центр** - позвоните по номеру **160**

---

ВАЖНО:
- Всегда используй Markdown для форматирования
- Разделяй информацию на логические блоки
- Выделяй важную информацию жирным текстом
- Всегда анализируй, можно ли ответить автоматически или требуется создание тикета.`

const markerEscalation = `   - В конце ответа добавь специальный блок в формате:
     [TICKET_REQUIRED]
     CONFIDENCE: <число от 0.0 до 1.0>
     NEEDS_TICKET: true
     REASON: <краткое объяснение, почему нужен тикет>`

const structuredEscalation = `   - Верни needs_ticket = true, confidence от 0.0 до 1.0 и краткую причину в поле reason
   - В поле answer оставь только текст для пользователя, без служебных блоков`

const questionFormatting = `ОТВЕТЬ на вопрос, используя ТОЛЬКО информацию из предоставленных выше фрагментов документации Казахтелеком.

ВАЖНО ПО ФОРМАТИРОВАНИЮ:
- НЕ пиши сплошным текстом - всегда используй структурированное форматирование
- Используй заголовки (##) для разделов
- Используй маркированные списки (-) для рекомендаций и вариантов
- Используй нумерованные списки (1., 2., 3.) для пошаговых инструкций
- Выделяй важную информацию жирным текстом (**текст**)
- Добавляй разделители (---) между разделами
- Всегда структурируй ответ для лучшей читаемости

`

const markerQuestionTail = "Если информации недостаточно или требуется вмешательство сотрудника - укажи [TICKET_REQUIRED] с CONFIDENCE и REASON. НЕ указывай источники в тексте ответа - они будут добавлены автоматически."

const structuredQuestionTail = "Если информации недостаточно или требуется вмешательство сотрудника - верни needs_ticket = true с confidence и reason. НЕ указывай источники в тексте ответа - они будут добавлены автоматически."

const contextHeader = "ИНФОРМАЦИЯ ИЗ ДОКУМЕНТА КАЗАХТЕЛЕКОМ:\n\n"

// systemPrompt builds the instructions for the completion model
func systemPrompt(clientType models.ClientType, structured bool) string {
	var b strings.Builder
	b.WriteString(systemPromptHeader)
	if clientType == models.ClientCorporate {
		b.WriteString(corporateLine)
	}
	escalation := markerEscalation
	if structured {
		escalation = structuredEscalation
	}
	b.WriteString(strings.Replace(systemPromptRules, escalationPlaceholder, escalation, 1))
	return b.String()
}

// buildContext renders retrieved chunks as numbered reference blocks
func buildContext(chunks []models.RetrievedChunk) string {
	var b strings.Builder
	b.WriteString(contextHeader)
	for i, chunk := range chunks {
		pageInfo := ""
		if chunk.Page != nil {
			pageInfo = fmt.Sprintf("(Страница %d)", *chunk.Page)
		}
		simInfo := ""
		if chunk.Similarity != 0 {
			simInfo = fmt.Sprintf("(релевантность: %.2f)", chunk.Similarity)
		}
		b.WriteString(fmt.Sprintf("[Информация %d] %s %s\n%s\n\n", i+1, pageInfo, simInfo, chunk.Content))
	}
	return b.String()
}

// buildMessages assembles the system prompt, the recent history and the question
func buildMessages(message string, history []models.ConversationTurn, clientType models.ClientType, chunks []models.RetrievedChunk, structured bool) []openai.ChatCompletionMessage {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(clientType, structured)},
	}

	recent := history
	if len(recent) > historyWindow {
		recent = recent[len(recent)-historyWindow:]
	}
	for _, turn := range recent {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    completionRole(turn.Role),
			Content: turn.Content,
		})
	}

	tail := markerQuestionTail
	if structured {
		tail = structuredQuestionTail
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: fmt.Sprintf("ВОПРОС: %s\n\n%s\n\n%s%s", message, buildContext(chunks), questionFormatting, tail),
	})

	return messages
}

// completionRole maps stored roles to the two roles sent upstream
func completionRole(role string) string {
	switch NormalizeRole(role) {
	case models.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

// NormalizeRole maps bot and ai roles to assistant; anything else is the user
func NormalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case models.RoleAssistant, "bot", "ai", "system":
		return models.RoleAssistant
	}
	return models.RoleUser
}

// Transcript renders the conversation stored as ticket content
func Transcript(message string, history []models.ConversationTurn) string {
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		speaker := "Пользователь"
		if NormalizeRole(turn.Role) == models.RoleAssistant {
			speaker = "Ассистент"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, turn.Content))
	}
	return fmt.Sprintf("%s\nПользователь: %s", strings.Join(lines, "\n"), message)
}
