package classifier

import (
	"regexp"
	"strings"
)

// Fixed replies
const (
	NoInformationAnswer = "К сожалению, я не нашел информацию по вашему запросу. Попробуйте переформулировать вопрос."
	TicketConfirmation  = "Хорошо, ваш запрос зарегистрирован. Наши специалисты свяжутся с вами."
	TicketFailureNotice = "К сожалению, нам не удалось зарегистрировать ваш запрос. Пожалуйста, повторите попытку позже."
	confirmationMarker  = "зарегистрирован"
)

// Wording that only makes sense for corporate callers, longest phrases first
var clientTypePhrases = []string{
	"для частных лиц",
	"для частных клиентов",
	"частным лицам",
	"частных лиц",
	"частных клиентов",
	"для физических лиц",
	"для физических клиентов",
	"физическим лицам",
	"физических лиц",
	"частное лицо",
	"физическое лицо",
	"физ. лицо",
	"для корпоративных",
	"корпоративным",
	"корпоративных клиентов",
	"корпоративный клиент",
}

var clientTypePatterns = compilePhrases(clientTypePhrases)

var (
	horizontalSpace = regexp.MustCompile(`[ \t]+`)
	extraNewlines   = regexp.MustCompile(`\n{3,}`)
)

// Applied in order; each one is followed by a trim
var sourcePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\n\n---\s*\n\nИсточники:[\s\S]*$`),
	regexp.MustCompile(`(?i)\n\nИсточники:[\s\S]*$`),
	regexp.MustCompile(`(?i)---\s*\n\nИсточники:[\s\S]*$`),
	regexp.MustCompile(`(?i)Источники:[\s\S]*$`),
	regexp.MustCompile(`(?i)\s*\[Информация\s+\d+\]\s*\(Страница\s+\d+\)`),
	regexp.MustCompile(`(?i)\s*\[Информация\s+\d+\]`),
}

var confirmationPattern = regexp.MustCompile(`(?i)(\n\n)?` + regexp.QuoteMeta(TicketConfirmation))

// Phrases removed when a ticket request is overridden
var noInfoPatterns = []*regexp.Regexp{
	confirmationPattern,
	regexp.MustCompile(`(?i)К сожалению, в предоставленных фрагментах документации нет информации`),
	regexp.MustCompile(`(?i)К сожалению, в предоставленных фрагментах документации не содержится информации`),
	regexp.MustCompile(`(?i)Я не могу предоставить вам точный ответ`),
	regexp.MustCompile(`(?i)Я не могу предоставить вам точные шаги`),
}

func compilePhrases(phrases []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(phrases))
	for _, phrase := range phrases {
		patterns = append(patterns, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(phrase)))
	}
	return patterns
}

// StripClientTypeWording removes client type phrases from answers to non-corporate callers
func StripClientTypeWording(answer string) string {
	for _, pattern := range clientTypePatterns {
		answer = pattern.ReplaceAllString(answer, "")
	}
	answer = horizontalSpace.ReplaceAllString(answer, " ")
	answer = extraNewlines.ReplaceAllString(answer, "\n\n")
	return strings.TrimSpace(answer)
}

// StripSources removes trailing source lists and inline citation markers
func StripSources(answer string) string {
	for _, pattern := range sourcePatterns {
		answer = strings.TrimSpace(pattern.ReplaceAllString(answer, ""))
	}
	return answer
}

// stripNoInfo drops the ticket confirmation and "no information" phrases
func stripNoInfo(answer string) string {
	for _, pattern := range noInfoPatterns {
		answer = pattern.ReplaceAllString(answer, "")
	}
	return strings.TrimSpace(answer)
}

// stripConfirmation drops a confirmation the model wrote on its own
func stripConfirmation(answer string) string {
	return strings.TrimSpace(confirmationPattern.ReplaceAllString(answer, ""))
}

// appendNotice adds a sentence on its own paragraph
func appendNotice(answer, notice string) string {
	if answer == "" {
		return notice
	}
	return answer + "\n\n" + notice
}
