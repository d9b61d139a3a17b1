package classifier

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"helpdesk/internal/models"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ClientTypeQuestion is asked when the caller has not said whether they are corporate
const ClientTypeQuestion = "Вы корпоративный клиент?"

// Negative keywords are checked first so "нет, не корпоративный" never reads as corporate
var negativeKeywords = []string{
	"не являюсь корпоративным",
	"не корпоративный",
	"не корпоратив",
	"частное лицо",
	"физическое лицо",
	"физ. лицо",
	"нет",
}

var corporateKeywords = []string{
	"корпоративный клиент",
	"корпоративный",
	"корпоратив",
	"юридическое лицо",
	"юр. лицо",
	"бизнес",
	"компания",
	"организация",
	"да",
}

// Keywords this short must stand alone, otherwise "интернет" would read as "нет"
const shortKeywordRunes = 3

// ExtractClientType scans what the user wrote, history first then the current message.
// Assistant turns are skipped because the clarifying question itself mentions corporate clients.
func ExtractClientType(message string, history []models.ConversationTurn) models.ClientType {
	var parts []string
	for _, turn := range history {
		if NormalizeRole(turn.Role) == models.RoleUser {
			parts = append(parts, turn.Content)
		}
	}
	parts = append(parts, message)
	text := cases.Lower(language.Russian).String(strings.Join(parts, "\n"))

	for _, keyword := range negativeKeywords {
		if containsKeyword(text, keyword) {
			return models.ClientPrivate
		}
	}
	for _, keyword := range corporateKeywords {
		if containsKeyword(text, keyword) {
			return models.ClientCorporate
		}
	}
	return models.ClientUnknown
}

// containsKeyword matches keyword at the start of a word
func containsKeyword(text, keyword string) bool {
	short := utf8.RuneCountInString(keyword) <= shortKeywordRunes
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], keyword)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(keyword)
		if wordBoundaryBefore(text, start) && (!short || wordBoundaryAfter(text, end)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

func wordBoundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func wordBoundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
