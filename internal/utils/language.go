package utils

import (
	"regexp"
	"strings"
)

// Language codes accepted by the help desk
const (
	LangRussian = "ru"
	LangKazakh  = "kk"
	LangEnglish = "en"
)

// Language represents a detected language
type Language struct {
	Code       string
	Name       string
	Confidence float64
}

var (
	cyrillicPattern = regexp.MustCompile(`[\x{0400}-\x{04FF}]`)
	latinPattern    = regexp.MustCompile(`[a-zA-Z]`)
	// Letters of the Kazakh alphabet that Russian does not use
	kazakhPattern = regexp.MustCompile(`[әғқңөұүһіӘҒҚҢӨҰҮҺІ]`)
)

// DetectLanguage detects the language of the input text.
// Cyrillic text is Kazakh when it carries Kazakh-only letters, Russian otherwise.
func DetectLanguage(text string) Language {
	text = strings.TrimSpace(text)
	if text == "" {
		return Language{Code: LangRussian, Name: "Russian", Confidence: 0.0}
	}

	textRunes := float64(len([]rune(text)))
	cyrillicRatio := float64(len(cyrillicPattern.FindAllString(text, -1))) / textRunes
	latinRatio := float64(len(latinPattern.FindAllString(text, -1))) / textRunes

	if cyrillicRatio == 0 && latinRatio == 0 {
		return Language{Code: LangRussian, Name: "Russian", Confidence: 0.0}
	}

	if cyrillicRatio >= latinRatio {
		if kazakhPattern.MatchString(text) {
			return Language{Code: LangKazakh, Name: "Kazakh", Confidence: cyrillicRatio}
		}
		return Language{Code: LangRussian, Name: "Russian", Confidence: cyrillicRatio}
	}

	return Language{Code: LangEnglish, Name: "English", Confidence: latinRatio}
}

// ResolveLanguage returns the normalized requested language, or the detected
// language of text when the request does not name a supported one
func ResolveLanguage(requested, text string) string {
	switch strings.ToLower(strings.TrimSpace(requested)) {
	case LangRussian:
		return LangRussian
	case LangKazakh, "kz":
		return LangKazakh
	case LangEnglish:
		return LangEnglish
	}
	return DetectLanguage(text).Code
}
