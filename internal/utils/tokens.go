package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// tokenPattern splits text into word runs and single punctuation marks
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+|[^\s\p{L}\p{N}]`)

// EstimateTokens approximates the number of model tokens in text.
// Latin words average four characters per token, Cyrillic and other scripts two.
func EstimateTokens(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	total := 0
	for _, word := range tokenPattern.FindAllString(text, -1) {
		total += wordTokens(word)
	}
	return total
}

// TruncateToTokens cuts text after the last word that fits within maxTokens.
// Text that already fits is returned unchanged.
func TruncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}

	total := 0
	for _, loc := range tokenPattern.FindAllStringIndex(text, -1) {
		total += wordTokens(text[loc[0]:loc[1]])
		if total > maxTokens {
			return strings.TrimSpace(text[:loc[0]])
		}
	}
	return text
}

func wordTokens(word string) int {
	n := utf8.RuneCountInString(word)
	if n == 0 {
		return 0
	}
	if isASCII(word) {
		return (n + 3) / 4
	}
	return (n + 1) / 2
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
