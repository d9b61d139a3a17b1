package knowledge

import (
	"regexp"
	"strings"

	"helpdesk/internal/utils"
)

// Page chunking limits, in estimated model tokens
const (
	MaxChunkTokens = 8000
	MinChunkTokens = 50
)

var (
	hyphenBreak     = regexp.MustCompile(`-\s*\n\s*`)
	leadingPageNums = regexp.MustCompile(`^\s*\d+\s+\d+\s+`)
	leadingPageNum  = regexp.MustCompile(`^\s*\d+\s+`)
	paragraphBreak  = regexp.MustCompile(`\n\s*\n+`)
	horizontalSpace = regexp.MustCompile(`[ \t]+`)
)

const paragraphMark = "\x00"

// CleanText normalizes text extracted from a document page.
// Hyphenated line breaks are joined, leading page numbers dropped and
// single line breaks folded into spaces while paragraph breaks are kept.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r", " ")
	text = hyphenBreak.ReplaceAllString(text, "")
	text = leadingPageNums.ReplaceAllString(text, "")
	text = leadingPageNum.ReplaceAllString(text, "")

	text = paragraphBreak.ReplaceAllString(text, paragraphMark)
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, paragraphMark, "\n\n")
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, " \n\n ", "\n\n")

	return strings.TrimSpace(text)
}

// ChunkPage turns one page into at most one chunk.
// Pages over MaxChunkTokens are trimmed, pages under MinChunkTokens are skipped.
func ChunkPage(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if utils.EstimateTokens(text) <= MaxChunkTokens {
		if utils.EstimateTokens(text) >= MinChunkTokens {
			return []string{text}
		}
		return nil
	}

	trimmed := utils.TruncateToTokens(text, MaxChunkTokens)
	if utils.EstimateTokens(trimmed) >= MinChunkTokens {
		return []string{trimmed}
	}
	return nil
}
