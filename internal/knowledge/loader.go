package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"helpdesk/internal/models"
)

// LoadDocument reads pages from a JSON page list ([{"page":1,"text":"..."}])
// or from plain text where pages are separated by form feeds
func LoadDocument(path, docID, sourceType string) (models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc := models.Document{
		ID:         docID,
		Source:     filepath.Base(path),
		SourceType: sourceType,
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &doc.Pages); err != nil {
			return models.Document{}, fmt.Errorf("failed to parse pages in %s: %w", path, err)
		}
		return doc, nil
	}

	doc.Pages = SplitPages(string(data))
	return doc, nil
}

// SplitPages splits form-feed separated text into numbered pages
func SplitPages(text string) []models.DocumentPage {
	var pages []models.DocumentPage
	for i, part := range strings.Split(text, "\f") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		pages = append(pages, models.DocumentPage{Number: i + 1, Text: part})
	}
	return pages
}
