package models

// RetrievedChunk is a knowledge base snippet matched against a query
type RetrievedChunk struct {
	Content    string  `db:"content"`
	Page       *int    `db:"page"`
	Similarity float64 `db:"similarity"`
	SourceType string  `db:"source_type"`
}

// ToSource converts the chunk to its API representation
func (c RetrievedChunk) ToSource() Source {
	return Source{
		Content:    c.Content,
		Page:       c.Page,
		SourceType: c.SourceType,
		Similarity: c.Similarity,
	}
}

// DocumentChunk is a knowledge base snippet ready to be stored
type DocumentChunk struct {
	ID          string
	DocID       string
	ChunkIndex  int
	ChunkInPage int
	Content     string
	Page        *int
	Source      string
	SourceType  string
	Embedding   []float32
}

// DocumentPage is one page of extracted source text
type DocumentPage struct {
	Number int    `json:"page"`
	Text   string `json:"text"`
}

// Document is a source file split into pages for ingestion
type Document struct {
	ID         string
	Source     string
	SourceType string
	Pages      []DocumentPage
}
