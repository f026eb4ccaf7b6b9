package models

import (
	"time"
)

// DocumentStatus tracks a document through the processing pipeline
type DocumentStatus string

const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusProcessed  DocumentStatus = "processed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document represents an uploaded (or generated) file owned by a user
type Document struct {
	ID               int            `json:"id"`
	Filename         string         `json:"filename"`          // stored filename on disk
	OriginalFilename string         `json:"original_filename"` // display title
	FilePath         string         `json:"file_path"`
	FileType         string         `json:"file_type"`
	FileSize         int64          `json:"file_size"`
	MimeType         string         `json:"mime_type"`
	OwnerID          int            `json:"owner_id"`
	Status           DocumentStatus `json:"status"`
	ChunkCount       int            `json:"chunk_count"`
	ProcessingError  string         `json:"processing_error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Title returns the user-facing document title
func (d *Document) Title() string {
	if d.OriginalFilename != "" {
		return d.OriginalFilename
	}
	return d.Filename
}

// DocumentChunk is one bounded span of a document's extracted text, the unit
// of retrieval. ChunkIndex is unique per document. Embedding is nil until the
// chunk has been embedded; chunks without an embedding are excluded from
// search. Chunks are replaced wholesale when a document is reprocessed.
type DocumentChunk struct {
	ID         int       `json:"id"`
	DocumentID int       `json:"document_id"`
	Content    string    `json:"content"`
	ChunkIndex int       `json:"chunk_index"`
	PageNumber *int      `json:"page_number,omitempty"`
	Embedding  []float32 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasEmbedding reports whether the chunk is searchable
func (c *DocumentChunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// RetrievedChunk is the transient unit passed from the vector index to the
// prompt builder. It is never persisted.
type RetrievedChunk struct {
	ChunkID        int     `json:"chunk_id"`
	DocumentID     int     `json:"document_id"`
	DocumentTitle  string  `json:"document_title"`
	Content        string  `json:"content"`
	PageNumber     *int    `json:"page_number,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// ToCitation derives the citation embedded in an assistant message
func (r *RetrievedChunk) ToCitation() Citation {
	return Citation{
		DocumentID:     r.DocumentID,
		DocumentTitle:  r.DocumentTitle,
		ChunkReference: r.ChunkID,
		PageNumber:     r.PageNumber,
		RelevanceScore: r.RelevanceScore,
	}
}

// WebSearchResult is one external statute search hit
type WebSearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// BasicResponse is the generic status reply shape
type BasicResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}
