package models

import (
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultSessionTitle is used when a session is created without a title
const DefaultSessionTitle = "New Conversation"

// ChatSession represents a conversation owned by a single user
type ChatSession struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage represents a single message within a session.
// Messages are immutable once written and strictly ordered by CreatedAt.
type ChatMessage struct {
	ID                  int        `json:"id"`
	SessionID           int        `json:"session_id"`
	Role                string     `json:"role"` // "user" or "assistant"
	Content             string     `json:"content"`
	Citations           []Citation `json:"citations,omitempty"`
	GeneratedDocumentID *int       `json:"generated_document_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Citation ties a piece of generated answer text back to its source chunk.
// Citations are never persisted independently; they are embedded as JSON
// inside the owning ChatMessage.
type Citation struct {
	DocumentID     int     `json:"document_id"`
	DocumentTitle  string  `json:"document_title"`
	ChunkReference int     `json:"chunk_reference"`
	PageNumber     *int    `json:"page_number,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Stream event types emitted over the SSE channel
const (
	EventCitation = "citation"
	EventContent  = "content"
	EventDone     = "done"
	EventError    = "error"
)

// StreamEvent is one event in the ordered response stream for a chat request.
// For a single request all citation events precede all content events, and
// exactly one terminal event (done or error) is emitted last.
type StreamEvent struct {
	Type     string    `json:"type"`
	Citation *Citation `json:"citation,omitempty"`
	Content  string    `json:"content,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// IsTerminal reports whether the event ends the stream
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// ChatResponse is the non-streaming reply shape
type ChatResponse struct {
	Message             string     `json:"message"`
	Citations           []Citation `json:"citations"`
	GeneratedDocumentID *int       `json:"generated_document_id,omitempty"`
}

// SessionListResponse is the paginated session listing shape
type SessionListResponse struct {
	Sessions []*ChatSession `json:"sessions"`
	Total    int            `json:"total"`
}
