package repositories

import (
	"context"

	"boardroom/internal/models"
)

// SessionRepository manages chat sessions and their ordered message history.
// Every lookup is scoped to the owning user; a session that exists but belongs
// to someone else behaves exactly like one that does not exist.
type SessionRepository interface {
	// CreateSession creates a session for a user. An empty title falls back
	// to the default.
	CreateSession(ctx context.Context, userID int, title string) (*models.ChatSession, error)

	// GetSession fetches a session owned by the user
	GetSession(ctx context.Context, sessionID, userID int) (*models.ChatSession, error)

	// ListSessions returns the user's sessions ordered by most recent
	// activity, with the total count for pagination
	ListSessions(ctx context.Context, userID, skip, limit int) ([]*models.ChatSession, int, error)

	// DeleteSession removes a session and all of its messages
	DeleteSession(ctx context.Context, sessionID, userID int) error

	// AppendMessage appends a message to a session's history and assigns its
	// id and timestamp. Assistant messages bump the session's updated_at;
	// user messages do not.
	AppendMessage(ctx context.Context, message *models.ChatMessage) (*models.ChatMessage, error)

	// GetMessages returns a session's messages in insertion order
	GetMessages(ctx context.Context, sessionID, userID int) ([]*models.ChatMessage, error)
}
