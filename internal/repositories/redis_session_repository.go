package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"boardroom/internal/models"
)

// Redis key layout:
//
//	chat:session:next_id           counter
//	chat:message:next_id           counter
//	chat:session:{id}              session JSON
//	chat:session:{id}:messages     LIST of message ids, insertion order
//	chat:message:{id}              message JSON
//	chat:user:{uid}:sessions       ZSET of session ids scored by updated_at
type RedisSessionRepository struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedisSessionRepository creates a session repository backed by Redis
func NewRedisSessionRepository(client *redis.Client, logger *log.Logger) *RedisSessionRepository {
	return &RedisSessionRepository{
		client: client,
		logger: logger,
	}
}

func sessionKey(id int) string          { return fmt.Sprintf("chat:session:%d", id) }
func sessionMessagesKey(id int) string  { return fmt.Sprintf("chat:session:%d:messages", id) }
func messageKey(id int) string          { return fmt.Sprintf("chat:message:%d", id) }
func userSessionsKey(userID int) string { return fmt.Sprintf("chat:user:%d:sessions", userID) }

// CreateSession creates a session for a user
func (r *RedisSessionRepository) CreateSession(ctx context.Context, userID int, title string) (*models.ChatSession, error) {
	if title == "" {
		title = models.DefaultSessionTitle
	}

	id, err := r.client.Incr(ctx, "chat:session:next_id").Result()
	if err != nil {
		return nil, NewRepositoryError("create_session", "failed to allocate session id", err)
	}

	now := time.Now().UTC()
	session := &models.ChatSession{
		ID:        int(id),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, NewRepositoryError("create_session", "failed to marshal session", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), data, 0)
	pipe.ZAdd(ctx, userSessionsKey(userID), redis.Z{
		Score:  float64(now.Unix()),
		Member: session.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, NewRepositoryError("create_session", "failed to store session", err)
	}

	r.logger.Printf("created session %d for user %d", session.ID, userID)
	return session, nil
}

// GetSession fetches a session owned by the user
func (r *RedisSessionRepository) GetSession(ctx context.Context, sessionID, userID int) (*models.ChatSession, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, NewNotFoundError("session", sessionID)
	}
	if err != nil {
		return nil, NewRepositoryError("get_session", "failed to fetch session", err)
	}

	var session models.ChatSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, NewRepositoryError("get_session", "failed to unmarshal session", err)
	}

	// ownership failures are indistinguishable from missing sessions
	if session.UserID != userID {
		return nil, NewNotFoundError("session", sessionID)
	}
	return &session, nil
}

// ListSessions returns the user's sessions ordered by most recent activity
func (r *RedisSessionRepository) ListSessions(ctx context.Context, userID, skip, limit int) ([]*models.ChatSession, int, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 20
	}

	key := userSessionsKey(userID)
	total, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		return nil, 0, NewRepositoryError("list_sessions", "failed to count sessions", err)
	}

	ids, err := r.client.ZRevRange(ctx, key, int64(skip), int64(skip+limit-1)).Result()
	if err != nil {
		return nil, 0, NewRepositoryError("list_sessions", "failed to range sessions", err)
	}

	sessions := make([]*models.ChatSession, 0, len(ids))
	for _, idStr := range ids {
		data, err := r.client.Get(ctx, "chat:session:"+idStr).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, 0, NewRepositoryError("list_sessions", "failed to fetch session", err)
		}
		var session models.ChatSession
		if err := json.Unmarshal([]byte(data), &session); err != nil {
			return nil, 0, NewRepositoryError("list_sessions", "failed to unmarshal session", err)
		}
		sessions = append(sessions, &session)
	}

	return sessions, int(total), nil
}

// DeleteSession removes a session and all of its messages atomically
func (r *RedisSessionRepository) DeleteSession(ctx context.Context, sessionID, userID int) error {
	session, err := r.GetSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}

	messageIDs, err := r.client.LRange(ctx, sessionMessagesKey(sessionID), 0, -1).Result()
	if err != nil {
		return NewRepositoryError("delete_session", "failed to list messages", err)
	}

	pipe := r.client.TxPipeline()
	for _, idStr := range messageIDs {
		pipe.Del(ctx, "chat:message:"+idStr)
	}
	pipe.Del(ctx, sessionMessagesKey(sessionID))
	pipe.Del(ctx, sessionKey(sessionID))
	pipe.ZRem(ctx, userSessionsKey(session.UserID), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return NewRepositoryError("delete_session", "failed to delete session", err)
	}

	r.logger.Printf("deleted session %d (%d messages)", sessionID, len(messageIDs))
	return nil
}

// AppendMessage appends a message to a session's history
func (r *RedisSessionRepository) AppendMessage(ctx context.Context, message *models.ChatMessage) (*models.ChatMessage, error) {
	sessionData, err := r.client.Get(ctx, sessionKey(message.SessionID)).Result()
	if err == redis.Nil {
		return nil, NewNotFoundError("session", message.SessionID)
	}
	if err != nil {
		return nil, NewRepositoryError("append_message", "failed to fetch session", err)
	}

	var session models.ChatSession
	if err := json.Unmarshal([]byte(sessionData), &session); err != nil {
		return nil, NewRepositoryError("append_message", "failed to unmarshal session", err)
	}

	id, err := r.client.Incr(ctx, "chat:message:next_id").Result()
	if err != nil {
		return nil, NewRepositoryError("append_message", "failed to allocate message id", err)
	}

	message.ID = int(id)
	message.CreatedAt = time.Now().UTC()

	data, err := json.Marshal(message)
	if err != nil {
		return nil, NewRepositoryError("append_message", "failed to marshal message", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, messageKey(message.ID), data, 0)
	pipe.RPush(ctx, sessionMessagesKey(message.SessionID), message.ID)

	// only assistant replies count as session activity
	if message.Role == models.RoleAssistant {
		session.UpdatedAt = message.CreatedAt
		sessionJSON, err := json.Marshal(&session)
		if err != nil {
			return nil, NewRepositoryError("append_message", "failed to marshal session", err)
		}
		pipe.Set(ctx, sessionKey(session.ID), sessionJSON, 0)
		pipe.ZAdd(ctx, userSessionsKey(session.UserID), redis.Z{
			Score:  float64(message.CreatedAt.Unix()),
			Member: session.ID,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, NewRepositoryError("append_message", "failed to store message", err)
	}
	return message, nil
}

// GetMessages returns a session's messages in insertion order
func (r *RedisSessionRepository) GetMessages(ctx context.Context, sessionID, userID int) ([]*models.ChatMessage, error) {
	if _, err := r.GetSession(ctx, sessionID, userID); err != nil {
		return nil, err
	}

	messageIDs, err := r.client.LRange(ctx, sessionMessagesKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, NewRepositoryError("get_messages", "failed to list messages", err)
	}

	messages := make([]*models.ChatMessage, 0, len(messageIDs))
	for _, idStr := range messageIDs {
		data, err := r.client.Get(ctx, "chat:message:"+idStr).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, NewRepositoryError("get_messages", "failed to fetch message", err)
		}
		var message models.ChatMessage
		if err := json.Unmarshal([]byte(data), &message); err != nil {
			return nil, NewRepositoryError("get_messages", "failed to unmarshal message", err)
		}
		messages = append(messages, &message)
	}
	return messages, nil
}
