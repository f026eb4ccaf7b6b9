package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"boardroom/internal/models"
)

// Redis key layout:
//
//	doc:next_id          counter
//	doc:{id}             document JSON
//	docs:owner:{uid}     SET of document ids
type RedisDocumentRepository struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedisDocumentRepository creates a document repository backed by Redis
func NewRedisDocumentRepository(client *redis.Client, logger *log.Logger) *RedisDocumentRepository {
	return &RedisDocumentRepository{
		client: client,
		logger: logger,
	}
}

func documentKey(id int) string         { return fmt.Sprintf("doc:%d", id) }
func ownerDocumentsKey(uid int) string  { return fmt.Sprintf("docs:owner:%d", uid) }

// CreateDocument stores a new document and assigns its id
func (r *RedisDocumentRepository) CreateDocument(ctx context.Context, doc *models.Document) (*models.Document, error) {
	id, err := r.client.Incr(ctx, "doc:next_id").Result()
	if err != nil {
		return nil, NewRepositoryError("create_document", "failed to allocate document id", err)
	}

	now := time.Now().UTC()
	doc.ID = int(id)
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = models.DocumentStatusUploaded
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, NewRepositoryError("create_document", "failed to marshal document", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, documentKey(doc.ID), data, 0)
	pipe.SAdd(ctx, ownerDocumentsKey(doc.OwnerID), doc.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, NewRepositoryError("create_document", "failed to store document", err)
	}

	r.logger.Printf("created document %d (%s) for user %d", doc.ID, doc.OriginalFilename, doc.OwnerID)
	return doc, nil
}

// GetDocument fetches a document owned by the user
func (r *RedisDocumentRepository) GetDocument(ctx context.Context, docID, ownerID int) (*models.Document, error) {
	doc, err := r.GetDocumentAny(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, NewNotFoundError("document", docID)
	}
	return doc, nil
}

// GetDocumentAny fetches a document regardless of owner
func (r *RedisDocumentRepository) GetDocumentAny(ctx context.Context, docID int) (*models.Document, error) {
	data, err := r.client.Get(ctx, documentKey(docID)).Result()
	if err == redis.Nil {
		return nil, NewNotFoundError("document", docID)
	}
	if err != nil {
		return nil, NewRepositoryError("get_document", "failed to fetch document", err)
	}

	var doc models.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, NewRepositoryError("get_document", "failed to unmarshal document", err)
	}
	return &doc, nil
}

// ListDocuments returns the user's documents, newest first
func (r *RedisDocumentRepository) ListDocuments(ctx context.Context, ownerID int) ([]*models.Document, error) {
	ids, err := r.client.SMembers(ctx, ownerDocumentsKey(ownerID)).Result()
	if err != nil {
		return nil, NewRepositoryError("list_documents", "failed to list document ids", err)
	}

	docs := make([]*models.Document, 0, len(ids))
	for _, idStr := range ids {
		data, err := r.client.Get(ctx, "doc:"+idStr).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, NewRepositoryError("list_documents", "failed to fetch document", err)
		}
		var doc models.Document
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			return nil, NewRepositoryError("list_documents", "failed to unmarshal document", err)
		}
		docs = append(docs, &doc)
	}

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

// UpdateDocument rewrites a document row
func (r *RedisDocumentRepository) UpdateDocument(ctx context.Context, doc *models.Document) error {
	exists, err := r.client.Exists(ctx, documentKey(doc.ID)).Result()
	if err != nil {
		return NewRepositoryError("update_document", "failed to check document", err)
	}
	if exists == 0 {
		return NewNotFoundError("document", doc.ID)
	}

	doc.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(doc)
	if err != nil {
		return NewRepositoryError("update_document", "failed to marshal document", err)
	}

	if err := r.client.Set(ctx, documentKey(doc.ID), data, 0).Err(); err != nil {
		return NewRepositoryError("update_document", "failed to store document", err)
	}
	return nil
}

// DeleteDocument removes a document row
func (r *RedisDocumentRepository) DeleteDocument(ctx context.Context, docID, ownerID int) error {
	doc, err := r.GetDocument(ctx, docID, ownerID)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, documentKey(docID))
	pipe.SRem(ctx, ownerDocumentsKey(doc.OwnerID), docID)
	if _, err := pipe.Exec(ctx); err != nil {
		return NewRepositoryError("delete_document", "failed to delete document", err)
	}

	r.logger.Printf("deleted document %d", docID)
	return nil
}
