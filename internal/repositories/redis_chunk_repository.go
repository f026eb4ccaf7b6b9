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
//	chunk:next_id        counter, bulk-reserved with INCRBY
//	chunk:{id}           chunk JSON
//	doc:{id}:chunks      LIST of chunk ids, chunk-index order
type RedisChunkRepository struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedisChunkRepository creates a chunk repository backed by Redis
func NewRedisChunkRepository(client *redis.Client, logger *log.Logger) *RedisChunkRepository {
	return &RedisChunkRepository{
		client: client,
		logger: logger,
	}
}

func chunkKey(id int) string            { return fmt.Sprintf("chunk:%d", id) }
func documentChunksKey(docID int) string { return fmt.Sprintf("doc:%d:chunks", docID) }

// ReplaceChunks atomically swaps a document's chunk rows for a new set.
// Ids for the whole batch are reserved up front with a single INCRBY so the
// assigned ids ascend with chunk index, then the old rows are dropped and the
// new ones written in one transaction.
func (r *RedisChunkRepository) ReplaceChunks(ctx context.Context, documentID int, chunks []*models.DocumentChunk) ([]*models.DocumentChunk, error) {
	oldIDs, err := r.client.LRange(ctx, documentChunksKey(documentID), 0, -1).Result()
	if err != nil {
		return nil, NewRepositoryError("replace_chunks", "failed to list existing chunks", err)
	}

	var firstID int
	if len(chunks) > 0 {
		last, err := r.client.IncrBy(ctx, "chunk:next_id", int64(len(chunks))).Result()
		if err != nil {
			return nil, NewRepositoryError("replace_chunks", "failed to reserve chunk ids", err)
		}
		firstID = int(last) - len(chunks) + 1
	}

	now := time.Now().UTC()
	pipe := r.client.TxPipeline()
	for _, idStr := range oldIDs {
		pipe.Del(ctx, "chunk:"+idStr)
	}
	pipe.Del(ctx, documentChunksKey(documentID))

	for i, chunk := range chunks {
		chunk.ID = firstID + i
		chunk.DocumentID = documentID
		chunk.CreatedAt = now

		data, err := json.Marshal(chunk)
		if err != nil {
			return nil, NewRepositoryError("replace_chunks", "failed to marshal chunk", err)
		}
		pipe.Set(ctx, chunkKey(chunk.ID), data, 0)
		pipe.RPush(ctx, documentChunksKey(documentID), chunk.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, NewRepositoryError("replace_chunks", "failed to replace chunks", err)
	}

	r.logger.Printf("replaced %d chunks with %d for document %d", len(oldIDs), len(chunks), documentID)
	return chunks, nil
}

// GetChunks returns a document's chunks in chunk-index order
func (r *RedisChunkRepository) GetChunks(ctx context.Context, documentID int) ([]*models.DocumentChunk, error) {
	ids, err := r.client.LRange(ctx, documentChunksKey(documentID), 0, -1).Result()
	if err != nil {
		return nil, NewRepositoryError("get_chunks", "failed to list chunks", err)
	}

	chunks := make([]*models.DocumentChunk, 0, len(ids))
	for _, idStr := range ids {
		data, err := r.client.Get(ctx, "chunk:"+idStr).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, NewRepositoryError("get_chunks", "failed to fetch chunk", err)
		}
		var chunk models.DocumentChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, NewRepositoryError("get_chunks", "failed to unmarshal chunk", err)
		}
		chunks = append(chunks, &chunk)
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
	return chunks, nil
}

// DeleteChunks removes all chunk rows of a document
func (r *RedisChunkRepository) DeleteChunks(ctx context.Context, documentID int) error {
	ids, err := r.client.LRange(ctx, documentChunksKey(documentID), 0, -1).Result()
	if err != nil {
		return NewRepositoryError("delete_chunks", "failed to list chunks", err)
	}

	pipe := r.client.TxPipeline()
	for _, idStr := range ids {
		pipe.Del(ctx, "chunk:"+idStr)
	}
	pipe.Del(ctx, documentChunksKey(documentID))
	if _, err := pipe.Exec(ctx); err != nil {
		return NewRepositoryError("delete_chunks", "failed to delete chunks", err)
	}
	return nil
}
