package repositories

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	jobQueueKey  = "jobs:pending"
	jobKeyPrefix = "job:"

	// jobTTL keeps finished job rows around long enough to inspect
	jobTTL = 24 * time.Hour
)

// RedisJobRepository is a Redis-backed FIFO job queue. Jobs are pushed on a
// list and popped with a blocking BRPOP; the status row lives alongside under
// its own key.
type RedisJobRepository struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedisJobRepository creates a job repository backed by Redis
func NewRedisJobRepository(client *redis.Client, logger *log.Logger) *RedisJobRepository {
	return &RedisJobRepository{
		client: client,
		logger: logger,
	}
}

// Enqueue stores a pending job and pushes it on the queue
func (r *RedisJobRepository) Enqueue(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.Status = JobStatusPending
	job.CreatedAt = now
	job.UpdatedAt = now

	data, err := json.Marshal(job)
	if err != nil {
		return NewRepositoryError("enqueue", "failed to marshal job", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, jobKeyPrefix+job.ID, data, jobTTL)
	pipe.LPush(ctx, jobQueueKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return NewRepositoryError("enqueue", "failed to enqueue job", err)
	}

	r.logger.Printf("enqueued job %s (%s, document %d)", job.ID, job.Type, job.DocumentID)
	return nil
}

// Dequeue pops the oldest pending job, blocking up to timeout
func (r *RedisJobRepository) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := r.client.BRPop(ctx, timeout, jobQueueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, NewRepositoryError("dequeue", "failed to pop job", err)
	}
	if len(result) < 2 {
		return nil, nil
	}

	job, err := r.GetJob(ctx, result[1])
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob fetches a job by id
func (r *RedisJobRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	data, err := r.client.Get(ctx, jobKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, NewRepositoryError("get_job", "job "+id+" not found", nil)
	}
	if err != nil {
		return nil, NewRepositoryError("get_job", "failed to fetch job", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, NewRepositoryError("get_job", "failed to unmarshal job", err)
	}
	return &job, nil
}

// UpdateJob rewrites a job's status row
func (r *RedisJobRepository) UpdateJob(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(job)
	if err != nil {
		return NewRepositoryError("update_job", "failed to marshal job", err)
	}

	if err := r.client.Set(ctx, jobKeyPrefix+job.ID, data, jobTTL).Err(); err != nil {
		return NewRepositoryError("update_job", "failed to store job", err)
	}
	return nil
}
