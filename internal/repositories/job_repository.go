package repositories

import (
	"context"
	"time"
)

// JobType identifies what a background job does
type JobType string

const (
	JobTypeDocumentProcessing JobType = "document_processing"
)

// JobStatus tracks a job through its lifecycle
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is one unit of background work
type Job struct {
	ID         string    `json:"id"`
	Type       JobType   `json:"type"`
	DocumentID int       `json:"document_id"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// JobRepository is a persistent FIFO work queue with per-job status rows
type JobRepository interface {
	// Enqueue stores a pending job and pushes it on the queue, assigning its
	// id when empty
	Enqueue(ctx context.Context, job *Job) error

	// Dequeue pops the oldest pending job, blocking up to timeout.
	// Returns (nil, nil) when the queue stays empty.
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)

	// GetJob fetches a job by id
	GetJob(ctx context.Context, id string) (*Job, error)

	// UpdateJob rewrites a job's status row
	UpdateJob(ctx context.Context, job *Job) error
}
