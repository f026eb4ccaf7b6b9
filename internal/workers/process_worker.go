// Package workers runs background jobs pulled from the persistent queue.
package workers

import (
	"context"
	"log"
	"sync"
	"time"

	"boardroom/internal/repositories"
)

// DefaultPollInterval is how long a dequeue blocks before checking for
// shutdown
const DefaultPollInterval = 5 * time.Second

// DocumentProcessor runs the processing pipeline for one document
type DocumentProcessor interface {
	Process(ctx context.Context, docID int) error
}

// WorkerStats tracks what a worker has done
type WorkerStats struct {
	JobsProcessed int64
	JobsFailed    int64
	LastJobAt     time.Time
}

// ProcessWorker consumes document-processing jobs from the queue and drives
// them through the processor, recording the outcome on the job row
type ProcessWorker struct {
	jobs         repositories.JobRepository
	processor    DocumentProcessor
	pollInterval time.Duration
	logger       *log.Logger

	mu     sync.Mutex
	stats  WorkerStats
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProcessWorker creates a document-processing worker
func NewProcessWorker(jobs repositories.JobRepository, processor DocumentProcessor, pollInterval time.Duration, logger *log.Logger) *ProcessWorker {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &ProcessWorker{
		jobs:         jobs,
		processor:    processor,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Name identifies the worker in logs
func (w *ProcessWorker) Name() string {
	return "document-processor"
}

// Start launches the consume loop in its own goroutine
func (w *ProcessWorker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	w.logger.Printf("%s worker started", w.Name())
	go w.run(ctx)
}

// Stop shuts the loop down and waits for the in-flight job to finish
func (w *ProcessWorker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.logger.Printf("%s worker stopped", w.Name())
}

// Stats returns a snapshot of the worker's counters
func (w *ProcessWorker) Stats() WorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *ProcessWorker) run(ctx context.Context) {
	defer close(w.done)

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.jobs.Dequeue(ctx, w.pollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Printf("dequeue failed: %v", err)
			select {
			case <-time.After(w.pollInterval):
			case <-ctx.Done():
				return
			}
			continue
		}
		if job == nil {
			continue
		}

		w.handle(ctx, job)
	}
}

func (w *ProcessWorker) handle(ctx context.Context, job *repositories.Job) {
	w.logger.Printf("processing job %s (document %d)", job.ID, job.DocumentID)

	job.Status = repositories.JobStatusRunning
	if err := w.jobs.UpdateJob(ctx, job); err != nil {
		w.logger.Printf("failed to mark job %s running: %v", job.ID, err)
	}

	err := w.processor.Process(ctx, job.DocumentID)

	w.mu.Lock()
	w.stats.LastJobAt = time.Now().UTC()
	if err != nil {
		w.stats.JobsFailed++
	} else {
		w.stats.JobsProcessed++
	}
	w.mu.Unlock()

	if err != nil {
		job.Status = repositories.JobStatusFailed
		job.Error = err.Error()
		w.logger.Printf("job %s failed: %v", job.ID, err)
	} else {
		job.Status = repositories.JobStatusCompleted
		job.Error = ""
	}
	if updateErr := w.jobs.UpdateJob(ctx, job); updateErr != nil {
		w.logger.Printf("failed to record job %s outcome: %v", job.ID, updateErr)
	}
}
