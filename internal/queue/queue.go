// Package queue provides the job queue and the keyed job-result store.
package queue

import (
	"context"
	"time"
)

// Turn is one exchange in the conversation history a client sends along
// with its question.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Job is one queued unit of retrieval work for a single question. It is
// created by the request layer, consumed exactly once by a worker, and
// immutable after creation.
type Job struct {
	ID         string    `json:"job_id"`
	Question   string    `json:"question"`
	History    []Turn    `json:"chat_history,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Status is the lifecycle state of a job result.
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Result is the write-once outcome of a job. OrderedIDs is the full
// candidate order, a superset of what is displayed; later show-more calls
// read from it without mutating it.
type Result struct {
	Status     Status   `json:"status"`
	Answer     string   `json:"answer"`
	OrderedIDs []string `json:"last_result_ids"`
	TotalFound int      `json:"total_found"`
	ShownCount int      `json:"shown_count"`
	Options    []string `json:"options,omitempty"`
}

// Queue defines the job queue operations. Pop must be atomic across
// consumers: no two workers may dequeue the same job.
type Queue interface {
	// Enqueue appends a job to the queue.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue blocks until a job is available or the context is done.
	Dequeue(ctx context.Context) (*Job, error)
}

// ResultStore defines the keyed job-result store.
type ResultStore interface {
	// SetResult stores the outcome for a job id.
	SetResult(ctx context.Context, jobID string, result Result) error

	// GetResult returns the stored outcome, or ok=false while the job is
	// still pending.
	GetResult(ctx context.Context, jobID string) (*Result, bool, error)
}
