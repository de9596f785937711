package queue

import (
	"encoding/json"
	"time"
)

const (
	// Queue names
	QueueFraudEvaluation = "fraud_evaluation"

	// Default values
	DefaultRetryCount = 3
	DefaultTTL        = 24 * time.Hour
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job represents a background job
type Job struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	RunAt      time.Time       `json:"run_at"`
	Error      string          `json:"error,omitempty"`
}

// EnqueueOption defines options for enqueueing jobs
type EnqueueOption func(*Job)

// WithMaxRetries sets the maximum number of retries for a job
func WithMaxRetries(maxRetries int) EnqueueOption {
	return func(j *Job) {
		j.MaxRetries = maxRetries
	}
}

// WithJobID sets a specific job ID
func WithJobID(id string) EnqueueOption {
	return func(j *Job) {
		j.ID = id
	}
}

// Enqueuer is the producer side of the queue
type Enqueuer interface {
	Enqueue(queueName string, payload interface{}, opts ...EnqueueOption) (string, error)
}
