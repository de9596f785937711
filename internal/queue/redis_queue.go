package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RedisQueue implements a redis-backed job queue. Jobs live in a list per
// queue name; delayed jobs wait in a sorted set scored by their run time.
type RedisQueue struct {
	client *redis.Client
	ctx    context.Context
	log    *logrus.Entry
}

// NewRedisQueue creates a new Redis queue
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{
		client: client,
		ctx:    context.Background(),
		log:    logrus.WithField("component", "queue"),
	}
}

// Enqueue adds a job to the queue
func (q *RedisQueue) Enqueue(queueName string, payload interface{}, opts ...EnqueueOption) (string, error) {
	return q.enqueue(queueName, payload, time.Now(), opts...)
}

// EnqueueIn adds a job to the queue with a delay
func (q *RedisQueue) EnqueueIn(queueName string, payload interface{}, delay time.Duration, opts ...EnqueueOption) (string, error) {
	return q.enqueue(queueName, payload, time.Now().Add(delay), opts...)
}

func (q *RedisQueue) enqueue(queueName string, payload interface{}, runAt time.Time, opts ...EnqueueOption) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	job := &Job{
		ID:         uuid.New().String(),
		Queue:      queueName,
		Payload:    payloadBytes,
		Status:     JobStatusPending,
		MaxRetries: DefaultRetryCount,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		RunAt:      runAt,
	}

	for _, opt := range opts {
		opt(job)
	}

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	if job.RunAt.After(time.Now()) {
		err = q.client.ZAdd(q.ctx, "delayed:"+queueName, &redis.Z{
			Score:  float64(job.RunAt.Unix()),
			Member: jobBytes,
		}).Err()
	} else {
		err = q.client.LPush(q.ctx, queueName, jobBytes).Err()
	}
	if err != nil {
		return "", fmt.Errorf("failed to push job to queue: %w", err)
	}

	if err := q.storeJob(job, jobBytes); err != nil {
		q.log.WithError(err).WithField("job_id", job.ID).Warn("failed to store job details")
	}

	return job.ID, nil
}

// Dequeue gets a job from the queue, blocking for up to a second
func (q *RedisQueue) Dequeue(queueName string) (*Job, error) {
	q.moveReadyDelayedJobs(queueName)

	result := q.client.BRPop(q.ctx, 1*time.Second, queueName)
	if result.Err() != nil {
		if result.Err() == redis.Nil {
			return nil, nil // No jobs available
		}
		return nil, fmt.Errorf("failed to pop job from queue: %w", result.Err())
	}

	if len(result.Val()) < 2 {
		return nil, fmt.Errorf("unexpected result format from BRPOP")
	}

	var job Job
	if err := json.Unmarshal([]byte(result.Val()[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	job.Status = JobStatusProcessing
	job.UpdatedAt = time.Now()
	q.updateJob(&job)

	return &job, nil
}

// Complete marks a job as completed
func (q *RedisQueue) Complete(job *Job) error {
	job.Status = JobStatusCompleted
	job.UpdatedAt = time.Now()
	return q.updateJob(job)
}

// Fail marks a job as failed, re-enqueueing it with backoff while retries remain
func (q *RedisQueue) Fail(job *Job, jobErr error) error {
	job.Error = jobErr.Error()
	job.UpdatedAt = time.Now()

	if job.RetryCount < job.MaxRetries {
		job.RetryCount++
		job.Status = JobStatusPending
		backoff := time.Duration(job.RetryCount) * 30 * time.Second
		job.RunAt = time.Now().Add(backoff)

		jobBytes, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job for retry: %w", err)
		}
		err = q.client.ZAdd(q.ctx, "delayed:"+job.Queue, &redis.Z{
			Score:  float64(job.RunAt.Unix()),
			Member: jobBytes,
		}).Err()
		if err != nil {
			return fmt.Errorf("failed to re-enqueue job: %w", err)
		}
		return q.storeJob(job, jobBytes)
	}

	job.Status = JobStatusFailed
	q.log.WithFields(logrus.Fields{
		"job_id": job.ID,
		"queue":  job.Queue,
	}).WithError(jobErr).Error("job failed permanently")
	return q.updateJob(job)
}

// moveReadyDelayedJobs moves delayed jobs that are ready to run to the main queue
func (q *RedisQueue) moveReadyDelayedJobs(queueName string) {
	now := time.Now().Unix()

	jobs, err := q.client.ZRangeByScore(q.ctx, "delayed:"+queueName, &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		q.log.WithError(err).Warn("failed to read delayed jobs")
		return
	}

	for _, jobStr := range jobs {
		if err := q.client.LPush(q.ctx, queueName, jobStr).Err(); err != nil {
			q.log.WithError(err).Warn("failed to move delayed job")
			continue
		}
		q.client.ZRem(q.ctx, "delayed:"+queueName, jobStr)
	}
}

func (q *RedisQueue) storeJob(job *Job, jobBytes []byte) error {
	if err := q.client.HSet(q.ctx, "jobs:"+job.ID, "data", jobBytes).Err(); err != nil {
		return fmt.Errorf("failed to store job details: %w", err)
	}
	return q.client.Expire(q.ctx, "jobs:"+job.ID, DefaultTTL).Err()
}

func (q *RedisQueue) updateJob(job *Job) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return q.storeJob(job, jobBytes)
}
