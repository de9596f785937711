package queue

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
)

// Handler processes one dequeued job
type Handler func(ctx context.Context, job Job) error

// Store is the consumer side of the queue the worker drains
type Store interface {
	Dequeue(queueName string) (*Job, error)
	Complete(job *Job) error
	Fail(job *Job, jobErr error) error
}

// Worker polls registered queues with a pool of goroutines and runs recurring
// jobs on a gocron scheduler.
type Worker struct {
	queue      Store
	handlers   map[string]Handler
	numWorkers int
	wg         sync.WaitGroup
	quit       chan struct{}
	scheduler  *gocron.Scheduler
	log        *logrus.Entry
}

// NewWorker creates a new worker pool
func NewWorker(queue Store, numWorkers int) *Worker {
	return &Worker{
		queue:      queue,
		handlers:   make(map[string]Handler),
		numWorkers: numWorkers,
		quit:       make(chan struct{}),
		scheduler:  gocron.NewScheduler(time.UTC),
		log:        logrus.WithField("component", "worker"),
	}
}

// RegisterHandler registers a handler for a queue name
func (w *Worker) RegisterHandler(queueName string, handler Handler) {
	w.handlers[queueName] = handler
}

// Scheduler exposes the gocron scheduler for recurring jobs
func (w *Worker) Scheduler() *gocron.Scheduler {
	return w.scheduler
}

// Start starts the worker goroutines and the recurring-job scheduler
func (w *Worker) Start() {
	w.log.WithField("workers", w.numWorkers).Info("starting workers")

	for i := 0; i < w.numWorkers; i++ {
		w.wg.Add(1)
		go w.process(i)
	}

	w.scheduler.StartAsync()
}

// Stop stops the worker and waits for in-flight jobs
func (w *Worker) Stop() {
	close(w.quit)
	w.wg.Wait()
	w.scheduler.Stop()
	w.log.Info("workers stopped")
}

// process polls the registered queues round-robin
func (w *Worker) process(workerID int) {
	defer w.wg.Done()

	queues := make([]string, 0, len(w.handlers))
	for name := range w.handlers {
		queues = append(queues, name)
	}
	if len(queues) == 0 {
		return
	}

	for {
		select {
		case <-w.quit:
			return
		default:
			for _, queueName := range queues {
				job, err := w.queue.Dequeue(queueName)
				if err != nil {
					w.log.WithError(err).Warn("failed to dequeue job")
					time.Sleep(time.Second)
					continue
				}
				if job == nil {
					continue
				}

				w.run(queueName, job)
				// One job per iteration so other queues get a turn.
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func (w *Worker) run(queueName string, job *Job) {
	handler, ok := w.handlers[queueName]
	if !ok {
		w.log.WithField("queue", queueName).Warn("no handler registered")
		return
	}

	if err := handler(context.Background(), *job); err != nil {
		if failErr := w.queue.Fail(job, err); failErr != nil {
			w.log.WithError(failErr).WithField("job_id", job.ID).Warn("failed to mark job failed")
		}
		return
	}

	if err := w.queue.Complete(job); err != nil {
		w.log.WithError(err).WithField("job_id", job.ID).Warn("failed to mark job completed")
	}
}
