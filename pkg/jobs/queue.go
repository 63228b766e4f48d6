package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a unit of background work referencing a persisted record by ID.
type Job struct {
	ID       string
	Type     string
	Attempt  int
	Enqueued time.Time
}

// Handler executes a single job. A non-nil error triggers a retry.
type Handler func(context.Context, Job) error

// QueueConfig tunes the worker pool.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

func (c *QueueConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.BufferSize <= 0 {
		c.BufferSize = c.Workers * 8
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Queue is an in-process job dispatcher. Jobs reference database rows, so a
// lost in-flight job after a crash is recovered by re-reading queued rows at
// startup rather than by durable queue state.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	log     *zap.Logger

	pending chan Job

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// NewQueue builds a queue; call Start before Enqueue.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	cfg.applyDefaults()
	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		log:     cfg.Logger.With(zap.String("queue", name)),
		pending: make(chan Job, cfg.BufferSize),
	}
}

// Start launches the worker goroutines. Subsequent calls are no-ops.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.run()
	}
	q.running = true
	q.log.Info("queue started", zap.Int("workers", q.cfg.Workers))
}

// Stop cancels the workers and blocks until they drain.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.running = false
	q.mu.Unlock()
	q.wg.Wait()
	q.log.Info("queue stopped")
}

// Enqueue submits a job without blocking. A full buffer is an error so the
// caller can mark the backing record failed instead of stalling a request.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	running := q.running
	q.mu.Unlock()
	if !running {
		return fmt.Errorf("queue %s is not running", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	select {
	case q.pending <- job:
		return nil
	default:
		return fmt.Errorf("queue %s is full", q.name)
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.pending:
			if err := q.handler(q.ctx, job); err != nil {
				q.retry(job, err)
			}
		}
	}
}

// retry re-submits with linear backoff until MaxRetries is exhausted.
func (q *Queue) retry(job Job, cause error) {
	job.Attempt++
	if job.Attempt > q.cfg.MaxRetries {
		q.log.Error("job dropped after retries",
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.Error(cause),
		)
		return
	}
	q.log.Warn("job failed, scheduling retry",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
		zap.Error(cause),
	)
	delay := time.Duration(job.Attempt) * q.cfg.RetryDelay
	time.AfterFunc(delay, func() {
		select {
		case <-q.ctx.Done():
		case q.pending <- job:
		default:
			q.log.Error("retry dropped, queue full", zap.String("job_id", job.ID))
		}
	})
}
