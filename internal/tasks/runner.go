// Package tasks runs best-effort background work (email delivery, webhook
// payload processing) off the request path on a bounded worker pool.
//
// Tasks are retried with exponential backoff up to a per-task attempt cap and
// run under a soft time limit: on expiry the context is canceled and the task
// is expected to return promptly with a retryable error instead of being
// killed mid-mutation. Tasks must therefore be idempotent.
package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of deferred work.
type Task struct {
	Name        string
	MaxAttempts int                             // defaults to 3
	Run         func(ctx context.Context) error // must be idempotent
}

// Runner is a fixed-size worker pool with an in-memory queue.
type Runner struct {
	queue       chan Task
	wg          sync.WaitGroup
	log         *zap.SugaredLogger
	softTimeout time.Duration
	baseDelay   time.Duration

	mu     sync.Mutex
	closed bool
}

// Option tweaks Runner construction (used by tests to shrink delays).
type Option func(*Runner)

// WithBaseDelay overrides the first retry delay.
func WithBaseDelay(d time.Duration) Option {
	return func(r *Runner) { r.baseDelay = d }
}

// New creates and starts a runner with the given number of workers.
func New(workers int, softTimeout time.Duration, log *zap.SugaredLogger, opts ...Option) *Runner {
	if workers < 1 {
		workers = 1
	}
	r := &Runner{
		queue:       make(chan Task, 256),
		log:         log,
		softTimeout: softTimeout,
		baseDelay:   time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Enqueue schedules a task for execution. Returns false if the runner has
// shut down or the queue is full; the caller treats that as a logged,
// non-fatal delivery failure.
func (r *Runner) Enqueue(t Task) bool {
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = 3
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	select {
	case r.queue <- t:
		return true
	default:
		r.log.Errorw("task queue full, dropping task", "task", t.Name)
		return false
	}
}

// Shutdown stops intake and waits for in-flight tasks to finish.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for t := range r.queue {
		r.execute(t)
	}
}

func (r *Runner) execute(t Task) {
	for attempt := 1; attempt <= t.MaxAttempts; attempt++ {
		err := r.runOnce(t)
		if err == nil {
			return
		}

		if attempt == t.MaxAttempts {
			r.log.Errorw("task permanently failed",
				"task", t.Name, "attempts", attempt, "error", err)
			return
		}

		delay := r.baseDelay << (attempt - 1)
		r.log.Warnw("task failed, retrying",
			"task", t.Name, "attempt", attempt, "retry_in", delay, "error", err)
		time.Sleep(delay)
	}
}

func (r *Runner) runOnce(t Task) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.softTimeout)
	defer cancel()
	return t.Run(ctx)
}
