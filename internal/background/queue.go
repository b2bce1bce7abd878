// ABOUTME: Bounded worker queue for fire-and-forget work spawned by requests
// ABOUTME: Runs credential upgrades and audit writes off the response path with dedupe and timeouts

package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/codecafelab/aicaller-gateway/internal/dedupe"
)

// Job outcomes reported to OnDone.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomePanic     = "panic"
	OutcomeDropped   = "dropped"
	OutcomeDuplicate = "duplicate"
)

// ErrClosed is returned by Submit after Close has been called.
var ErrClosed = errors.New("background queue closed")

// ErrQueueFull is returned by Submit when the buffer has no free slot.
var ErrQueueFull = errors.New("background queue full")

// ErrDuplicate is returned by Submit when a job with the same key is already pending or running.
var ErrDuplicate = errors.New("duplicate background job")

// Job is a unit of work. Key is optional; jobs sharing a non-empty key are
// deduplicated while one of them is pending or running.
type Job struct {
	Name string
	Key  string
	Run  func(ctx context.Context) error
}

// Config configures a Queue. Zero values pick defaults.
type Config struct {
	Workers    int           // default 2
	QueueSize  int           // default 256
	JobTimeout time.Duration // default 10s
	DedupeTTL  time.Duration // default 5m; caps how long a stuck key blocks resubmission
	Logger     *slog.Logger

	// OnDone is called once per submitted job with its final outcome.
	OnDone func(job, outcome string)
}

// Queue runs jobs on a fixed pool of workers. Submit never blocks: when the
// buffer is full the job is dropped and logged.
type Queue struct {
	jobs    chan Job
	keys    *dedupe.Cache
	timeout time.Duration
	logger  *slog.Logger
	onDone  func(job, outcome string)

	// mu guards closed and orders Submit's send against Close's close(jobs).
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New starts a queue with cfg.Workers goroutines.
func New(cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Second
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	q := &Queue{
		jobs:    make(chan Job, cfg.QueueSize),
		keys:    dedupe.New(cfg.DedupeTTL, cfg.QueueSize+cfg.Workers),
		timeout: cfg.JobTimeout,
		logger:  cfg.Logger.With("component", "background"),
		onDone:  cfg.OnDone,
	}

	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Submit enqueues job without blocking. The returned error says why the job
// will not run; callers on a request path usually just ignore it.
func (q *Queue) Submit(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.report(job.Name, OutcomeDropped)
		return ErrClosed
	}

	if job.Key != "" && q.keys.CheckAndMark(job.Key) {
		q.logger.Debug("skipping duplicate job", "job", job.Name, "key", job.Key)
		q.report(job.Name, OutcomeDuplicate)
		return ErrDuplicate
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		if job.Key != "" {
			q.keys.Forget(job.Key)
		}
		q.logger.Warn("background queue full, dropping job", "job", job.Name)
		q.report(job.Name, OutcomeDropped)
		return ErrQueueFull
	}
}

// Pending returns the number of buffered jobs not yet picked up by a worker.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

// Claimed returns the number of job keys currently deduplicated: pending,
// running, or finished within the dedupe TTL.
func (q *Queue) Claimed() int {
	return q.keys.Len()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		q.run(job)
	}
}

// run executes one job on a context detached from any request.
func (q *Queue) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	outcome := OutcomeOK
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("background job panic",
				"job", job.Name,
				"panic", r,
				"stack", string(debug.Stack()))
			outcome = OutcomePanic
		}
		// Successful keys stay claimed until the TTL so a burst of logins
		// does not redo the same work; failures may be retried at once.
		if outcome != OutcomeOK && job.Key != "" {
			q.keys.Forget(job.Key)
		}
		q.report(job.Name, outcome)
	}()

	if err := job.Run(ctx); err != nil {
		outcome = OutcomeError
		q.logger.Warn("background job failed", "job", job.Name, "error", err)
	}
}

func (q *Queue) report(job, outcome string) {
	if q.onDone != nil {
		q.onDone(job, outcome)
	}
}

// Close stops accepting jobs and waits for queued and running jobs to finish
// or for ctx to expire, whichever comes first.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	defer q.keys.Close()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining background queue: %w", ctx.Err())
	}
}
