// Package queue runs refresh jobs on an in-process worker pool.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"battlestats/internal/config"
	"battlestats/internal/metrics"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

var (
	ErrInFlight   = errors.New("job already queued or running")
	ErrQueueFull  = errors.New("refresh queue is full")
	ErrUnknownJob = errors.New("no handler registered for job")
	ErrStopped    = errors.New("refresh queue stopped")
	ErrJobTimeout = errors.New("job timed out")
)

// Handler processes one job. It must stop writing once ctx is done.
type Handler func(ctx context.Context, payload map[string]any) error

type Job struct {
	ID         string
	Name       string
	Key        string
	Payload    map[string]any
	EnqueuedAt time.Time
}

// Queue is a bounded job buffer drained by a fixed set of workers. At most one
// job per (name, key) is queued or running at a time.
type Queue struct {
	logger  zerolog.Logger
	metrics *metrics.Metrics
	workers int
	timeout time.Duration

	jobs chan Job

	mu       sync.Mutex
	handlers map[string]Handler
	inflight map[string]string // name/key -> job id
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func New(cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) *Queue {
	size := cfg.RefreshQueueSize
	if size < 1 {
		size = 1
	}
	return &Queue{
		logger:   logger.With().Str("component", "queue").Logger(),
		metrics:  m,
		workers:  cfg.RefreshWorkers,
		timeout:  cfg.RefreshJobTimeout,
		jobs:     make(chan Job, size),
		handlers: make(map[string]Handler),
		inflight: make(map[string]string),
	}
}

func (q *Queue) Register(name string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = handler
}

func inflightKey(name, key string) string {
	return name + "/" + key
}

// Enqueue schedules a job and returns its id. It never blocks.
func (q *Queue) Enqueue(name, key string, payload map[string]any) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return "", ErrStopped
	}
	if _, ok := q.handlers[name]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	k := inflightKey(name, key)
	if id, ok := q.inflight[k]; ok {
		return id, ErrInFlight
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate job id: %w", err)
	}

	job := Job{ID: id, Name: name, Key: key, Payload: payload, EnqueuedAt: time.Now()}
	select {
	case q.jobs <- job:
	default:
		q.metrics.RefreshJobs.WithLabelValues(name, "rejected").Inc()
		return "", ErrQueueFull
	}

	q.inflight[k] = id
	q.metrics.QueueDepth.Set(float64(len(q.jobs)))

	q.logger.Debug().
		Str("job_id", id).
		Str("job", name).
		Str("key", key).
		Msg("job enqueued")
	return id, nil
}

// InFlight reports whether a job with this name and key is queued or running.
func (q *Queue) InFlight(name, key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.inflight[inflightKey(name, key)]
	return ok
}

func (q *Queue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return fmt.Errorf("queue already started")
	}
	if q.stopped {
		return ErrStopped
	}
	q.started = true

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	q.logger.Info().
		Int("workers", q.workers).
		Int("capacity", cap(q.jobs)).
		Dur("job_timeout", q.timeout).
		Msg("refresh queue started")
	return nil
}

// Stop cancels running jobs, drops pending ones and waits for the workers
// until ctx is done.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	pending := len(q.jobs)
	cancel := q.cancel
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info().Int("dropped", pending).Msg("refresh queue stopped")
		return nil
	case <-ctx.Done():
		q.logger.Warn().Int("dropped", pending).Msg("refresh queue shutdown timed out")
		return ctx.Err()
	}
}

func (q *Queue) worker(ctx context.Context, n int) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			q.logger.Debug().Int("worker", n).Msg("worker stopping")
			return
		case job := <-q.jobs:
			q.metrics.QueueDepth.Set(float64(len(q.jobs)))
			q.process(ctx, job)
		}
	}
}

func (q *Queue) process(ctx context.Context, job Job) {
	defer func() {
		q.mu.Lock()
		delete(q.inflight, inflightKey(job.Name, job.Key))
		q.mu.Unlock()
	}()

	q.mu.Lock()
	handler := q.handlers[job.Name]
	q.mu.Unlock()

	log := q.logger.With().
		Str("job_id", job.ID).
		Str("job", job.Name).
		Str("key", job.Key).
		Logger()

	start := time.Now()
	err := q.run(ctx, handler, job)
	duration := time.Since(start)

	q.metrics.RefreshDuration.WithLabelValues(job.Name).Observe(float64(duration.Milliseconds()))

	switch {
	case err == nil:
		q.metrics.RefreshJobs.WithLabelValues(job.Name, "ok").Inc()
		log.Info().Dur("duration", duration).Dur("wait", start.Sub(job.EnqueuedAt)).Msg("job completed")
	case errors.Is(err, ErrJobTimeout):
		q.metrics.RefreshJobs.WithLabelValues(job.Name, "timeout").Inc()
		log.Warn().Dur("duration", duration).Msg("job abandoned after timeout")
	default:
		q.metrics.RefreshJobs.WithLabelValues(job.Name, "error").Inc()
		log.Warn().Err(err).Dur("duration", duration).Msg("job failed")
	}
}

// run executes the handler and gives up on it once the job deadline passes.
// The handler goroutine keeps running until it observes the cancelled context.
func (q *Queue) run(ctx context.Context, handler Handler, job Job) error {
	jobCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("job panicked: %v", r)
			}
		}()
		done <- handler(jobCtx, job.Payload)
	}()

	var err error
	select {
	case err = <-done:
		if err == nil {
			return nil
		}
	case <-jobCtx.Done():
		err = jobCtx.Err()
	}
	if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		return ErrJobTimeout
	}
	return err
}
