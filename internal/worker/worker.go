package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chirp/internal/middleware"
	"chirp/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultConcurrency = 2
	defaultMaxAttempts = 3
	pollTimeout        = 2 * time.Second
	errorBackoff       = time.Second
)

// ErrUnknownJob is returned for job types with no registered handler.
var ErrUnknownJob = errors.New("unknown job type")

// HandlerFunc executes one job.
type HandlerFunc func(ctx context.Context, job Job) error

// Processor routes jobs to handlers and records their outcome.
type Processor struct {
	handlers    map[string]HandlerFunc
	maxAttempts int
}

// NewProcessor creates a Processor. maxAttempts bounds how often a job runs in total.
func NewProcessor(maxAttempts int) *Processor {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Processor{handlers: make(map[string]HandlerFunc), maxAttempts: maxAttempts}
}

// Handle registers h for jobType.
func (p *Processor) Handle(jobType string, h HandlerFunc) {
	p.handlers[jobType] = h
}

// Process runs the handler for job.
func (p *Processor) Process(ctx context.Context, job Job) (err error) {
	start := time.Now()
	ctx = middleware.WithJobType(ctx, job.Type)
	span, ctx := observability.StartJobSpan(ctx, job.Type, job.Attempt)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Type, r)
		}
		if err != nil {
			span.SetError(err)
			middleware.Logger.ErrorContext(ctx, "job failed",
				slog.String("job_type", job.Type),
				slog.Int("attempt", job.Attempt+1),
				slog.String("error", err.Error()),
			)
		}
		span.End()
		observability.ObserveJob(job.Type, start, err)
	}()

	h, ok := p.handlers[job.Type]
	if !ok {
		return permanent(fmt.Errorf("%w: %q", ErrUnknownJob, job.Type))
	}
	span.AddAttributes(attribute.Int("job.args", len(job.Args)))
	return h(ctx, job)
}

func (p *Processor) shouldRetry(job Job, err error) bool {
	if errors.Is(err, ErrPermanent) {
		return false
	}
	return job.Attempt+1 < p.maxAttempts
}

// Pool consumes the Redis queue with a fixed number of goroutines.
type Pool struct {
	queue       *RedisQueue
	processor   *Processor
	concurrency int
	pollTimeout time.Duration
}

// NewPool creates a worker pool. concurrency <= 0 falls back to 2.
func NewPool(queue *RedisQueue, processor *Processor, concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Pool{
		queue:       queue,
		processor:   processor,
		concurrency: concurrency,
		pollTimeout: pollTimeout,
	}
}

// Run blocks until ctx is cancelled and every in-flight job has finished.
func (w *Pool) Run(ctx context.Context) {
	middleware.Logger.Info("job worker started", slog.Int("concurrency", w.concurrency))

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()

	middleware.Logger.Info("job worker stopped")
}

func (w *Pool) loop(ctx context.Context) {
	for ctx.Err() == nil {
		job, err := w.queue.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			middleware.Logger.Error("job dequeue failed", slog.String("error", err.Error()))
			if !errors.Is(err, ErrPermanent) {
				sleep(ctx, errorBackoff)
			}
			continue
		}
		if job == nil {
			continue
		}

		// Handlers outlive shutdown of the poll loop so a popped job is not lost mid-flight.
		if err := w.processor.Process(context.WithoutCancel(ctx), *job); err != nil {
			w.retry(ctx, *job, err)
		}
	}
}

func (w *Pool) retry(ctx context.Context, job Job, err error) {
	if !w.processor.shouldRetry(job, err) {
		middleware.Logger.Warn("job dropped",
			slog.String("job_type", job.Type),
			slog.Int("attempts", job.Attempt+1),
		)
		return
	}
	job.Attempt++
	if err := w.queue.Enqueue(context.WithoutCancel(ctx), job); err != nil {
		middleware.Logger.Error("job requeue failed",
			slog.String("job_type", job.Type),
			slog.String("error", err.Error()),
		)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
