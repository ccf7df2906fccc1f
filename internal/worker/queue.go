package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chirp/internal/middleware"
	"chirp/internal/observability"

	"github.com/redis/go-redis/v9"
)

// QueueKey is the Redis list holding pending jobs.
const QueueKey = "chirp:jobs"

// Dispatcher hands jobs to whatever executes them.
type Dispatcher interface {
	Enqueue(ctx context.Context, job Job) error
}

// NewDispatcher returns a Redis-backed queue, or an inline dispatcher when rdb is nil.
func NewDispatcher(rdb *redis.Client, p *Processor) Dispatcher {
	if rdb == nil {
		return NewInlineDispatcher(p)
	}
	return NewRedisQueue(rdb)
}

// Submit enqueues jobs and logs failures. Callers never see enqueue errors.
func Submit(ctx context.Context, d Dispatcher, jobs ...Job) {
	if d == nil {
		return
	}
	for _, job := range jobs {
		if err := d.Enqueue(ctx, job); err != nil {
			middleware.Logger.ErrorContext(ctx, "failed to enqueue job",
				slog.String("job_type", job.Type),
				slog.String("error", err.Error()),
			)
		}
	}
}

// RedisQueue is a FIFO job queue on a Redis list (LPUSH producers, BRPOP consumers).
type RedisQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisQueue creates a queue on QueueKey.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: QueueKey}
}

// Enqueue pushes job onto the queue.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.Type, err)
	}
	if err := q.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job %s: %w", job.Type, err)
	}
	observability.JobsEnqueued.WithLabelValues(job.Type, "redis").Inc()
	return nil
}

// Dequeue blocks up to timeout for the next job. It returns (nil, nil) when the queue stayed empty.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop job: %w", err)
	}
	// BRPOP replies with [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of length %d", len(res))
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, permanent(fmt.Errorf("decode job: %w", err))
	}
	return &job, nil
}

// Len reports the number of pending jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// InlineDispatcher runs each job in its own goroutine, retrying in place.
type InlineDispatcher struct {
	processor *Processor
	wg        sync.WaitGroup
}

// NewInlineDispatcher creates a dispatcher that needs no queue.
func NewInlineDispatcher(p *Processor) *InlineDispatcher {
	return &InlineDispatcher{processor: p}
}

// Enqueue starts job in the background. The request context's values are kept but not its cancellation.
func (d *InlineDispatcher) Enqueue(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	observability.JobsEnqueued.WithLabelValues(job.Type, "inline").Inc()

	bg := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			err := d.processor.Process(bg, job)
			if err == nil || !d.processor.shouldRetry(job, err) {
				return
			}
			job.Attempt++
		}
	}()
	return nil
}

// Wait blocks until every started job has finished.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
