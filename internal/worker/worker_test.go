package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"chirp/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisQueue_FIFO(t *testing.T) {
	_, rdb := testutil.NewRedis(t)
	q := NewRedisQueue(rdb)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, RefreshFollowersCount(1)))
	require.NoError(t, q.Enqueue(ctx, RefreshFollowedCount(2)))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	first, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, TypeRefreshFollowersCount, first.Type)
	assert.Equal(t, uint(1), first.Args["user_id"])
	assert.False(t, first.EnqueuedAt.IsZero())

	second, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, TypeRefreshFollowedCount, second.Type)
}

func TestRedisQueue_EmptyAndCorrupt(t *testing.T) {
	_, rdb := testutil.NewRedis(t)
	q := NewRedisQueue(rdb)
	ctx := context.Background()

	job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Nil(t, job)

	require.NoError(t, rdb.LPush(ctx, QueueKey, "{not json").Err())
	_, err = q.Dequeue(ctx, time.Second)
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestJob_Arg(t *testing.T) {
	job := SendFollowEmail(3, 4)
	v, err := job.Arg("followed_id")
	require.NoError(t, err)
	assert.Equal(t, uint(3), v)

	_, err = job.Arg("user_id")
	assert.ErrorIs(t, err, ErrPermanent)

	assert.NotContains(t, RefreshLikesForUser(1, 0).Args, "post_id")
	assert.Equal(t, uint(9), RefreshLikesForUser(1, 9).Args["post_id"])
}

func TestProcessor_Process(t *testing.T) {
	p := NewProcessor(3)
	p.Handle("ok", func(context.Context, Job) error { return nil })
	p.Handle("boom", func(context.Context, Job) error { panic("kaboom") })

	ctx := context.Background()
	assert.NoError(t, p.Process(ctx, Job{Type: "ok"}))

	err := p.Process(ctx, Job{Type: "missing"})
	assert.ErrorIs(t, err, ErrUnknownJob)
	assert.ErrorIs(t, err, ErrPermanent)

	err = p.Process(ctx, Job{Type: "boom"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestProcessor_ShouldRetry(t *testing.T) {
	p := NewProcessor(3)
	transient := errors.New("db down")

	assert.True(t, p.shouldRetry(Job{Attempt: 0}, transient))
	assert.True(t, p.shouldRetry(Job{Attempt: 1}, transient))
	assert.False(t, p.shouldRetry(Job{Attempt: 2}, transient))
	assert.False(t, p.shouldRetry(Job{Attempt: 0}, permanent(transient)))

	assert.Equal(t, defaultMaxAttempts, NewProcessor(0).maxAttempts)
}

func TestPool_ConsumesEnqueuedJobOnce(t *testing.T) {
	_, rdb := testutil.NewRedis(t)
	q := NewRedisQueue(rdb)

	var calls int32
	p := NewProcessor(3)
	p.Handle(TypeRefreshFollowersCount, func(_ context.Context, job Job) error {
		assert.Equal(t, uint(5), job.Args["user_id"])
		atomic.AddInt32(&calls, 1)
		return nil
	})

	pool := NewPool(q, p, 2)
	pool.pollTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	require.NoError(t, q.Enqueue(context.Background(), RefreshFollowersCount(5)))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return atomic.LoadInt32(&calls) > 1 }, 200*time.Millisecond, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after cancel")
	}
}

func TestPool_RetriesUpToMaxAttempts(t *testing.T) {
	_, rdb := testutil.NewRedis(t)
	q := NewRedisQueue(rdb)

	var calls int32
	p := NewProcessor(3)
	p.Handle("flaky", func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("still failing")
	})

	pool := NewPool(q, p, 1)
	pool.pollTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	require.NoError(t, q.Enqueue(context.Background(), Job{Type: "flaky"}))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 3 }, 3*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return atomic.LoadInt32(&calls) > 3 }, 300*time.Millisecond, 20*time.Millisecond)
}

func TestInlineDispatcher_RunsAndRetries(t *testing.T) {
	var calls int32
	p := NewProcessor(2)
	p.Handle("flaky", func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("nope")
	})
	p.Handle("once", func(context.Context, Job) error {
		atomic.AddInt32(&calls, 10)
		return nil
	})

	d := NewInlineDispatcher(p)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Enqueue(ctx, Job{Type: "flaky"}))
	require.NoError(t, d.Enqueue(ctx, Job{Type: "once"}))
	// The request context ending must not abort queued work.
	cancel()
	d.Wait()

	assert.Equal(t, int32(12), atomic.LoadInt32(&calls))
}

func TestNewDispatcher(t *testing.T) {
	p := NewProcessor(1)
	assert.IsType(t, &InlineDispatcher{}, NewDispatcher(nil, p))

	_, rdb := testutil.NewRedis(t)
	assert.IsType(t, &RedisQueue{}, NewDispatcher(rdb, p))
}

type failingDispatcher struct{ calls int }

func (f *failingDispatcher) Enqueue(context.Context, Job) error {
	f.calls++
	return errors.New("queue unavailable")
}

func TestSubmit_SwallowsEnqueueErrors(t *testing.T) {
	d := &failingDispatcher{}
	assert.NotPanics(t, func() {
		Submit(context.Background(), d, RefreshFollowersCount(1), RefreshFollowedCount(2))
		Submit(context.Background(), nil, RefreshFollowersCount(1))
	})
	assert.Equal(t, 2, d.calls)
}
