package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCountCache(t *testing.T) (*miniredis.Miniredis, *CountCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewCountCache(rdb)
}

func countingLoader(value int64, calls *int) Loader {
	return func(context.Context) (int64, error) {
		*calls++
		return value, nil
	}
}

func TestCountCache_ReadThrough(t *testing.T) {
	mr, cc := setupCountCache(t)
	ctx := context.Background()
	calls := 0

	n, err := cc.Get(ctx, FollowersKey(1), countingLoader(3, &calls))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 1, calls)

	n, err = cc.Get(ctx, FollowersKey(1), countingLoader(99, &calls))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "second read is served from cache")
	assert.Equal(t, 1, calls)

	ttl := mr.TTL(FollowersKey(1))
	assert.Equal(t, 15*time.Minute, ttl)
}

func TestCountCache_Expires(t *testing.T) {
	mr, cc := setupCountCache(t)
	ctx := context.Background()
	calls := 0

	_, err := cc.Get(ctx, LikesKey(5), countingLoader(1, &calls))
	require.NoError(t, err)

	mr.FastForward(15*time.Minute + time.Second)

	n, err := cc.Get(ctx, LikesKey(5), countingLoader(2, &calls))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 2, calls)
}

func TestCountCache_SetOverwrites(t *testing.T) {
	mr, cc := setupCountCache(t)
	ctx := context.Background()
	calls := 0

	_, err := cc.Get(ctx, FollowedKey(2), countingLoader(1, &calls))
	require.NoError(t, err)
	require.NoError(t, cc.Set(ctx, FollowedKey(2), 10))

	v, err := mr.Get(FollowedKey(2))
	require.NoError(t, err)
	assert.Equal(t, "10", v)

	n, err := cc.Get(ctx, FollowedKey(2), countingLoader(1, &calls))
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, 1, calls)
}

func TestCountCache_Invalidate(t *testing.T) {
	mr, cc := setupCountCache(t)
	ctx := context.Background()

	require.NoError(t, cc.Set(ctx, FollowersKey(1), 1))
	require.NoError(t, cc.Set(ctx, FollowedKey(2), 1))
	require.NoError(t, cc.Invalidate(ctx, FollowersKey(1), FollowedKey(2)))

	assert.False(t, mr.Exists(FollowersKey(1)))
	assert.False(t, mr.Exists(FollowedKey(2)))
}

func TestCountCache_Flush(t *testing.T) {
	mr, cc := setupCountCache(t)
	ctx := context.Background()

	for i := uint(1); i <= 600; i++ {
		require.NoError(t, cc.Set(ctx, LikesKey(i), 1))
	}
	require.NoError(t, cc.Set(ctx, FollowersKey(1), 3))
	require.NoError(t, cc.Set(ctx, FollowedKey(1), 2))
	require.NoError(t, mr.Set("chirp:jobs", "untouched"))

	removed, err := cc.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 602, removed)
	assert.Equal(t, []string{"chirp:jobs"}, mr.Keys())

	removed, err = NewCountCache(nil).Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestCountCache_CorruptEntryIsRecomputed(t *testing.T) {
	mr, cc := setupCountCache(t)
	require.NoError(t, mr.Set(LikesKey(9), "not-a-number"))
	calls := 0

	n, err := cc.Get(context.Background(), LikesKey(9), countingLoader(4, &calls))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	v, _ := mr.Get(LikesKey(9))
	assert.Equal(t, "4", v)
}

func TestCountCache_WithoutRedis(t *testing.T) {
	cc := NewCountCache(nil)
	ctx := context.Background()
	calls := 0

	for i := 0; i < 2; i++ {
		n, err := cc.Get(ctx, FollowersKey(1), countingLoader(7, &calls))
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
	}
	assert.Equal(t, 2, calls)
	assert.NoError(t, cc.Set(ctx, FollowersKey(1), 1))
	assert.NoError(t, cc.Invalidate(ctx, FollowersKey(1)))
}

func TestCountCache_RedisDownFallsBackToLoader(t *testing.T) {
	mr, cc := setupCountCache(t)
	mr.Close()
	calls := 0

	n, err := cc.Get(context.Background(), FollowersKey(3), countingLoader(5, &calls))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, 1, calls)
}

func TestCountCache_LoaderError(t *testing.T) {
	_, cc := setupCountCache(t)
	boom := errors.New("db down")

	_, err := cc.Get(context.Background(), LikesKey(1), func(context.Context) (int64, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestKeysAndFamily(t *testing.T) {
	assert.Equal(t, "followers:1", FollowersKey(1))
	assert.Equal(t, "followed:2", FollowedKey(2))
	assert.Equal(t, "likes:3", LikesKey(3))
	assert.Equal(t, "likes", family(LikesKey(3)))
	assert.Equal(t, "other", family("plain"))
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := NewClient(context.Background(), mr.Addr())
	require.NoError(t, err)
	_ = rdb.Close()

	rdb, err = NewClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	_ = rdb.Close()

	_, err = Options("redis://%%bad")
	assert.Error(t, err)
}
