package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"chirp/internal/middleware"
	"chirp/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Loader computes a count from the source of truth.
type Loader func(ctx context.Context) (int64, error)

// CountCache is a read-through cache of integer counts.
// A nil Redis client turns every read into a direct loader call.
type CountCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCountCache returns a cache with the standard 15 minute TTL.
func NewCountCache(rdb *redis.Client) *CountCache {
	return &CountCache{rdb: rdb, ttl: CountTTL}
}

// Get returns the cached count for key, calling load and populating the cache on a miss.
// Redis errors fall through to load.
func (c *CountCache) Get(ctx context.Context, key string, load Loader) (int64, error) {
	fam := family(key)
	if c.rdb == nil {
		observability.CacheLookups.WithLabelValues(fam, "bypass").Inc()
		return load(ctx)
	}

	raw, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if n, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil {
			observability.CacheLookups.WithLabelValues(fam, "hit").Inc()
			return n, nil
		}
		// Corrupt entry; recompute and overwrite.
		observability.CacheLookups.WithLabelValues(fam, "miss").Inc()
	case errors.Is(err, redis.Nil):
		observability.CacheLookups.WithLabelValues(fam, "miss").Inc()
	default:
		observability.CacheLookups.WithLabelValues(fam, "error").Inc()
		middleware.Logger.WarnContext(ctx, "count cache read failed",
			slog.String("key", key), slog.String("error", err.Error()))
		return load(ctx)
	}

	n, err := load(ctx)
	if err != nil {
		return 0, err
	}
	if err := c.Set(ctx, key, n); err != nil {
		middleware.Logger.WarnContext(ctx, "count cache write failed",
			slog.String("key", key), slog.String("error", err.Error()))
	}
	return n, nil
}

// Set overwrites key unconditionally.
func (c *CountCache) Set(ctx context.Context, key string, value int64) error {
	if c.rdb == nil {
		return nil
	}
	if err := c.rdb.Set(ctx, key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Invalidate deletes keys so the next read recomputes them.
func (c *CountCache) Invalidate(ctx context.Context, keys ...string) error {
	if c.rdb == nil || len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate %v: %w", keys, err)
	}
	return nil
}

// Flush drops every cached count and returns how many keys were removed.
// Bulk writes that bypass the services (seeding, imports) call it afterwards.
func (c *CountCache) Flush(ctx context.Context) (int, error) {
	if c.rdb == nil {
		return 0, nil
	}
	removed := 0
	for _, pattern := range []string{"followers:*", "followed:*", "likes:*"} {
		iter := c.rdb.Scan(ctx, 0, pattern, 500).Iterator()
		var batch []string
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == 500 {
				if err := c.Invalidate(ctx, batch...); err != nil {
					return removed, err
				}
				removed += len(batch)
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return removed, fmt.Errorf("scan %s: %w", pattern, err)
		}
		if err := c.Invalidate(ctx, batch...); err != nil {
			return removed, err
		}
		removed += len(batch)
	}
	return removed, nil
}
