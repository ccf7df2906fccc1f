// Package bootstrap opens the runtime dependencies shared by every command.
package bootstrap

import (
	"context"
	"fmt"

	"chirp/internal/cache"
	"chirp/internal/config"
	"chirp/internal/database"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// ApplySchema runs ApplySchema according to DB_SCHEMA_MODE after connecting.
	ApplySchema bool
	// SkipRedis leaves the Redis client nil, for commands that only touch the database.
	SkipRedis bool
	// Dialector overrides the postgres dialector built from cfg.
	Dialector gorm.Dialector
}

// InitRuntime connects to the database and Redis and optionally brings the schema up to date.
// The Redis client is nil when Redis is unreachable.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	dialector := opts.Dialector
	if dialector == nil {
		dialector = postgres.Open(database.DSN(cfg))
	}

	db, err := database.ConnectWithOptions(cfg, dialector)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	if opts.ApplySchema {
		if err := database.ApplySchema(ctx, db, cfg); err != nil {
			_ = database.Close(db)
			return nil, nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	if opts.SkipRedis {
		return db, nil, nil
	}
	return db, cache.InitRedis(cfg.RedisURL), nil
}
