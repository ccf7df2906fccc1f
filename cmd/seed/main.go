// Command main runs the database seeder for Chirp.
package main

import (
	"context"
	"flag"
	"log"

	"chirp/internal/bootstrap"
	"chirp/internal/cache"
	"chirp/internal/config"
	"chirp/internal/database"
	"chirp/internal/seed"
)

func main() {
	opts := seed.DefaultOptions()
	flag.IntVar(&opts.NumUsers, "users", opts.NumUsers, "Number of users to create")
	flag.IntVar(&opts.MaxPostsPerUser, "posts", opts.MaxPostsPerUser, "Maximum posts per user (at least one each)")
	flag.IntVar(&opts.MaxLikesPerUser, "likes", opts.MaxLikesPerUser, "Maximum posts liked by each user")
	flag.IntVar(&opts.MaxFollowersPerUser, "follows", opts.MaxFollowersPerUser, "Maximum followers per user")
	flag.BoolVar(&opts.ShouldClean, "clean", opts.ShouldClean, "Clean database before seeding")
	flag.Int64Var(&opts.RandSeed, "seed", 0, "Random seed for a reproducible dataset (0 = time based)")
	flag.BoolVar(&opts.DryRun, "dry-run", false, "Generate data without writing to the database")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")
	log.Printf("Target: %d users, <=%d posts/user, <=%d likes/user, <=%d followers/user, clean=%v\n",
		opts.NumUsers, opts.MaxPostsPerUser, opts.MaxLikesPerUser, opts.MaxFollowersPerUser, opts.ShouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	db, rdb, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{ApplySchema: true})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer func() {
		_ = database.Close(db)
		if rdb != nil {
			_ = rdb.Close()
		}
	}()

	s, err := seed.NewSeeder(db, opts)
	if err != nil {
		log.Fatalf("❌ Invalid seed options: %v", err)
	}
	res, err := s.Run(ctx)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	// Cached counts predate the bulk insert.
	if removed, err := cache.NewCountCache(rdb).Flush(ctx); err != nil {
		log.Printf("⚠️  Could not flush cached counts: %v", err)
	} else if removed > 0 {
		log.Printf("Flushed %d cached counts", removed)
	}

	log.Printf("✨ All done! %d users, %d posts, %d likes and %d follows.", res.Users, res.Posts, res.Likes, res.Follows)
	log.Printf("📧 All seeded users have the password: %s", seed.DefaultPassword)
}
