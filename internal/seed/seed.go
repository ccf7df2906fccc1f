package seed

import (
	"context"
	"errors"
	"fmt"
	"log"

	"chirp/internal/models"

	"gorm.io/gorm"
)

// ErrNothingToSeed is returned by Run when NumUsers is not positive.
var ErrNothingToSeed = errors.New("seed: NumUsers must be positive")

// Options configuration for the seeder
type Options struct {
	NumUsers            int
	MinPostsPerUser     int
	MaxPostsPerUser     int
	MaxLikesPerUser     int
	MaxFollowersPerUser int
	ShouldClean         bool

	BatchSize  int
	MaxDays    int
	BcryptCost int
	// RandSeed makes a run reproducible; zero picks a time-based seed.
	RandSeed int64
	DryRun   bool
}

// DefaultOptions mirrors the demo dataset shape: a few posts per user and
// a dense like and follow graph.
func DefaultOptions() Options {
	return Options{
		NumUsers:            50,
		MinPostsPerUser:     1,
		MaxPostsPerUser:     3,
		MaxLikesPerUser:     25,
		MaxFollowersPerUser: 20,
		ShouldClean:         true,
		BatchSize:           500,
		MaxDays:             90,
	}
}

// Result counts what a run created.
type Result struct {
	Users   int
	Posts   int
	Likes   int
	Follows int
}

// Seeder populates the database with demo data.
type Seeder struct {
	db      *gorm.DB
	opts    Options
	factory *Factory
}

// NewSeeder creates a Seeder writing through db.
func NewSeeder(db *gorm.DB, opts Options) (*Seeder, error) {
	if opts.MinPostsPerUser < 0 || opts.MaxPostsPerUser < opts.MinPostsPerUser {
		return nil, fmt.Errorf("invalid posts per user range [%d, %d]", opts.MinPostsPerUser, opts.MaxPostsPerUser)
	}
	f, err := NewFactory(db, opts)
	if err != nil {
		return nil, err
	}
	return &Seeder{db: db, opts: opts, factory: f}, nil
}

// Factory exposes the underlying entity factory.
func (s *Seeder) Factory() *Factory {
	return s.factory
}

// Run creates users, then their posts, then likes and follows between them.
func (s *Seeder) Run(ctx context.Context) (Result, error) {
	var res Result
	if s.opts.NumUsers <= 0 {
		return res, ErrNothingToSeed
	}
	log.Printf("🌱 Starting database seeding with %d users...", s.opts.NumUsers)

	if s.opts.ShouldClean && !s.opts.DryRun {
		if err := s.ClearAll(ctx); err != nil {
			return res, fmt.Errorf("clear existing data: %w", err)
		}
	}

	users, err := s.SeedUsers(ctx, s.opts.NumUsers)
	if err != nil {
		return res, fmt.Errorf("failed to create users: %w", err)
	}
	res.Users = len(users)
	log.Printf("✓ %d users created", res.Users)

	posts, err := s.SeedPosts(ctx, users)
	if err != nil {
		return res, fmt.Errorf("failed to create posts: %w", err)
	}
	res.Posts = len(posts)
	log.Printf("✓ %d posts created", res.Posts)

	if res.Likes, err = s.SeedLikes(ctx, users, posts); err != nil {
		return res, fmt.Errorf("failed to create likes: %w", err)
	}
	log.Printf("✓ %d likes created", res.Likes)

	if res.Follows, err = s.SeedFollows(ctx, users); err != nil {
		return res, fmt.Errorf("failed to create follows: %w", err)
	}
	log.Printf("✓ %d follows created", res.Follows)

	log.Println("🎉 Database seeding completed successfully!")
	return res, nil
}

// ClearAll removes every like, follow, post and user.
func (s *Seeder) ClearAll(ctx context.Context) error {
	log.Println("🗑️  Clearing existing data...")
	db := s.db.WithContext(ctx)
	if db.Dialector.Name() == "postgres" {
		return db.Exec(`TRUNCATE TABLE likes, follows, posts, users RESTART IDENTITY CASCADE`).Error
	}

	db = db.Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, model := range []any{&models.Like{}, &models.Follow{}, &models.Post{}, &models.User{}} {
		if err := db.Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

// SeedUsers creates n users sharing DefaultPassword.
func (s *Seeder) SeedUsers(ctx context.Context, n int) ([]*models.User, error) {
	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		users = append(users, s.factory.BuildUser())
	}
	if err := s.factory.CreateUsersBatch(ctx, users); err != nil {
		return nil, err
	}
	return users, nil
}

// SeedPosts gives every user between MinPostsPerUser and MaxPostsPerUser posts.
func (s *Seeder) SeedPosts(ctx context.Context, users []*models.User) ([]*models.Post, error) {
	var posts []*models.Post
	for _, u := range users {
		n := s.factory.between(s.opts.MinPostsPerUser, s.opts.MaxPostsPerUser)
		for j := 0; j < n; j++ {
			posts = append(posts, s.factory.BuildPost(u))
		}
	}
	if err := s.factory.CreatePostsBatch(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// SeedLikes makes every user like between 1 and MaxLikesPerUser distinct posts.
func (s *Seeder) SeedLikes(ctx context.Context, users []*models.User, posts []*models.Post) (int, error) {
	if len(posts) == 0 || s.opts.MaxLikesPerUser <= 0 {
		return 0, nil
	}
	var likes []*models.Like
	for _, u := range users {
		k := s.factory.between(1, min(s.opts.MaxLikesPerUser, len(posts)))
		for _, i := range s.factory.sample(len(posts), k) {
			likes = append(likes, &models.Like{UserID: u.ID, PostID: posts[i].ID})
		}
	}
	if err := s.factory.CreateLikesBatch(ctx, likes); err != nil {
		return 0, err
	}
	return len(likes), nil
}

// SeedFollows gives every user between 1 and MaxFollowersPerUser distinct followers.
func (s *Seeder) SeedFollows(ctx context.Context, users []*models.User) (int, error) {
	if len(users) < 2 || s.opts.MaxFollowersPerUser <= 0 {
		return 0, nil
	}
	var follows []*models.Follow
	for idx, followed := range users {
		k := s.factory.between(1, min(s.opts.MaxFollowersPerUser, len(users)-1))
		// Sample from everyone but followed by shifting indexes past it.
		for _, i := range s.factory.sample(len(users)-1, k) {
			if i >= idx {
				i++
			}
			follows = append(follows, &models.Follow{FollowerID: users[i].ID, FollowedID: followed.ID})
		}
	}
	if err := s.factory.CreateFollowsBatch(ctx, follows); err != nil {
		return 0, err
	}
	return len(follows), nil
}
