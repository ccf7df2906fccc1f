// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"chirp/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password every seeded account logs in with.
const DefaultPassword = "password123"

// Factory builds domain entities and persists them to the database in batches.
type Factory struct {
	db    *gorm.DB
	opts  Options
	faker *gofakeit.Faker
	rng   *rand.Rand

	passwordHash string
	usernames    map[string]struct{}
	// synthetic ID counter when running in DryRun mode
	nextID uint
}

// NewFactory creates a Factory bound to db. The password hash is computed once
// and shared by every generated user.
func NewFactory(db *gorm.DB, opts Options) (*Factory, error) {
	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	return &Factory{
		db:           db,
		opts:         opts,
		faker:        gofakeit.New(seed),
		rng:          rand.New(rand.NewSource(seed)), // #nosec G404: acceptable for seeding
		passwordHash: string(hash),
		usernames:    make(map[string]struct{}),
		nextID:       1000,
	}, nil
}

// BuildUser returns an unsaved user with a username unique within this factory.
func (f *Factory) BuildUser(overrides ...func(*models.User)) *models.User {
	username := f.uniqueUsername()
	user := &models.User{
		Username: username,
		Email:    strings.ToLower(username) + "@" + f.faker.DomainName(),
		Password: f.passwordHash,
	}
	for _, override := range overrides {
		override(user)
	}
	return user
}

func (f *Factory) uniqueUsername() string {
	base := strings.ToLower(f.faker.Username())
	if len(base) > 140 {
		base = base[:140]
	}
	name := base
	for i := 1; ; i++ {
		if _, taken := f.usernames[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s%d", base, i)
	}
	f.usernames[name] = struct{}{}
	return name
}

// BuildPost returns an unsaved post by user with a created_at spread over MaxDays.
func (f *Factory) BuildPost(user *models.User, overrides ...func(*models.Post)) *models.Post {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	back := time.Duration(f.rng.Intn(maxDays))*24*time.Hour +
		time.Duration(f.rng.Intn(24))*time.Hour +
		time.Duration(f.rng.Intn(60))*time.Minute

	post := &models.Post{
		UserID:    user.ID,
		Title:     truncate(f.faker.Sentence(f.rng.Intn(6)+3), models.PostTitleMaxLen),
		Content:   truncate(f.faker.Paragraph(1, f.rng.Intn(3)+1, 8, " "), models.PostContentMaxLen),
		CreatedAt: time.Now().Add(-back),
	}
	post.UpdatedAt = post.CreatedAt
	for _, override := range overrides {
		override(post)
	}
	return post
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max]))
}

func (f *Factory) batchSize() int {
	if f.opts.BatchSize > 0 {
		return f.opts.BatchSize
	}
	return 500
}

// CreateUsersBatch persists users, filling in their IDs.
func (f *Factory) CreateUsersBatch(ctx context.Context, users []*models.User) error {
	if len(users) == 0 {
		return nil
	}
	if f.opts.DryRun {
		for _, u := range users {
			f.nextID++
			u.ID = f.nextID
		}
		log.Printf("[dry-run] CreateUsersBatch: %d users (no DB write)", len(users))
		return nil
	}
	return f.db.WithContext(ctx).CreateInBatches(users, f.batchSize()).Error
}

// CreatePostsBatch persists posts, filling in their IDs.
func (f *Factory) CreatePostsBatch(ctx context.Context, posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	if f.opts.DryRun {
		for _, p := range posts {
			f.nextID++
			p.ID = f.nextID
		}
		log.Printf("[dry-run] CreatePostsBatch: %d posts (no DB write)", len(posts))
		return nil
	}
	return f.db.WithContext(ctx).CreateInBatches(posts, f.batchSize()).Error
}

// CreateLikesBatch persists likes.
func (f *Factory) CreateLikesBatch(ctx context.Context, likes []*models.Like) error {
	if len(likes) == 0 || f.opts.DryRun {
		return nil
	}
	return f.db.WithContext(ctx).CreateInBatches(likes, f.batchSize()).Error
}

// CreateFollowsBatch persists follow edges.
func (f *Factory) CreateFollowsBatch(ctx context.Context, follows []*models.Follow) error {
	if len(follows) == 0 || f.opts.DryRun {
		return nil
	}
	return f.db.WithContext(ctx).CreateInBatches(follows, f.batchSize()).Error
}

// sample returns k distinct indexes from [0, n).
func (f *Factory) sample(n, k int) []int {
	if k > n {
		k = n
	}
	return f.rng.Perm(n)[:k]
}

// between returns a uniform int in [lo, hi].
func (f *Factory) between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + f.rng.Intn(hi-lo+1)
}
