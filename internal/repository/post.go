package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chirp/internal/models"
	"chirp/internal/observability"

	"gorm.io/gorm"
)

// PostRepository defines the interface for post data operations.
// Every read excludes soft-deleted posts.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetActiveByID(ctx context.Context, id uint) (*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	SoftDelete(ctx context.Context, id uint) error
	Feed(ctx context.Context, authorIDs []uint, search string, limit, offset int) ([]models.Post, int64, error)
	ActiveIDsByAuthors(ctx context.Context, authorIDs []uint) ([]uint, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Post{}).Where("posts.deleted_post = ?", false)
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return models.NewInternalError(fmt.Errorf("create post: %w", err))
	}
	return nil
}

func (r *postRepository) GetActiveByID(ctx context.Context, id uint) (*models.Post, error) {
	defer observability.TrackQuery("select", "posts")()
	var post models.Post
	if err := r.active(ctx).Where("posts.id = ?", id).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post not found", nil)
		}
		return nil, models.NewInternalError(err)
	}
	return &post, nil
}

// Update writes the editable columns only; the owner never changes.
func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	err := r.db.WithContext(ctx).Model(post).
		Select("title", "content", "image", "updated_at").
		Updates(post).Error
	if err != nil {
		return models.NewInternalError(fmt.Errorf("update post: %w", err))
	}
	return nil
}

func (r *postRepository) SoftDelete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ? AND deleted_post = ?", id, false).
		Update("deleted_post", true)
	if res.Error != nil {
		return models.NewInternalError(fmt.Errorf("delete post: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post not found", nil)
	}
	return nil
}

// Feed lists active posts by the given authors, newest first. search matches
// title, content or the author's username, case-insensitively.
func (r *postRepository) Feed(ctx context.Context, authorIDs []uint, search string, limit, offset int) ([]models.Post, int64, error) {
	defer observability.TrackQuery("select", "posts")()
	if len(authorIDs) == 0 {
		return []models.Post{}, 0, nil
	}

	base := func() *gorm.DB {
		q := r.active(ctx).
			Joins("JOIN users ON users.id = posts.user_id").
			Where("posts.user_id IN ?", authorIDs)
		if strings.TrimSpace(search) != "" {
			p := likePattern(search)
			q = q.Where("LOWER(posts.title) LIKE ? OR LOWER(posts.content) LIKE ? OR LOWER(users.username) LIKE ?", p, p, p)
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(fmt.Errorf("count feed: %w", err))
	}

	posts := make([]models.Post, 0)
	err := base().
		Select("posts.*").
		Preload("User").
		Order("posts.created_at DESC, posts.id DESC").
		Limit(limit).Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, 0, models.NewInternalError(fmt.Errorf("load feed: %w", err))
	}
	return posts, total, nil
}

func (r *postRepository) ActiveIDsByAuthors(ctx context.Context, authorIDs []uint) ([]uint, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}
	var ids []uint
	if err := r.active(ctx).Where("posts.user_id IN ?", authorIDs).Pluck("posts.id", &ids).Error; err != nil {
		return nil, fmt.Errorf("active post ids: %w", err)
	}
	return ids, nil
}
