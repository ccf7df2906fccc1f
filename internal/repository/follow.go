package repository

import (
	"context"
	"fmt"
	"strings"

	"chirp/internal/models"
	"chirp/internal/observability"

	"gorm.io/gorm"
)

// FollowRepository stores the directed follow graph.
type FollowRepository interface {
	Exists(ctx context.Context, followerID, followedID uint) (bool, error)
	Create(ctx context.Context, follow *models.Follow) error
	Delete(ctx context.Context, followerID, followedID uint) (bool, error)
	CountFollowers(ctx context.Context, userID uint) (int64, error)
	CountFollowed(ctx context.Context, userID uint) (int64, error)
	FollowedIDs(ctx context.Context, userID uint) ([]uint, error)
	ListFollowers(ctx context.Context, userID uint, search string, limit, offset int) ([]models.FollowerEntry, int64, error)
	ListFollowed(ctx context.Context, userID uint, search string, limit, offset int) ([]models.FollowedEntry, int64, error)
}

type followRepository struct {
	db *gorm.DB
}

// NewFollowRepository returns a new FollowRepository implementation.
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db}
}

func (r *followRepository) Exists(ctx context.Context, followerID, followedID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check follow: %w", err)
	}
	return n > 0, nil
}

// Create inserts the edge. A concurrent duplicate yields ErrDuplicate.
func (r *followRepository) Create(ctx context.Context, follow *models.Follow) error {
	if err := r.db.WithContext(ctx).Create(follow).Error; err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create follow: %w", err)
	}
	return nil
}

// Delete removes the edge and reports whether one existed.
func (r *followRepository) Delete(ctx context.Context, followerID, followedID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Delete(&models.Follow{})
	if res.Error != nil {
		return false, fmt.Errorf("delete follow: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *followRepository) CountFollowers(ctx context.Context, userID uint) (int64, error) {
	defer observability.TrackQuery("count", "follows")()
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).Where("followed_id = ?", userID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count followers: %w", err)
	}
	return n, nil
}

func (r *followRepository) CountFollowed(ctx context.Context, userID uint) (int64, error) {
	defer observability.TrackQuery("count", "follows")()
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).Where("follower_id = ?", userID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count followed: %w", err)
	}
	return n, nil
}

func (r *followRepository) FollowedIDs(ctx context.Context, userID uint) ([]uint, error) {
	defer observability.TrackQuery("select", "follows")()
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Pluck("followed_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("followed ids: %w", err)
	}
	return ids, nil
}

func (r *followRepository) ListFollowers(ctx context.Context, userID uint, search string, limit, offset int) ([]models.FollowerEntry, int64, error) {
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Table("follows").
			Joins("JOIN users ON users.id = follows.follower_id").
			Where("follows.followed_id = ?", userID)
		if strings.TrimSpace(search) != "" {
			q = q.Where("LOWER(users.username) LIKE ?", likePattern(search))
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count followers: %w", err)
	}

	out := make([]models.FollowerEntry, 0)
	err := base().
		Select("follows.id AS id, users.username AS follower_username, follows.created_at AS created_at").
		Order("follows.created_at DESC, follows.id DESC").
		Limit(limit).Offset(offset).
		Scan(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list followers: %w", err)
	}
	return out, total, nil
}

func (r *followRepository) ListFollowed(ctx context.Context, userID uint, search string, limit, offset int) ([]models.FollowedEntry, int64, error) {
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Table("follows").
			Joins("JOIN users ON users.id = follows.followed_id").
			Where("follows.follower_id = ?", userID)
		if strings.TrimSpace(search) != "" {
			q = q.Where("LOWER(users.username) LIKE ?", likePattern(search))
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count followed: %w", err)
	}

	out := make([]models.FollowedEntry, 0)
	err := base().
		Select("follows.id AS id, users.username AS followed_username, follows.created_at AS created_at").
		Order("follows.created_at DESC, follows.id DESC").
		Limit(limit).Offset(offset).
		Scan(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list followed: %w", err)
	}
	return out, total, nil
}
