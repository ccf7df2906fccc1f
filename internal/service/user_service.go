package service

import (
	"context"

	"chirp/internal/cache"
	"chirp/internal/models"
	"chirp/internal/repository"
)

type UserService struct {
	users   repository.UserRepository
	follows repository.FollowRepository
	counts  *cache.CountCache
}

func NewUserService(users repository.UserRepository, follows repository.FollowRepository, counts *cache.CountCache) *UserService {
	return &UserService{users: users, follows: follows, counts: counts}
}

// Profile returns the account with follower and followed counts read through the cache.
func (s *UserService) Profile(ctx context.Context, userID uint) (*models.UserProfile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.withCounts(ctx, user)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// List pages through every account except callerID, ordered by id.
func (s *UserService) List(ctx context.Context, callerID uint, search string, page PageRequest) (*models.Page[models.UserProfile], error) {
	page = page.normalized()
	users, total, err := s.users.List(ctx, callerID, search, page.Limit(), page.Offset())
	if err != nil {
		return nil, err
	}

	results := make([]models.UserProfile, 0, len(users))
	for i := range users {
		profile, err := s.withCounts(ctx, &users[i])
		if err != nil {
			return nil, err
		}
		results = append(results, profile)
	}
	return &models.Page[models.UserProfile]{
		Count:    total,
		Page:     page.Page,
		PageSize: page.PageSize,
		Results:  results,
	}, nil
}

func (s *UserService) FollowersCount(ctx context.Context, userID uint) (int64, error) {
	return s.counts.Get(ctx, cache.FollowersKey(userID), func(ctx context.Context) (int64, error) {
		return s.follows.CountFollowers(ctx, userID)
	})
}

func (s *UserService) FollowedCount(ctx context.Context, userID uint) (int64, error) {
	return s.counts.Get(ctx, cache.FollowedKey(userID), func(ctx context.Context) (int64, error) {
		return s.follows.CountFollowed(ctx, userID)
	})
}

func (s *UserService) withCounts(ctx context.Context, user *models.User) (models.UserProfile, error) {
	profile := user.ToProfile()
	followers, err := s.FollowersCount(ctx, user.ID)
	if err != nil {
		return profile, models.NewInternalError(err)
	}
	followed, err := s.FollowedCount(ctx, user.ID)
	if err != nil {
		return profile, models.NewInternalError(err)
	}
	profile.FollowersCount = followers
	profile.FollowedCount = followed
	return profile, nil
}
