package service

import (
	"context"
	"errors"
	"log/slog"

	"chirp/internal/cache"
	"chirp/internal/featureflags"
	"chirp/internal/middleware"
	"chirp/internal/models"
	"chirp/internal/notifications"
	"chirp/internal/observability"
	"chirp/internal/repository"
	"chirp/internal/worker"
)

type FollowService struct {
	users    repository.UserRepository
	follows  repository.FollowRepository
	counts   *cache.CountCache
	jobs     worker.Dispatcher
	realtime realtime
}

func NewFollowService(
	users repository.UserRepository,
	follows repository.FollowRepository,
	counts *cache.CountCache,
	jobs worker.Dispatcher,
	publisher EventPublisher,
	flags *featureflags.Manager,
) *FollowService {
	return &FollowService{
		users:    users,
		follows:  follows,
		counts:   counts,
		jobs:     jobs,
		realtime: realtime{publisher: publisher, flags: flags},
	}
}

// Toggle removes the caller's follow edge to targetID if it exists and creates it otherwise.
// It reports whether the caller follows targetID afterwards.
func (s *FollowService) Toggle(ctx context.Context, callerID, targetID uint) (bool, error) {
	if targetID == 0 {
		return false, models.NewFieldValidationError("followed", "User to follow not provided.")
	}
	if targetID == callerID {
		return false, models.NewFieldValidationError("followed", "You cannot follow yourself.")
	}

	users, err := s.users.GetByIDs(ctx, []uint{callerID, targetID})
	if err != nil {
		return false, err
	}
	if users[targetID] == nil {
		return false, models.NewNotFoundError("User not found.", nil)
	}

	removed, err := s.follows.Delete(ctx, callerID, targetID)
	if err != nil {
		return false, models.NewInternalError(err)
	}

	following := !removed
	if following {
		err := s.follows.Create(ctx, &models.Follow{FollowerID: callerID, FollowedID: targetID})
		if err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return false, models.NewInternalError(err)
		}
	}

	invalidate(ctx, s.counts, cache.FollowersKey(targetID), cache.FollowedKey(callerID))
	jobs := []worker.Job{
		worker.RefreshFollowersCount(targetID),
		worker.RefreshFollowedCount(callerID),
	}

	if following {
		observability.SocialToggles.WithLabelValues("follow", "created").Inc()
		jobs = append(jobs, worker.SendFollowEmail(targetID, callerID))
		ev := notifications.Event{Type: notifications.EventFollow, ActorID: callerID}
		if caller := users[callerID]; caller != nil {
			ev.Actor = caller.Username
		}
		s.realtime.publish(ctx, targetID, ev)
	} else {
		observability.SocialToggles.WithLabelValues("follow", "removed").Inc()
		middleware.Logger.InfoContext(ctx, "Unfollowed successfully.",
			slog.Uint64("follower_id", uint64(callerID)),
			slog.Uint64("followed_id", uint64(targetID)),
		)
	}
	worker.Submit(ctx, s.jobs, jobs...)

	return following, nil
}

// Followers lists accounts following callerID, newest edge first.
func (s *FollowService) Followers(ctx context.Context, callerID uint, search string, page PageRequest) (*models.Page[models.FollowerEntry], error) {
	page = page.normalized()
	rows, total, err := s.follows.ListFollowers(ctx, callerID, search, page.Limit(), page.Offset())
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if rows == nil {
		rows = []models.FollowerEntry{}
	}
	return &models.Page[models.FollowerEntry]{Count: total, Page: page.Page, PageSize: page.PageSize, Results: rows}, nil
}

// Followed lists accounts callerID follows, newest edge first.
func (s *FollowService) Followed(ctx context.Context, callerID uint, search string, page PageRequest) (*models.Page[models.FollowedEntry], error) {
	page = page.normalized()
	rows, total, err := s.follows.ListFollowed(ctx, callerID, search, page.Limit(), page.Offset())
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if rows == nil {
		rows = []models.FollowedEntry{}
	}
	return &models.Page[models.FollowedEntry]{Count: total, Page: page.Page, PageSize: page.PageSize, Results: rows}, nil
}
