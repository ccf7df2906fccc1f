package worker

import (
	"context"
	"fmt"
	"log/slog"

	"chirp/internal/cache"
	"chirp/internal/featureflags"
	"chirp/internal/middleware"
	"chirp/internal/models"
	"chirp/internal/notifications"
	"chirp/internal/observability"
	"chirp/internal/repository"

	"golang.org/x/time/rate"
)

// Handlers holds the dependencies of the built-in job handlers.
type Handlers struct {
	Users   repository.UserRepository
	Follows repository.FollowRepository
	Posts   repository.PostRepository
	Likes   repository.LikeRepository
	Counts  *cache.CountCache
	Mailer  notifications.Mailer
	Flags   *featureflags.Manager
	// MailLimiter throttles outgoing email. Nil means unthrottled.
	MailLimiter *rate.Limiter
}

// NewMailLimiter allows perSecond messages with a burst of one.
func NewMailLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Register wires every handler into p.
func (h *Handlers) Register(p *Processor) {
	p.Handle(TypeRefreshFollowersCount, h.refreshFollowersCount)
	p.Handle(TypeRefreshFollowedCount, h.refreshFollowedCount)
	p.Handle(TypeRefreshLikesForUser, h.refreshLikesForUser)
	p.Handle(TypeSendFollowEmail, h.sendFollowEmail)
}

func (h *Handlers) refreshFollowersCount(ctx context.Context, job Job) error {
	userID, err := job.Arg("user_id")
	if err != nil {
		return err
	}
	n, err := h.Follows.CountFollowers(ctx, userID)
	if err != nil {
		return err
	}
	return h.Counts.Set(ctx, cache.FollowersKey(userID), n)
}

func (h *Handlers) refreshFollowedCount(ctx context.Context, job Job) error {
	userID, err := job.Arg("user_id")
	if err != nil {
		return err
	}
	n, err := h.Follows.CountFollowed(ctx, userID)
	if err != nil {
		return err
	}
	return h.Counts.Set(ctx, cache.FollowedKey(userID), n)
}

func (h *Handlers) refreshLikesForUser(ctx context.Context, job Job) error {
	userID, err := job.Arg("user_id")
	if err != nil {
		return err
	}

	followed, err := h.Follows.FollowedIDs(ctx, userID)
	if err != nil {
		return err
	}
	postIDs, err := h.Posts.ActiveIDsByAuthors(ctx, followed)
	if err != nil {
		return err
	}
	if postID := job.Args["post_id"]; postID != 0 && !containsID(postIDs, postID) {
		postIDs = append(postIDs, postID)
	}
	if len(postIDs) == 0 {
		return nil
	}

	counts, err := h.Likes.CountByPosts(ctx, postIDs)
	if err != nil {
		return err
	}
	for _, id := range postIDs {
		if err := h.Counts.Set(ctx, cache.LikesKey(id), counts[id]); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handlers) sendFollowEmail(ctx context.Context, job Job) error {
	followedID, err := job.Arg("followed_id")
	if err != nil {
		return err
	}
	followerID, err := job.Arg("follower_id")
	if err != nil {
		return err
	}
	if h.Flags != nil && !h.Flags.Enabled(featureflags.FollowEmail, followedID) {
		return nil
	}

	users, err := h.Users.GetByIDs(ctx, []uint{followedID, followerID})
	if err != nil {
		return err
	}
	followed, follower := users[followedID], users[followerID]
	if followed == nil || follower == nil {
		middleware.Logger.WarnContext(ctx, "follow email dropped: user no longer exists",
			slog.Uint64("followed_id", uint64(followedID)),
			slog.Uint64("follower_id", uint64(followerID)),
		)
		return nil
	}

	if h.MailLimiter != nil {
		if err := h.MailLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("mail limiter: %w", err)
		}
	}

	if err := h.Mailer.Send(ctx, FollowEmail(followed, follower)); err != nil {
		observability.EmailsSent.WithLabelValues("failure").Inc()
		return err
	}
	observability.EmailsSent.WithLabelValues("success").Inc()
	return nil
}

// FollowEmail builds the message telling followed about a new follower.
func FollowEmail(followed, follower *models.User) notifications.Message {
	return notifications.Message{
		To:      followed.Email,
		Subject: fmt.Sprintf("%s started following you!", follower.Username),
		Body:    fmt.Sprintf("Hello %s,\n\n%s started following you!!", followed.Username, follower.Username),
	}
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
