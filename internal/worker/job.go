// Package worker runs background jobs: count refreshes and follow notification email.
package worker

import (
	"errors"
	"fmt"
	"time"
)

// Job types.
const (
	TypeRefreshFollowersCount = "refresh_followers_count"
	TypeRefreshFollowedCount  = "refresh_followed_count"
	TypeRefreshLikesForUser   = "refresh_likes_for_user"
	TypeSendFollowEmail       = "send_follow_email"
)

// ErrPermanent marks failures that retrying cannot fix.
var ErrPermanent = errors.New("permanent job failure")

// Job is the queued unit of work. Args carry entity ids only.
type Job struct {
	Type       string          `json:"type"`
	Args       map[string]uint `json:"args"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Attempt    int             `json:"attempt"`
}

// RefreshFollowersCount recomputes followers:<userID>.
func RefreshFollowersCount(userID uint) Job {
	return Job{Type: TypeRefreshFollowersCount, Args: map[string]uint{"user_id": userID}}
}

// RefreshFollowedCount recomputes followed:<userID>.
func RefreshFollowedCount(userID uint) Job {
	return Job{Type: TypeRefreshFollowedCount, Args: map[string]uint{"user_id": userID}}
}

// RefreshLikesForUser recomputes likes:<p> for every active post by accounts
// userID follows, plus postID when non-zero.
func RefreshLikesForUser(userID, postID uint) Job {
	args := map[string]uint{"user_id": userID}
	if postID != 0 {
		args["post_id"] = postID
	}
	return Job{Type: TypeRefreshLikesForUser, Args: args}
}

// SendFollowEmail tells followedID that followerID started following them.
func SendFollowEmail(followedID, followerID uint) Job {
	return Job{Type: TypeSendFollowEmail, Args: map[string]uint{
		"followed_id": followedID,
		"follower_id": followerID,
	}}
}

// Arg returns a required id argument.
func (j Job) Arg(name string) (uint, error) {
	v, ok := j.Args[name]
	if !ok || v == 0 {
		return 0, permanent(fmt.Errorf("%s: missing argument %q", j.Type, name))
	}
	return v, nil
}

func permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}
