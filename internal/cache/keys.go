package cache

import (
	"fmt"
	"strings"
	"time"
)

// CountTTL is how long a cached count lives before it is recomputed.
const CountTTL = 15 * time.Minute

const (
	followersKeyFmt = "followers:%d"
	followedKeyFmt  = "followed:%d"
	likesKeyFmt     = "likes:%d"
)

// FollowersKey caches how many accounts follow userID.
func FollowersKey(userID uint) string {
	return fmt.Sprintf(followersKeyFmt, userID)
}

// FollowedKey caches how many accounts userID follows.
func FollowedKey(userID uint) string {
	return fmt.Sprintf(followedKeyFmt, userID)
}

// LikesKey caches the like count of postID.
func LikesKey(postID uint) string {
	return fmt.Sprintf(likesKeyFmt, postID)
}

// family returns the key prefix, used as a metric label.
func family(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "other"
}
