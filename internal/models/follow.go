package models

import "time"

// Follow is a directed edge: Follower follows Followed.
type Follow struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FollowerID uint      `gorm:"not null;uniqueIndex:idx_follows_pair;check:chk_follows_not_self,follower_id <> followed_id" json:"follower_id"`
	FollowedID uint      `gorm:"not null;uniqueIndex:idx_follows_pair;index" json:"followed_id"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`

	Follower User `gorm:"foreignKey:FollowerID;constraint:OnDelete:CASCADE" json:"-"`
	Followed User `gorm:"foreignKey:FollowedID;constraint:OnDelete:CASCADE" json:"-"`
}

// FollowedEntry is one row of the caller's "following" listing.
type FollowedEntry struct {
	ID               uint      `json:"id"`
	FollowedUsername string    `json:"followed_username"`
	CreatedAt        time.Time `json:"created_at"`
}

// FollowerEntry is one row of the caller's "followers" listing.
type FollowerEntry struct {
	ID               uint      `json:"id"`
	FollowerUsername string    `json:"follower_username"`
	CreatedAt        time.Time `json:"created_at"`
}
