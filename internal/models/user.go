// Package models contains data structures for the application's domain models.
package models

import "time"

// User is an account that can post, like and follow.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Username   string    `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email      string    `gorm:"size:254;not null" json:"email"`
	Password   string    `gorm:"not null" json:"-"`
	DateJoined time.Time `gorm:"column:created_at;autoCreateTime" json:"date_joined"`
	UpdatedAt  time.Time `json:"-"`
}

// UserProfile is the public representation of an account with its graph counts.
type UserProfile struct {
	ID             uint      `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	DateJoined     time.Time `json:"date_joined"`
	FollowersCount int64     `json:"followers_count"`
	FollowedCount  int64     `json:"followed_count"`
}

// ToProfile copies the public fields of u into a profile without counts.
func (u *User) ToProfile() UserProfile {
	return UserProfile{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		DateJoined: u.DateJoined,
	}
}
