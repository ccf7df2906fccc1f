package models

import "time"

// Like is a user's like on a post.
// The combination of UserID and PostID is unique in storage.
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_likes_user_post" json:"user_id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_likes_user_post;index" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Post Post `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
}

// LikeResponse is returned when a like is created.
type LikeResponse struct {
	User      uint      `json:"user"`
	Post      uint      `json:"post"`
	CreatedAt time.Time `json:"created_at"`
}

func (l *Like) ToResponse() LikeResponse {
	return LikeResponse{User: l.UserID, Post: l.PostID, CreatedAt: l.CreatedAt}
}
