package models

import "time"

// Post limits enforced at the input boundary.
const (
	PostTitleMaxLen   = 255
	PostContentMaxLen = 500
)

// Post is a short message owned by a user. Deleted posts stay in storage
// with IsDeleted set and are excluded from every listing.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Image     string    `gorm:"size:255" json:"image"`
	IsDeleted bool      `gorm:"column:deleted_post;not null;default:false;index" json:"-"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostResponse is returned by create, update and retrieve.
type PostResponse struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Image     *string   `json:"image"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FeedPost is one row of the feed annotated with its like count.
type FeedPost struct {
	ID         uint      `json:"id"`
	User       string    `json:"user"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Image      *string   `json:"image"`
	CreatedAt  time.Time `json:"created_at"`
	LikesCount int64     `json:"likes_count"`
}

// ToResponse converts a post to its API shape. mediaURL prefixes the stored image path.
func (p *Post) ToResponse(mediaURL string) PostResponse {
	return PostResponse{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		Image:     imageURL(mediaURL, p.Image),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// ToFeedPost converts a post with a preloaded owner into a feed row.
func (p *Post) ToFeedPost(mediaURL string, likes int64) FeedPost {
	return FeedPost{
		ID:         p.ID,
		User:       p.User.Username,
		Title:      p.Title,
		Content:    p.Content,
		Image:      imageURL(mediaURL, p.Image),
		CreatedAt:  p.CreatedAt,
		LikesCount: likes,
	}
}

func imageURL(prefix, path string) *string {
	if path == "" {
		return nil
	}
	u := prefix + path
	return &u
}
