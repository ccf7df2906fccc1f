package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"chirp/internal/cache"
	"chirp/internal/featureflags"
	"chirp/internal/models"
	"chirp/internal/notifications"
	"chirp/internal/observability"
	"chirp/internal/repository"
	"chirp/internal/worker"
)

// MediaURL prefixes stored image paths in responses.
const MediaURL = "/media/"

type PostService struct {
	posts    repository.PostRepository
	likes    repository.LikeRepository
	follows  repository.FollowRepository
	counts   *cache.CountCache
	images   *ImageService
	jobs     worker.Dispatcher
	realtime realtime
}

// PostInput carries create and update fields. Nil fields are left unchanged on update.
type PostInput struct {
	Title   *string
	Content *string
	Image   []byte
}

func NewPostService(
	posts repository.PostRepository,
	likes repository.LikeRepository,
	follows repository.FollowRepository,
	counts *cache.CountCache,
	images *ImageService,
	jobs worker.Dispatcher,
	publisher EventPublisher,
	flags *featureflags.Manager,
) *PostService {
	return &PostService{
		posts:    posts,
		likes:    likes,
		follows:  follows,
		counts:   counts,
		images:   images,
		jobs:     jobs,
		realtime: realtime{publisher: publisher, flags: flags},
	}
}

func (s *PostService) Create(ctx context.Context, userID uint, in PostInput) (*models.PostResponse, error) {
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return nil, models.NewFieldValidationError("title", "This field is required.")
	}
	if in.Content == nil || strings.TrimSpace(*in.Content) == "" {
		return nil, models.NewFieldValidationError("content", "This field is required.")
	}
	if err := validatePostFields(in); err != nil {
		return nil, err
	}

	post := &models.Post{UserID: userID, Title: *in.Title, Content: *in.Content}
	if len(in.Image) > 0 {
		path, err := s.images.Save(ctx, in.Image)
		if err != nil {
			return nil, err
		}
		post.Image = path
	}

	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	resp := post.ToResponse(MediaURL)
	return &resp, nil
}

func (s *PostService) Update(ctx context.Context, userID, postID uint, in PostInput) (*models.PostResponse, error) {
	post, err := s.posts.GetActiveByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, models.NewForbiddenError("You do not have permission to edit this post.")
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, models.NewFieldValidationError("title", "This field may not be blank.")
	}
	if in.Content != nil && strings.TrimSpace(*in.Content) == "" {
		return nil, models.NewFieldValidationError("content", "This field may not be blank.")
	}
	if err := validatePostFields(in); err != nil {
		return nil, err
	}

	if in.Title != nil {
		post.Title = *in.Title
	}
	if in.Content != nil {
		post.Content = *in.Content
	}
	if len(in.Image) > 0 {
		path, err := s.images.Save(ctx, in.Image)
		if err != nil {
			return nil, err
		}
		post.Image = path
	}

	if err := s.posts.Update(ctx, post); err != nil {
		return nil, err
	}
	resp := post.ToResponse(MediaURL)
	return &resp, nil
}

// Retrieve returns one of the caller's own active posts.
func (s *PostService) Retrieve(ctx context.Context, userID, postID uint) (*models.PostResponse, error) {
	post, err := s.posts.GetActiveByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, models.NewNotFoundError("Post not found", nil)
	}
	resp := post.ToResponse(MediaURL)
	return &resp, nil
}

// Delete soft-deletes the caller's post.
func (s *PostService) Delete(ctx context.Context, userID, postID uint) error {
	post, err := s.posts.GetActiveByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.UserID != userID {
		return models.NewForbiddenError("You do not have permission to delete this post.")
	}
	return s.posts.SoftDelete(ctx, post.ID)
}

// Feed lists active posts of accounts the caller follows, newest first, with cached like counts.
func (s *PostService) Feed(ctx context.Context, userID uint, search string, page PageRequest) (*models.Page[models.FeedPost], error) {
	page = page.normalized()
	out := &models.Page[models.FeedPost]{Page: page.Page, PageSize: page.PageSize, Results: []models.FeedPost{}}

	followed, err := s.follows.FollowedIDs(ctx, userID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(followed) == 0 {
		return out, nil
	}

	posts, total, err := s.posts.Feed(ctx, followed, search, page.Limit(), page.Offset())
	if err != nil {
		return nil, err
	}
	out.Count = total
	for i := range posts {
		likes, err := s.LikesCount(ctx, posts[i].ID)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		out.Results = append(out.Results, posts[i].ToFeedPost(MediaURL, likes))
	}
	return out, nil
}

// LikesCount reads likes:<postID> through the cache.
func (s *PostService) LikesCount(ctx context.Context, postID uint) (int64, error) {
	return s.counts.Get(ctx, cache.LikesKey(postID), func(ctx context.Context) (int64, error) {
		return s.likes.CountByPost(ctx, postID)
	})
}

// ToggleLike removes the caller's like on postID if present and adds it otherwise.
// The returned response is nil when the like was removed.
func (s *PostService) ToggleLike(ctx context.Context, userID, postID uint) (*models.LikeResponse, error) {
	if postID == 0 {
		return nil, models.NewFieldValidationError("post", "Invalid post")
	}
	post, err := s.posts.GetActiveByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	removed, err := s.likes.Delete(ctx, userID, postID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	var resp *models.LikeResponse
	if removed {
		observability.SocialToggles.WithLabelValues("like", "removed").Inc()
	} else {
		like := &models.Like{UserID: userID, PostID: postID}
		if err := s.likes.Create(ctx, like); err != nil {
			if !errors.Is(err, repository.ErrDuplicate) {
				return nil, models.NewInternalError(err)
			}
			like.CreatedAt = time.Now().UTC()
		}
		r := like.ToResponse()
		resp = &r
		observability.SocialToggles.WithLabelValues("like", "created").Inc()
		if post.UserID != userID {
			s.realtime.publish(ctx, post.UserID, notifications.Event{
				Type:    notifications.EventLike,
				ActorID: userID,
				PostID:  postID,
			})
		}
	}

	invalidate(ctx, s.counts, cache.LikesKey(postID))
	worker.Submit(ctx, s.jobs, worker.RefreshLikesForUser(userID, postID))
	return resp, nil
}

func validatePostFields(in PostInput) error {
	if in.Title != nil && utf8.RuneCountInString(*in.Title) > models.PostTitleMaxLen {
		return models.NewFieldValidationError("title", "Title cannot be longer than 255 characters.")
	}
	if in.Content != nil && utf8.RuneCountInString(*in.Content) > models.PostContentMaxLen {
		return models.NewFieldValidationError("content", "Content cannot be longer than 500 characters.")
	}
	return nil
}
