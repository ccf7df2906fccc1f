package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"chirp/internal/models"
	"chirp/internal/service"

	"github.com/gofiber/fiber/v2"
)

type postRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// parsePostInput reads title, content and an optional image from a JSON,
// multipart or urlencoded body. Fields that are absent stay nil.
func (s *Server) parsePostInput(c *fiber.Ctx) (service.PostInput, error) {
	var in service.PostInput
	contentType := strings.ToLower(string(c.Request().Header.ContentType()))

	switch {
	case strings.HasPrefix(contentType, fiber.MIMEApplicationJSON):
		var req postRequest
		if err := c.BodyParser(&req); err != nil {
			return in, models.NewValidationError("Invalid request body")
		}
		in.Title, in.Content = req.Title, req.Content

	case strings.HasPrefix(contentType, fiber.MIMEMultipartForm):
		form, err := c.MultipartForm()
		if err != nil {
			return in, models.NewValidationError("Invalid request body")
		}
		in.Title = formValue(form.Value, "title")
		in.Content = formValue(form.Value, "content")
		if files := form.File["image"]; len(files) > 0 {
			content, err := s.readUpload(files[0])
			if err != nil {
				return in, err
			}
			in.Image = content
		}

	default:
		args := c.Request().PostArgs()
		if args.Has("title") {
			v := string(args.Peek("title"))
			in.Title = &v
		}
		if args.Has("content") {
			v := string(args.Peek("content"))
			in.Content = &v
		}
	}
	return in, nil
}

func formValue(values map[string][]string, key string) *string {
	vs, ok := values[key]
	if !ok || len(vs) == 0 {
		return nil
	}
	return &vs[0]
}

// readUpload reads at most one byte past the configured limit so the size
// check can still reject oversized files without buffering them whole.
func (s *Server) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, models.NewFieldValidationError("image", "The submitted data was not a file.")
	}
	defer func() { _ = f.Close() }()

	content, err := io.ReadAll(io.LimitReader(f, s.imageService.MaxUploadSizeBytes()+1))
	if err != nil {
		return nil, models.NewInternalError(fmt.Errorf("read upload: %w", err))
	}
	if len(content) == 0 {
		return nil, models.NewFieldValidationError("image", "The submitted file is empty.")
	}
	return content, nil
}

// CreatePost handles POST /api/posts/create
// @Summary Create post
// @Description Create a post with an optional image
// @Tags posts
// @Accept json,mpfd
// @Produce json
// @Param title formData string true "Title"
// @Param content formData string true "Content"
// @Param image formData file false "Image"
// @Success 201 {object} models.PostResponse
// @Failure 400 {object} models.ErrorResponse
// @Security CookieAuth
// @Router /posts/create [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	in, err := s.parsePostInput(c)
	if err != nil {
		return mapServiceError(c, err)
	}

	post, err := s.postService.Create(c.UserContext(), userID(c), in)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// RetrievePost handles GET /api/posts/:id
// @Summary Get post
// @Description Get one of the caller's posts
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} models.PostResponse
// @Failure 404 {object} models.ErrorResponse
// @Security CookieAuth
// @Router /posts/{id} [get]
func (s *Server) RetrievePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.postService.Retrieve(c.UserContext(), userID(c), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(post)
}

// UpdatePost handles PUT and PATCH /api/posts/update/:id
// @Summary Update post
// @Description Partially update one of the caller's posts
// @Tags posts
// @Accept json,mpfd
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} models.PostResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security CookieAuth
// @Router /posts/update/{id} [put]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	in, err := s.parsePostInput(c)
	if err != nil {
		return mapServiceError(c, err)
	}

	post, err := s.postService.Update(c.UserContext(), userID(c), id, in)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/delete/:id
// @Summary Delete post
// @Description Soft-delete one of the caller's posts
// @Tags posts
// @Param id path int true "Post ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security CookieAuth
// @Router /posts/delete/{id} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.postService.Delete(c.UserContext(), userID(c), id); err != nil {
		return mapServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Feed handles GET /api/posts/feed
// @Summary Feed
// @Description Posts of followed accounts, newest first
// @Tags posts
// @Produce json
// @Param search query string false "Search title, content and author"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} models.Page[models.FeedPost]
// @Security CookieAuth
// @Router /posts/feed [get]
func (s *Server) Feed(c *fiber.Ctx) error {
	page, err := s.postService.Feed(c.UserContext(), userID(c), c.Query("search"), parsePagination(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(page)
}

// ToggleLike handles POST /api/posts/like
// @Summary Like or unlike
// @Description Toggle the caller's like on a post
// @Tags posts
// @Accept json,mpfd
// @Produce json
// @Param post formData int true "Post ID"
// @Success 200 {object} object{detail=string}
// @Success 201 {object} models.LikeResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security CookieAuth
// @Router /posts/like [post]
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	postID, err := idField(c, "post")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewFieldValidationError("post", "Invalid post"))
	}

	like, err := s.postService.ToggleLike(c.UserContext(), userID(c), postID)
	if err != nil {
		return mapServiceError(c, err)
	}
	if like == nil {
		return c.JSON(fiber.Map{"detail": "Like removed successfully."})
	}
	return c.Status(fiber.StatusCreated).JSON(like)
}
