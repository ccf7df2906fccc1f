package server

import (
	"chirp/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ToggleFollow handles POST /api/user/follow
// @Summary Follow or unfollow
// @Description Toggle the caller's follow edge to another account
// @Tags users
// @Accept json,mpfd
// @Produce json
// @Param followed formData int true "Account to follow"
// @Success 201 {object} object{detail=string}
// @Success 204
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security CookieAuth
// @Router /user/follow [post]
func (s *Server) ToggleFollow(c *fiber.Ctx) error {
	targetID, err := idField(c, "followed")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewFieldValidationError("followed", "Invalid user"))
	}

	following, err := s.followService.Toggle(c.UserContext(), userID(c), targetID)
	if err != nil {
		return mapServiceError(c, err)
	}
	if !following {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"detail": "Followed successfully."})
}

// GetFollowing handles GET /api/user/following
// @Summary Followed accounts
// @Tags users
// @Produce json
// @Param search query string false "Username filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} models.Page[models.FollowedEntry]
// @Security CookieAuth
// @Router /user/following [get]
func (s *Server) GetFollowing(c *fiber.Ctx) error {
	page, err := s.followService.Followed(c.UserContext(), userID(c), c.Query("search"), parsePagination(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(page)
}

// GetFollowers handles GET /api/user/followers
// @Summary Followers
// @Tags users
// @Produce json
// @Param search query string false "Username filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} models.Page[models.FollowerEntry]
// @Security CookieAuth
// @Router /user/followers [get]
func (s *Server) GetFollowers(c *fiber.Ctx) error {
	page, err := s.followService.Followers(c.UserContext(), userID(c), c.Query("search"), parsePagination(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(page)
}

// ListUsers handles GET /api/user/list
// @Summary List accounts
// @Description Every account except the caller, with follow counts
// @Tags users
// @Produce json
// @Param search query string false "Username or email filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} models.Page[models.UserProfile]
// @Security CookieAuth
// @Router /user/list [get]
func (s *Server) ListUsers(c *fiber.Ctx) error {
	page, err := s.userService.List(c.UserContext(), userID(c), c.Query("search"), parsePagination(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(page)
}

// GetProfile handles GET /api/user/profile
// @Summary Current profile
// @Tags users
// @Produce json
// @Success 200 {object} models.UserProfile
// @Security CookieAuth
// @Router /user/profile [get]
func (s *Server) GetProfile(c *fiber.Ctx) error {
	profile, err := s.userService.Profile(c.UserContext(), userID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(profile)
}
