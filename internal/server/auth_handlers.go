package server

import (
	"errors"
	"log/slog"

	"chirp/internal/middleware"
	"chirp/internal/models"
	"chirp/internal/service"

	"github.com/gofiber/fiber/v2"
)

type registerRequest struct {
	Username  string `json:"username" form:"username"`
	Email     string `json:"email" form:"email"`
	Password  string `json:"password" form:"password"`
	Password2 string `json:"password2" form:"password2"`
}

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Register handles POST /api/auth/register
// @Summary Register
// @Description Create a new account
// @Tags auth
// @Accept json,mpfd
// @Produce json
// @Param request body registerRequest true "Registration"
// @Success 201 {object} object{user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	user, err := s.authService.Register(c.UserContext(), service.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Password2: req.Password2,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}

// Login handles POST /api/auth/login
// @Summary Log in
// @Description Authenticate and receive access and refresh cookies
// @Tags auth
// @Accept json,mpfd
// @Produce json
// @Param request body loginRequest true "Credentials"
// @Success 200 {object} object{success=bool,user=models.UserProfile}
// @Failure 400 {object} object{success=bool,error=string}
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	ctx := c.UserContext()
	invalid := func(reason error) error {
		if !errors.Is(reason, service.ErrInvalidCredentials) {
			middleware.Logger.ErrorContext(ctx, "login failed", slog.String("error", reason.Error()))
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid credentials",
		})
	}

	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return invalid(err)
	}

	user, err := s.authService.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return invalid(err)
	}

	access, _, err := s.tokens.Issue(user.ID, middleware.TokenTypeAccess)
	if err != nil {
		return invalid(err)
	}
	refresh, _, err := s.tokens.Issue(user.ID, middleware.TokenTypeRefresh)
	if err != nil {
		return invalid(err)
	}

	profile, err := s.userService.Profile(ctx, user.ID)
	if err != nil {
		return invalid(err)
	}

	setAuthCookie(c, middleware.AccessCookie, access, s.tokens.AccessTTL())
	setAuthCookie(c, middleware.RefreshCookie, refresh, s.tokens.RefreshTTL())

	return c.JSON(fiber.Map{
		"success": true,
		"user":    profile,
	})
}

// RefreshToken handles POST /api/auth/token/refresh
// @Summary Refresh access token
// @Description Issue a new access cookie from a valid refresh cookie
// @Tags auth
// @Produce json
// @Success 200 {object} object{refreshed=bool}
// @Router /auth/token/refresh [post]
func (s *Server) RefreshToken(c *fiber.Ctx) error {
	ctx := c.UserContext()

	raw := c.Cookies(middleware.RefreshCookie)
	if raw == "" {
		return c.JSON(fiber.Map{"refreshed": false})
	}

	claims, err := s.tokens.Validate(ctx, raw, middleware.TokenTypeRefresh)
	if err != nil {
		middleware.Logger.InfoContext(ctx, "refresh rejected", slog.String("error", err.Error()))
		return c.JSON(fiber.Map{"refreshed": false})
	}
	uid, err := claims.UserID()
	if err != nil {
		return c.JSON(fiber.Map{"refreshed": false})
	}

	access, _, err := s.tokens.Issue(uid, middleware.TokenTypeAccess)
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "issue access token", slog.String("error", err.Error()))
		return c.JSON(fiber.Map{"refreshed": false})
	}

	setAuthCookie(c, middleware.AccessCookie, access, s.tokens.AccessTTL())
	return c.JSON(fiber.Map{"refreshed": true})
}

// Logout handles POST /api/auth/logout
// @Summary Log out
// @Description Revoke the current tokens and clear the auth cookies
// @Tags auth
// @Produce json
// @Success 200 {object} object{detail=string}
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	ctx := c.UserContext()

	revoke := func(raw, tokenType string) {
		if raw == "" {
			return
		}
		claims, err := s.tokens.Parse(raw, tokenType)
		if err != nil {
			return
		}
		if err := s.tokens.Revoke(ctx, claims); err != nil {
			middleware.Logger.WarnContext(ctx, "token revocation failed",
				slog.String("type", tokenType), slog.String("error", err.Error()))
		}
	}
	revoke(c.Cookies(middleware.RefreshCookie), middleware.TokenTypeRefresh)
	revoke(middleware.TokenFromRequest(c), middleware.TokenTypeAccess)

	clearAuthCookie(c, middleware.AccessCookie)
	clearAuthCookie(c, middleware.RefreshCookie)

	return c.JSON(fiber.Map{"detail": "Logged out"})
}
