// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"log"
	"sync"
	"time"

	_ "chirp/docs" // swagger docs
	"chirp/internal/bootstrap"
	"chirp/internal/cache"
	"chirp/internal/config"
	"chirp/internal/database"
	"chirp/internal/featureflags"
	"chirp/internal/middleware"
	"chirp/internal/models"
	"chirp/internal/notifications"
	"chirp/internal/repository"
	"chirp/internal/service"
	"chirp/internal/worker"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Rate tiers.
const (
	anonRegisterLimit = 20
	anonLoginLimit    = 10
	userLimit         = 100
	rateWindow        = time.Minute
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	workerDone     sync.WaitGroup

	tokens       *middleware.TokenManager
	notifier     *notifications.Notifier
	hub          *notifications.Hub
	featureFlags *featureflags.Manager
	processor    *worker.Processor
	jobs         worker.Dispatcher

	authService   *service.AuthService
	userService   *service.UserService
	followService *service.FollowService
	postService   *service.PostService
	imageService  *service.ImageService
}

// NewServer connects to the database and Redis, brings the schema up to date
// and builds a server on top of them.
// Redis is optional; without it jobs run inline and nothing is cached.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	db, redisClient, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{ApplySchema: true})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	userRepo := repository.NewUserRepository(db)
	followRepo := repository.NewFollowRepository(db)
	postRepo := repository.NewPostRepository(db)
	likeRepo := repository.NewLikeRepository(db)

	counts := cache.NewCountCache(redisClient)
	flags := featureflags.NewManager(cfg.FeatureFlags)
	if raw := flags.Raw(); len(raw) > 0 {
		middleware.Logger.Info("feature flags loaded", "flags", raw)
	}

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("chirp-api"),
		tokens:         middleware.NewTokenManager(cfg, redisClient),
		notifier:       notifications.NewNotifier(redisClient),
		hub:            notifications.NewHub(),
		featureFlags:   flags,
		processor:      worker.NewProcessor(cfg.WorkerMaxAttempts),
		imageService:   service.NewImageService(cfg),
	}

	handlers := &worker.Handlers{
		Users:       userRepo,
		Follows:     followRepo,
		Posts:       postRepo,
		Likes:       likeRepo,
		Counts:      counts,
		Mailer:      notifications.NewMailer(cfg),
		Flags:       flags,
		MailLimiter: worker.NewMailLimiter(cfg.MailRatePerSec),
	}
	handlers.Register(server.processor)
	server.jobs = worker.NewDispatcher(redisClient, server.processor)

	server.authService = service.NewAuthService(userRepo)
	server.userService = service.NewUserService(userRepo, followRepo, counts)
	server.followService = service.NewFollowService(userRepo, followRepo, counts, server.jobs, server.notifier, flags)
	server.postService = service.NewPostService(
		postRepo, likeRepo, followRepo, counts, server.imageService, server.jobs, server.notifier, flags,
	)

	return server, nil
}

// NewApp builds the Fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:       "Chirp API",
		StrictRouting: false,
		BodyLimit:     int(s.imageService.MaxUploadSizeBytes()) + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return models.RespondWithError(c, fe.Code, fe)
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "error", err.Error())
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses keep their headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	app.Use(compress.New(compress.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Get(fiber.HeaderUpgrade) != ""
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	// Uploaded images
	app.Static(service.MediaURL, s.imageService.Dir(), fiber.Static{
		MaxAge: 86400,
	})

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", middleware.RateLimit(
		s.redis, anonRegisterLimit, rateWindow, "register"), s.Register)
	auth.Post("/login", middleware.RateLimit(
		s.redis, anonLoginLimit, rateWindow, "login"), s.Login)
	auth.Post("/token/refresh", middleware.RateLimit(
		s.redis, userLimit, rateWindow, "refresh"), s.RefreshToken)
	auth.Post("/logout", s.Logout)

	protected := api.Group("", middleware.AuthRequired(s.tokens))
	limited := middleware.RateLimit(s.redis, userLimit, rateWindow, "user")

	// Define specific routes BEFORE the generic /:id route
	posts := protected.Group("/posts", limited)
	posts.Post("/create", s.CreatePost)
	posts.Get("/feed", s.Feed)
	posts.Post("/like", s.ToggleLike)
	posts.Put("/update/:id", s.UpdatePost)
	posts.Patch("/update/:id", s.UpdatePost)
	posts.Delete("/delete/:id", s.DeletePost)
	posts.Get("/:id", s.RetrievePost)

	users := protected.Group("/user", limited)
	users.Post("/follow", s.ToggleFollow)
	users.Get("/following", s.GetFollowing)
	users.Get("/followers", s.GetFollowers)
	users.Get("/list", s.ListUsers)
	users.Get("/profile", s.GetProfile)

	ws := protected.Group("/ws")
	ws.Get("/notifications", s.WebsocketHandler())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// StartBackground wires the websocket hub to Redis pub/sub and starts the job
// workers. Everything stops when Shutdown is called.
func (s *Server) StartBackground() {
	if s.shutdownFn != nil {
		return
	}
	s.shutdownCtx, s.shutdownFn = context.WithCancel(context.Background())

	if s.redis == nil {
		log.Println("Redis unavailable: realtime notifications disabled, jobs run inline")
		return
	}

	go func() {
		if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
			log.Printf("failed to start notification hub wiring: %v", err)
		}
	}()

	if queue, ok := s.jobs.(*worker.RedisQueue); ok {
		pool := worker.NewPool(queue, s.processor, s.config.WorkerConcurrency)
		s.workerDone.Add(1)
		go func() {
			defer s.workerDone.Done()
			pool.Run(s.shutdownCtx)
		}()
	}
}

// Start builds the app, starts background processing and listens on the configured port.
func (s *Server) Start() error {
	s.app = s.NewApp()
	s.StartBackground()

	log.Printf("Server starting on port %s...", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Stop hub wiring and the worker pool
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		log.Printf("error shutting down notification hub: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.workerDone.Wait()
		if inline, ok := s.jobs.(*worker.InlineDispatcher); ok {
			inline.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("timed out waiting for background jobs: %v", ctx.Err())
	}

	if err := database.Close(s.db); err != nil {
		log.Printf("error closing sql DB: %v", err)
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
