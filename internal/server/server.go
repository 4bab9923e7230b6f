// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"podium/internal/auth"
	"podium/internal/config"
	"podium/internal/database"
	"podium/internal/gateway"
	"podium/internal/kv"
	"podium/internal/middleware"
	"podium/internal/models"
	"podium/internal/moderation"
	"podium/internal/presence"
	"podium/internal/repository"
	"podium/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	kv             kv.Backend
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	verifier *auth.Verifier

	roomRepo repository.RoomRepository
	msgRepo  repository.MessageRepository
	modRepo  repository.ModerationRepository

	membership *service.MembershipService
	messages   *service.MessageService

	registry  *presence.Registry
	gateway   *gateway.Gateway
	pipeline  *moderation.Pipeline
	retention *moderation.RetentionJob
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	backend, err := kv.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("kv backend init failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout())
	defer cancel()
	if err := backend.WaitForConnection(ctx); err != nil {
		return nil, fmt.Errorf("kv backend not reachable: %w", err)
	}

	return NewServerWithDeps(cfg, db, backend)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis and optionally
// performs explicit seeding.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, backend kv.Backend) (*Server, error) {
	roomRepo := repository.NewRoomRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	modRepo := repository.NewModerationRepository(db)

	prom := fiberprometheus.New("podium-api")

	server := &Server{
		config:         cfg,
		db:             db,
		kv:             backend,
		promMiddleware: prom,
		verifier:       auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience),
		roomRepo:       roomRepo,
		msgRepo:        msgRepo,
		modRepo:        modRepo,
	}
	server.membership = service.NewMembershipService(roomRepo)
	server.messages = service.NewMessageService(msgRepo, roomRepo, backend)

	server.registry = presence.NewRegistry()
	server.gateway = gateway.NewGateway(server.registry, server.membership, server.messages, backend)

	// The gateway doubles as the pipeline's event publisher; wire the
	// pipeline back into the gateway after construction.
	server.pipeline = moderation.NewPipeline(roomRepo, msgRepo, modRepo, server.membership,
		server.gateway, moderation.NewWordlistChecker(), moderation.Options{
			Workers:      cfg.ModerationWorkers,
			JobRetries:   cfg.ModerationJobRetries,
			CheckTimeout: cfg.ContentCheckTimeout(),
		})
	server.gateway.SetPipeline(server.pipeline)
	server.retention = moderation.NewRetentionJob(modRepo, cfg.RetentionAge(), 0)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
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

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they should be handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Protected routes
	protected := api.Group("", s.AuthRequired())

	// Room routes
	rooms := protected.Group("/rooms")
	rooms.Get("/", s.GetMyRooms)
	rooms.Get("/:id/messages", middleware.RateLimit(
		s.kv, 60, time.Minute, "message_history"), s.GetRoomMessages)
	rooms.Post("/:id/join", s.JoinRoom)
	rooms.Delete("/:id/leave", s.LeaveRoom)
	rooms.Post("/:id/read", s.MarkRoomRead)
	rooms.Get("/:id", s.GetRoom)

	// Moderation routes - require a moderator/owner participant role
	mod := rooms.Group("/:id/moderation", s.ModeratorRequired())
	mod.Post("/ban", middleware.RateLimit(
		s.kv, 30, time.Minute, "moderation_action"), s.BanParticipant)
	mod.Post("/unban", s.UnbanParticipant)
	mod.Post("/mute", s.MuteParticipant)
	mod.Post("/unmute", s.UnmuteParticipant)
	mod.Post("/delete-message", s.DeleteRoomMessage)
	mod.Post("/filter-content", s.FilterMessageContent)
	mod.Get("/logs", s.GetModerationLogs)
	mod.Get("/stats", s.GetModerationStats)

	// Websocket endpoint - protected by AuthRequired
	ws := api.Group("/ws", s.AuthRequired())
	ws.Get("/chat", s.WebSocketChatHandler())
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
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	kvStatus := "healthy"
	if s.kv != nil {
		if err := s.kv.Ping(ctx); err != nil {
			kvStatus = "unhealthy"
		}
	} else {
		// The kv backend carries presence and fan-out; the service is not
		// ready without it.
		kvStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || kvStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    kvStatus,
		},
		"time": time.Now(),
	})
}

// AuthRequired returns the authentication middleware. Tokens arrive in the
// Authorization header, or as a `token` query parameter for WebSocket
// clients that cannot set headers.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		tokenString := ""
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
		if tokenString == "" {
			tokenString = c.Query("token")
		}

		identity, err := s.verifier.Verify(tokenString)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}

		// Store identity in locals for handlers and downstream middleware
		c.Locals("userID", identity.UserID)
		c.Locals("username", identity.Username)
		c.Locals("identity", identity)

		// Sync to UserContext for logging and downstream services
		ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, identity.UserID)
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// ModeratorRequired rejects callers without a moderator/owner participant
// role in the room named by the :id route parameter. Must be placed after
// AuthRequired so that userID is available in locals.
func (s *Server) ModeratorRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(uint)
		roomID, err := s.parseID(c, "id")
		if err != nil {
			return nil
		}

		ok, err := s.membership.CanModerate(c.UserContext(), userID, roomID)
		if err != nil {
			return models.RespondWithError(c, models.StatusForError(err), err)
		}
		if !ok {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewPermissionDeniedError("Moderator access required"))
		}

		return c.Next()
	}
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName: "Podium Chat API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	// Background workers: moderation pipeline, pub/sub relays, log retention.
	s.pipeline.Start(ctx)
	s.gateway.StartWiring(ctx)
	go s.retention.Run(ctx)

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop all background goroutines
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	// Shutdown the HTTP/WS server
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	// Close WebSocket connections gracefully
	if s.gateway != nil {
		if err := s.gateway.Shutdown(ctx); err != nil {
			log.Printf("error shutting down chat gateway: %v", err)
		}
	}

	// Drain the moderation queue
	if s.pipeline != nil {
		s.pipeline.Stop()
	}

	// Close database connection
	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	// Close kv connection
	if s.kv != nil {
		if rerr := s.kv.Close(); rerr != nil {
			log.Printf("error closing kv backend: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
