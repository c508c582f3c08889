package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wichananm65/bible-streak-backend/internal/config"
	"github.com/wichananm65/bible-streak-backend/internal/user"
)

const (
	appName    = "Bible Streak API"
	appVersion = "1.0.0"
)

type Server struct {
	app *fiber.App
	cfg config.Config
	log zerolog.Logger
}

func New(cfg config.Config, log zerolog.Logger, users *user.Handler, authenticate fiber.Handler) *Server {
	s := &Server{cfg: cfg, log: log}
	s.app = fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	s.setupMiddleware()
	s.setupRoutes(users, authenticate)
	return s
}

// App exposes the fiber app so tests can drive it with app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("server listening")
	return s.app.Listen(s.cfg.Addr)
}

func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New())
	s.app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	s.app.Use(s.logRequest)
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.CORSOrigins,
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	if s.cfg.AuthRateLimit > 0 {
		s.app.Use("/api/auth", limiter.New(limiter.Config{
			Max:        s.cfg.AuthRateLimit,
			Expiration: time.Minute,
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
			},
		}))
	}
}

func (s *Server) setupRoutes(users *user.Handler, authenticate fiber.Handler) {
	s.app.Get("/", index)
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "OK"})
	})

	users.RegisterPublicRoutes(s.app)
	users.RegisterProtectedRoutes(s.app, authenticate)

	s.app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Route not found"})
	})
}

func index(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": appName,
		"version": appVersion,
		"endpoints": fiber.Map{
			"auth": fiber.Map{
				"register": "POST /api/auth/register",
				"login":    "POST /api/auth/login",
			},
			"users": fiber.Map{
				"getAll": "GET /api/users (protected)",
				"getOne": "GET /api/users/:id (protected)",
				"update": "PUT /api/users/:id (protected)",
				"delete": "DELETE /api/users/:id (protected)",
			},
		},
	})
}

// logRequest records method, path, status and latency. Bodies are never
// logged since they carry passwords.
func (s *Server) logRequest(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	} else if err != nil {
		status = fiber.StatusInternalServerError
	}

	event := s.log.Info()
	if status >= fiber.StatusInternalServerError {
		event = s.log.Error().Err(err)
	}
	event.
		Str("request_id", requestID(c)).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", status).
		Dur("latency", time.Since(start)).
		Msg("request")
	return err
}

// handleError is the last line for errors no handler mapped itself.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}

	s.log.Error().Err(err).Str("request_id", requestID(c)).Msg("unhandled error")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "Internal server error",
		"message": err.Error(),
	})
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)
	return id
}
