// Package http exposes the session coordinator to the chat front end. The
// front end parses chat messages into commands and posts them here; replies
// carry the status text and a rendered board.
package http

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"chessbot/internal/coordinator"
	"chessbot/internal/core"
	"chessbot/internal/engine"
	"chessbot/internal/render"
)

const rateLimitRate = 10 // req/sec per client

// EngineStats reports engine pool load for /health
type EngineStats interface {
	Stats() engine.Stats
}

// StorageHealth reports whether persistence is still accepting writes
type StorageHealth interface {
	IsHealthy() bool
}

// Config wires the optional collaborators of the gateway. A nil
// ValidateToken disables authentication.
type Config struct {
	DevMode       bool
	Renderer      *render.Gateway
	Engine        EngineStats
	Storage       StorageHealth
	Sessions      func() int
	ValidateToken TokenValidator
}

// HTTPHandler routes requests to the coordinator
type HTTPHandler struct {
	coord    *coordinator.Coordinator
	renderer *render.Gateway
	engine   EngineStats
	storage  StorageHealth
	sessions func() int
	log      zerolog.Logger
	now      func() time.Time
}

func NewHTTPHandler(coord *coordinator.Coordinator, cfg Config, log zerolog.Logger) *HTTPHandler {
	h := &HTTPHandler{
		coord:    coord,
		renderer: cfg.Renderer,
		engine:   cfg.Engine,
		storage:  cfg.Storage,
		sessions: cfg.Sessions,
		log:      log.With().Str("component", "http").Logger(),
		now:      time.Now,
	}
	if h.renderer == nil {
		h.renderer = render.NewGateway()
	}
	return h
}

func NewFiberApp(coord *coordinator.Coordinator, cfg Config, log zerolog.Logger) *fiber.App {
	h := NewHTTPHandler(coord, cfg, log)

	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          35 * time.Second,
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
	})

	// Global middleware (order matters)
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
		Output: h.log,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check (no rate limit, no auth)
	app.Get("/health", h.Health)

	api := app.Group("/api/v1")

	maxReq := rateLimitRate
	if cfg.DevMode {
		maxReq = rateLimitRate * 2
	}
	api.Use(limiter.New(limiter.Config{
		Max:          maxReq,
		Expiration:   1 * time.Second,
		KeyGenerator: clientKey,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(core.ErrorResponse{
				Error:   "rate limit exceeded",
				Code:    core.ErrCodeRateLimit,
				Details: fmt.Sprintf("%d requests per second allowed", maxReq),
			})
		},
	}))
	api.Use(contentTypeValidator)
	api.Use(validationMiddleware)

	sessions := api.Group("/sessions/:identity", identityValidator)
	if cfg.ValidateToken != nil {
		sessions.Use(AuthRequired(cfg.ValidateToken), identityScope)
	}

	sessions.Get("/", h.GetSession)
	sessions.Delete("/", h.Reset)
	sessions.Get("/board", h.GetBoard)
	sessions.Get("/fen", h.GetFEN)
	sessions.Post("/new", h.NewGame)
	sessions.Post("/move", h.Move)
	sessions.Post("/hint", h.Hint)
	sessions.Post("/eval", h.Eval)
	sessions.Post("/apply-hint", h.ApplyHint)
	sessions.Post("/resign", h.Resign)
	sessions.Post("/position", h.SetPosition)
	sessions.Post("/undo", h.Undo)
	sessions.Post("/retry", h.Retry)

	return app
}

// clientKey keys rate limiting on the first forwarded address when behind a proxy
func clientKey(c *fiber.Ctx) string {
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	return c.IP()
}

// contentTypeValidator ensures POST requests carry JSON
func contentTypeValidator(c *fiber.Ctx) error {
	if c.Method() == fiber.MethodPost {
		contentType := c.Get("Content-Type")
		if contentType != "" && !strings.HasPrefix(contentType, fiber.MIMEApplicationJSON) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(core.ErrorResponse{
				Error:   "unsupported media type",
				Code:    core.ErrCodeInvalidContent,
				Details: "Content-Type must be application/json",
			})
		}
	}
	return c.Next()
}

// customErrorHandler provides consistent error responses
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	response := core.ErrorResponse{
		Error: "internal server error",
		Code:  core.ErrCodeInternal,
	}

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		response.Error = e.Message

		switch code {
		case fiber.StatusNotFound:
			response.Code = core.ErrCodeInvalidRequest
			response.Details = "no such route"
		case fiber.StatusBadRequest, fiber.StatusMethodNotAllowed:
			response.Code = core.ErrCodeInvalidRequest
		case fiber.StatusTooManyRequests:
			response.Code = core.ErrCodeRateLimit
		}
	}

	return c.Status(code).JSON(response)
}

// statusFor maps an error code to the HTTP status of the reply
func statusFor(code string) int {
	switch code {
	case core.ErrCodeSessionNotFound:
		return fiber.StatusNotFound
	case core.ErrCodeIllegalMove, core.ErrCodeInvalidMove, core.ErrCodeInvalidFEN, core.ErrCodeInvalidRequest:
		return fiber.StatusBadRequest
	case core.ErrCodeGameOver, core.ErrCodeEngineThinking, core.ErrCodeSuperseded, core.ErrCodeEngineRetry:
		return fiber.StatusConflict
	case core.ErrCodeEngineTimeout:
		return fiber.StatusGatewayTimeout
	case core.ErrCodeEngineProtocol:
		return fiber.StatusBadGateway
	case core.ErrCodeEngineBusy:
		return fiber.StatusServiceUnavailable
	case core.ErrCodeUnauthorized:
		return fiber.StatusForbidden
	case core.ErrCodeRateLimit:
		return fiber.StatusTooManyRequests
	case core.ErrCodeInvalidContent:
		return fiber.StatusUnsupportedMediaType
	default:
		return fiber.StatusInternalServerError
	}
}
