package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/url-cache/internal/download"
)

// Resolver is the part of the cache protocol the HTTP surface needs.
type Resolver interface {
	ResolveStream(ctx context.Context, rawURL string) (*download.Stream, error)
	EnsureInCacheThenStream(ctx context.Context, rawURL string, headers http.Header) (*download.Stream, error)
}

// IndexLoader returns the rendered index document.
type IndexLoader interface {
	Load(ctx context.Context) ([]byte, error)
}

// AppOptions wires the browse server to its collaborators.
type AppOptions struct {
	Logger   *logrus.Logger
	Resolver Resolver
	Index    IndexLoader
	// AllowFetch lets /-/cache download misses when the request asks for it.
	AllowFetch bool
}

const contextKeyRequestID = "_urlcache_request_id"

// NewApp builds the Fiber application serving the index and cached bodies.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if opts.Index == nil {
		return nil, errors.New("index loader is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	h := &handlers{
		logger:     opts.Logger,
		resolver:   opts.Resolver,
		index:      opts.Index,
		allowFetch: opts.AllowFetch,
	}
	app.Get("/index.json", h.serveIndex)
	app.Get("/-/cache", h.serveCache)
	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return app, nil
}

// requestContextMiddleware 为每个请求生成请求 ID。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

type handlers struct {
	logger     *logrus.Logger
	resolver   Resolver
	index      IndexLoader
	allowFetch bool
}

func (h *handlers) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *handlers) logResult(c fiber.Ctx, action, rawURL string, status int, started time.Time, err error) {
	fields := logrus.Fields{
		"action":     action,
		"url":        rawURL,
		"request_id": RequestID(c),
		"status":     status,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	entry := h.logger.WithFields(fields)
	if err != nil {
		entry.WithError(err).Warn("request failed")
		return
	}
	entry.Info("request served")
}
