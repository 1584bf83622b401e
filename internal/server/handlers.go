package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/url-cache/internal/cache"
	"github.com/any-hub/url-cache/internal/download"
)

// serveIndex 返回索引文档，带基于内容哈希的弱 ETag。
func (h *handlers) serveIndex(c fiber.Ctx) error {
	started := time.Now()
	data, err := h.index.Load(requestContext(c))
	if err != nil {
		h.logResult(c, "serve_index", "", fiber.StatusInternalServerError, started, err)
		return h.writeError(c, fiber.StatusInternalServerError, "index_unavailable")
	}

	etag := fmt.Sprintf(`W/"%016x"`, xxhash.Sum64(data))
	c.Set(fiber.HeaderETag, etag)
	c.Set(fiber.HeaderCacheControl, "no-cache")
	if match := c.Get(fiber.HeaderIfNoneMatch); match != "" && etagMatches(match, etag) {
		return c.SendStatus(fiber.StatusNotModified)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

// serveCache 按 url 参数返回缓存正文；fetch=1 且允许时未命中会触发下载。
func (h *handlers) serveCache(c fiber.Ctx) error {
	started := time.Now()
	rawURL := strings.TrimSpace(c.Query("url"))
	if rawURL == "" {
		return h.writeError(c, fiber.StatusBadRequest, "url_required")
	}

	var (
		stream *download.Stream
		err    error
	)
	if h.allowFetch && c.Query("fetch") == "1" {
		stream, err = h.resolver.EnsureInCacheThenStream(requestContext(c), rawURL, nil)
	} else {
		stream, err = h.resolver.ResolveStream(requestContext(c), rawURL)
	}
	if err != nil {
		status, code := classifyError(err)
		h.logResult(c, "serve_cache", rawURL, status, started, err)
		return h.writeError(c, status, code)
	}
	if stream == nil {
		h.logResult(c, "serve_cache", rawURL, fiber.StatusNotFound, started, nil)
		return h.writeError(c, fiber.StatusNotFound, "cache_miss")
	}
	defer stream.Close()

	c.Set(fiber.HeaderContentType, stream.Record.ContentType())
	if disposition := stream.Record.Header(fiber.HeaderContentDisposition); disposition != "" {
		c.Set(fiber.HeaderContentDisposition, disposition)
	}
	c.Set("X-Cache-Key", stream.Key.String())
	c.Set("X-Cache-URL", stream.URL)
	c.Status(fiber.StatusOK)

	_, err = io.Copy(c.Response().BodyWriter(), stream)
	h.logResult(c, "serve_cache", rawURL, fiber.StatusOK, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("read cache failed: %v", err))
	}
	return nil
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, cache.ErrInvalidURL):
		return fiber.StatusBadRequest, "invalid_url"
	case errors.Is(err, download.ErrCorruptEntry):
		return fiber.StatusInternalServerError, "corrupt_entry"
	case errors.Is(err, download.ErrRedirectLoop):
		return fiber.StatusInternalServerError, "redirect_loop"
	case errors.Is(err, download.ErrNetwork):
		return fiber.StatusBadGateway, "upstream_unreachable"
	case errors.Is(err, download.ErrUnexpectedStatus):
		return fiber.StatusBadGateway, "upstream_status"
	case errors.Is(err, download.ErrInvariantViolation):
		return fiber.StatusInternalServerError, "invariant_violation"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == etag || "W/"+candidate == etag {
			return true
		}
	}
	return false
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
