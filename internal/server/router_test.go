package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/any-hub/url-cache/internal/cache"
	"github.com/any-hub/url-cache/internal/download"
	"github.com/any-hub/url-cache/internal/index"
	"github.com/any-hub/url-cache/internal/upstream"
)

func TestServeCacheReturnsCachedBody(t *testing.T) {
	env := newTestServer(t, false)
	env.download(t, env.upstream.URL+"/report.csv")

	resp := env.get(t, "/-/cache?url="+url.QueryEscape(env.upstream.URL+"/report.csv"))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("expected recorded content type, got %q", ct)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	if resp.Header.Get("X-Cache-Key") == "" {
		t.Fatalf("expected X-Cache-Key header")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "a,b\n1,2\n" {
		t.Fatalf("unexpected body %q", string(body))
	}
}

func TestServeCacheFollowsRedirectEntries(t *testing.T) {
	env := newTestServer(t, false)
	env.download(t, env.upstream.URL+"/moved")

	resp := env.get(t, "/-/cache?url="+url.QueryEscape(env.upstream.URL+"/moved"))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Cache-URL"); got != env.upstream.URL+"/report.csv" {
		t.Fatalf("expected final URL header, got %q", got)
	}
}

func TestServeCacheMiss(t *testing.T) {
	env := newTestServer(t, false)

	resp := env.get(t, "/-/cache?fetch=1&url="+url.QueryEscape(env.upstream.URL+"/report.csv"))
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"cache_miss"`)) {
		t.Fatalf("expected cache_miss error, got %s", string(body))
	}
	if env.hits.Load() != 0 {
		t.Fatalf("miss must not reach upstream when fetching is disabled")
	}
}

func TestServeCacheFetchesWhenAllowed(t *testing.T) {
	env := newTestServer(t, true)

	resp := env.get(t, "/-/cache?fetch=1&url="+url.QueryEscape(env.upstream.URL+"/report.csv"))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp = env.get(t, "/-/cache?fetch=1&url="+url.QueryEscape(env.upstream.URL+"/report.csv"))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := env.hits.Load(); got != 1 {
		t.Fatalf("expected a single upstream hit, got %d", got)
	}

	resp = env.get(t, "/-/cache?fetch=1&url="+url.QueryEscape(env.upstream.URL+"/missing"))
	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("expected 502 for upstream 404, got %d", resp.StatusCode)
	}
}

func TestServeCacheValidatesURL(t *testing.T) {
	env := newTestServer(t, false)

	if resp := env.get(t, "/-/cache"); resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without url, got %d", resp.StatusCode)
	}
	if resp := env.get(t, "/-/cache?url=relative/path"); resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for relative url, got %d", resp.StatusCode)
	}
}

func TestServeCacheCorruptEntry(t *testing.T) {
	env := newTestServer(t, false)
	target := env.upstream.URL + "/broken"
	key, _ := cache.KeyFor(target)
	rec := cache.NewRecord(target, nil, 200, "OK", nil, "body.html")
	if err := env.store.WriteMetadata(context.Background(), key, rec); err != nil {
		t.Fatalf("write metadata error: %v", err)
	}

	resp := env.get(t, "/-/cache?url="+url.QueryEscape(target))
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"corrupt_entry"`)) {
		t.Fatalf("expected corrupt_entry error, got %s", string(body))
	}
}

func TestServeIndexBuildsOnceAndSupportsETag(t *testing.T) {
	env := newTestServer(t, false)
	env.download(t, env.upstream.URL+"/report.csv")

	resp := env.get(t, "/index.json")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag header")
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"type":"file"`)) {
		t.Fatalf("expected file node in index, got %s", string(body))
	}
	if got := env.builds.Load(); got != 1 {
		t.Fatalf("expected one build, got %d", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/index.json", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotModified {
		t.Fatalf("expected 304, got %d", resp.StatusCode)
	}
	if got := env.builds.Load(); got != 1 {
		t.Fatalf("index file should be reused, got %d builds", got)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestServer(t, false)
	resp := env.get(t, "/-/healthz")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestNewAppRequiresDependencies(t *testing.T) {
	if _, err := NewApp(AppOptions{}); err == nil {
		t.Fatalf("expected error without logger")
	}
	if _, err := NewApp(AppOptions{Logger: logrus.New()}); err == nil {
		t.Fatalf("expected error without resolver")
	}
}

type testServer struct {
	app      *fiber.App
	upstream *httptest.Server
	protocol *download.Protocol
	store    cache.Store
	hits     atomic.Int32
	builds   atomic.Int32
}

func newTestServer(t *testing.T, allowFetch bool) *testServer {
	t.Helper()
	env := &testServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/report.csv", func(w http.ResponseWriter, r *http.Request) {
		env.hits.Add(1)
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("a,b\n1,2\n"))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/report.csv", http.StatusFound)
	})
	env.upstream = httptest.NewServer(mux)
	t.Cleanup(env.upstream.Close)

	fsys := afero.NewMemMapFs()
	store, err := cache.NewStore("/cache", cache.WithFs(fsys))
	if err != nil {
		t.Fatalf("store error: %v", err)
	}
	env.store = store

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	protocol, err := download.New(download.Options{
		Store:   store,
		Fetcher: upstream.NewHTTPFetcher(upstream.NewClient(upstream.ClientOptions{})),
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("protocol error: %v", err)
	}
	env.protocol = protocol

	indexFile := &IndexFile{
		Fs:   fsys,
		Path: "/cache/index.json",
		Build: func(ctx context.Context) ([]index.Node, error) {
			env.builds.Add(1)
			return index.Build(ctx, index.BuildOptions{
				Fs:          fsys,
				StoragePath: "/cache",
				Schemas:     []string{"https", "http"},
				Logger:      logger,
			})
		},
	}

	app, err := NewApp(AppOptions{
		Logger:     logger,
		Resolver:   protocol,
		Index:      indexFile,
		AllowFetch: allowFetch,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	env.app = app
	return env
}

func (e *testServer) download(t *testing.T, rawURL string) {
	t.Helper()
	if err := e.protocol.EnsureInCache(context.Background(), rawURL, nil); err != nil {
		t.Fatalf("download %s: %v", rawURL, err)
	}
}

func (e *testServer) get(t *testing.T, target string) *http.Response {
	t.Helper()
	resp, err := e.app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	return resp
}
