package download

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/any-hub/url-cache/internal/cache"
	"github.com/any-hub/url-cache/internal/upstream"
)

// fakeRoute 描述一个 URL 的伪造响应。failures 次数内返回网络错误。
type fakeRoute struct {
	status   int
	header   http.Header
	body     string
	failures int
	bodyErr  error
}

type fakeFetcher struct {
	mu       sync.Mutex
	routes   map[string]*fakeRoute
	calls    map[string]int
	requests map[string]http.Header
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		routes:   make(map[string]*fakeRoute),
		calls:    make(map[string]int),
		requests: make(map[string]http.Header),
	}
}

func (f *fakeFetcher) handle(rawURL string, route fakeRoute) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[rawURL] = &route
}

func (f *fakeFetcher) ok(rawURL, contentType, body string) {
	f.handle(rawURL, fakeRoute{
		status: http.StatusOK,
		header: http.Header{"Content-Type": []string{contentType}},
		body:   body,
	})
}

func (f *fakeFetcher) redirect(rawURL string, status int, location string) {
	f.handle(rawURL, fakeRoute{
		status: status,
		header: http.Header{"Location": []string{location}},
	})
}

func (f *fakeFetcher) count(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rawURL]
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string, headers http.Header) (*upstream.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rawURL]++
	f.requests[rawURL] = headers.Clone()

	route, ok := f.routes[rawURL]
	if !ok {
		return &upstream.Response{
			URL:        rawURL,
			StatusCode: http.StatusNotFound,
			StatusText: "Not Found",
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader("")),
		}, nil
	}
	if route.failures > 0 {
		route.failures--
		return nil, errors.New("connection refused")
	}

	var body io.Reader = strings.NewReader(route.body)
	if route.bodyErr != nil {
		body = io.MultiReader(strings.NewReader(route.body), &errReader{err: route.bodyErr})
	}
	return &upstream.Response{
		URL:        rawURL,
		StatusCode: route.status,
		StatusText: http.StatusText(route.status),
		Header:     route.header.Clone(),
		Body:       io.NopCloser(body),
	}, nil
}

type errReader struct {
	err error
}

func (r *errReader) Read([]byte) (int, error) {
	return 0, r.err
}

type testEnv struct {
	protocol *Protocol
	fetcher  *fakeFetcher
	store    cache.Store
	fs       afero.Fs
	metrics  *Metrics
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()
	fsys := afero.NewMemMapFs()
	store, err := cache.NewStore("/cache", cache.WithFs(fsys))
	if err != nil {
		t.Fatalf("store error: %v", err)
	}
	fetcher := newFakeFetcher()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	metrics := NewMetrics(prometheus.NewRegistry())

	opts := Options{
		Store:   store,
		Fetcher: fetcher,
		Logger:  logger,
		Metrics: metrics,
	}
	if mutate != nil {
		mutate(&opts)
	}
	protocol, err := New(opts)
	if err != nil {
		t.Fatalf("protocol error: %v", err)
	}
	return &testEnv{protocol: protocol, fetcher: fetcher, store: opts.Store, fs: fsys, metrics: metrics}
}

func (e *testEnv) readMetadata(t *testing.T, rawURL string) string {
	t.Helper()
	key, err := cache.KeyFor(rawURL)
	if err != nil {
		t.Fatalf("key error: %v", err)
	}
	data, err := afero.ReadFile(e.fs, "/cache/"+key.MetadataPath())
	if err != nil {
		t.Fatalf("read metadata %s: %v", key, err)
	}
	return string(data)
}

func (e *testEnv) committed(t *testing.T, rawURL string) bool {
	t.Helper()
	hit, err := e.protocol.QuickCheck(context.Background(), rawURL)
	if err != nil {
		t.Fatalf("quick check error: %v", err)
	}
	return hit
}

func readStream(t *testing.T, stream *Stream) string {
	t.Helper()
	if stream == nil {
		t.Fatalf("expected stream, got miss")
	}
	defer stream.Close()
	data, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("read stream error: %v", err)
	}
	return string(data)
}
