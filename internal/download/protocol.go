package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/url-cache/internal/cache"
	"github.com/any-hub/url-cache/internal/logging"
	"github.com/any-hub/url-cache/internal/upstream"
)

const defaultMaxRedirects = 20

// Options 汇总构造 Protocol 所需的依赖，取代隐式的全局配置。
type Options struct {
	Store   cache.Store
	Fetcher upstream.Fetcher
	Logger  *logrus.Logger
	// Headers 附加到每次上游请求，调用时传入的同名头优先。
	Headers http.Header
	// Delay 为每次提交正文后的停顿，给上游服务器喘息时间；0 表示不停顿。
	Delay        time.Duration
	MaxRedirects int
	Metrics      *Metrics
}

// Protocol 负责“命中判断 → 回源 → 先正文后 metadata 提交”的全流程。
type Protocol struct {
	store        cache.Store
	fetcher      upstream.Fetcher
	logger       *logrus.Logger
	headers      http.Header
	delay        time.Duration
	maxRedirects int
	metrics      *Metrics
}

// Stream 是命中条目的正文流，URL 为跟随重定向后的最终地址。
type Stream struct {
	io.ReadCloser
	URL    string
	Key    cache.Key
	Record cache.Record
}

// New 校验依赖并构造 Protocol。
func New(opts Options) (*Protocol, error) {
	if opts.Store == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = defaultMaxRedirects
	}
	return &Protocol{
		store:        opts.Store,
		fetcher:      opts.Fetcher,
		logger:       opts.Logger,
		headers:      opts.Headers.Clone(),
		delay:        opts.Delay,
		maxRedirects: maxRedirects,
		metrics:      opts.Metrics,
	}, nil
}

// QuickCheck 仅检查 metadata 是否存在，不读取正文。
func (p *Protocol) QuickCheck(ctx context.Context, rawURL string) (bool, error) {
	key, err := cache.KeyFor(rawURL)
	if err != nil {
		return false, err
	}
	hit, err := p.store.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	p.metrics.observeLookup(hit)
	p.logger.WithFields(logging.DownloadFields("cache_check", rawURL, key.String())).
		WithField("cache_hit", hit).
		Debug("cache check")
	return hit, nil
}

// ResolveStream 在命中时返回正文流（自动跟随重定向记录），未命中时返回 (nil, nil)。
// 调用方负责关闭返回的 Stream。
func (p *Protocol) ResolveStream(ctx context.Context, rawURL string) (*Stream, error) {
	current := rawURL
	seen := make(map[cache.Key]struct{})

	for {
		key, err := cache.KeyFor(current)
		if err != nil {
			return nil, err
		}
		if err := p.visit(seen, key, current); err != nil {
			return nil, err
		}

		rec, err := p.store.ReadMetadata(ctx, key)
		switch {
		case errors.Is(err, cache.ErrNotFound):
			p.metrics.observeLookup(false)
			p.logger.WithFields(logging.DownloadFields("resolve", current, key.String())).Debug("cache miss")
			return nil, nil
		case errors.Is(err, cache.ErrMalformedRecord):
			return nil, &CorruptEntryError{Key: key.String(), Reason: "malformed metadata", Err: err}
		case err != nil:
			return nil, err
		}

		if loc, ok := rec.Location(); ok {
			target, err := resolveLocation(current, loc)
			if err != nil {
				return nil, &CorruptEntryError{Key: key.String(), Reason: "bad redirect location", Err: err}
			}
			p.logger.WithFields(logging.DownloadFields("resolve", current, key.String())).
				WithField("location", target).
				Debug("follow cached redirect")
			current = target
			continue
		}

		name, ok := rec.BodyName()
		if !ok {
			return nil, &CorruptEntryError{Key: key.String(), Reason: "metadata does not specify the body it wrote"}
		}
		body, err := p.store.OpenBody(ctx, key, name)
		if err != nil {
			if errors.Is(err, cache.ErrNotFound) {
				return nil, &CorruptEntryError{Key: key.String(), Reason: "metadata references missing body " + name, Err: err}
			}
			return nil, err
		}

		p.metrics.observeLookup(true)
		return &Stream{ReadCloser: body, URL: current, Key: key, Record: rec}, nil
	}
}

// ForceDownload 无视缓存状态重新下载 rawURL。重定向时先下载目标再写入本条目的
// 重定向记录；正常响应时先写正文，成功后才写 metadata。
func (p *Protocol) ForceDownload(ctx context.Context, rawURL string, headers http.Header) error {
	err := p.forceDownload(ctx, rawURL, p.requestHeaders(headers), make(map[cache.Key]struct{}))
	if err != nil {
		p.metrics.observeFailure(err)
		p.logger.WithError(err).
			WithFields(logrus.Fields{"action": "download", "url": rawURL, "kind": errorKind(err)}).
			Warn("download failed")
	}
	return err
}

// EnsureInCache 命中时直接返回，未命中时执行 ForceDownload。仅依据 metadata 判断命中。
func (p *Protocol) EnsureInCache(ctx context.Context, rawURL string, headers http.Header) error {
	hit, err := p.QuickCheck(ctx, rawURL)
	if err != nil {
		return err
	}
	if hit {
		return nil
	}
	return p.ForceDownload(ctx, rawURL, headers)
}

// EnsureInCacheVerified 与 EnsureInCache 类似，但会完整解析重定向链并打开正文，
// 因此能发现损坏条目；打开的正文流会立即关闭。
func (p *Protocol) EnsureInCacheVerified(ctx context.Context, rawURL string, headers http.Header) error {
	stream, err := p.ResolveStream(ctx, rawURL)
	if err != nil {
		return err
	}
	if stream != nil {
		return stream.Close()
	}
	return p.ForceDownload(ctx, rawURL, headers)
}

// EnsureInCacheThenStream 保证条目已缓存并返回正文流。下载成功后复查仍未命中
// 会返回 ErrInvariantViolation，而不是普通的未命中。
func (p *Protocol) EnsureInCacheThenStream(ctx context.Context, rawURL string, headers http.Header) (*Stream, error) {
	stream, err := p.ResolveStream(ctx, rawURL)
	if err != nil || stream != nil {
		return stream, err
	}

	if err := p.ForceDownload(ctx, rawURL, headers); err != nil {
		return nil, err
	}

	stream, err = p.ResolveStream(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if stream == nil {
		err := fmt.Errorf("%w: download of %s succeeded but the entry is still missing", ErrInvariantViolation, rawURL)
		p.metrics.observeFailure(err)
		return nil, err
	}
	return stream, nil
}

func (p *Protocol) forceDownload(ctx context.Context, rawURL string, headers http.Header, seen map[cache.Key]struct{}) error {
	key, err := cache.KeyFor(rawURL)
	if err != nil {
		return err
	}
	if err := p.visit(seen, key, rawURL); err != nil {
		return err
	}

	p.logger.WithFields(logging.DownloadFields("download", rawURL, key.String())).Debug("GET")
	resp, err := p.fetcher.Fetch(ctx, rawURL, headers)
	if err != nil {
		return &NetworkError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound:
		return p.commitRedirect(ctx, key, rawURL, headers, resp, seen)
	case http.StatusOK:
		return p.commitBody(ctx, key, rawURL, headers, resp)
	default:
		return &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
}

func (p *Protocol) commitRedirect(
	ctx context.Context,
	key cache.Key,
	rawURL string,
	headers http.Header,
	resp *upstream.Response,
	seen map[cache.Key]struct{},
) error {
	loc := resp.Header.Get("Location")
	if loc == "" {
		return &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	target, err := resolveLocation(rawURL, loc)
	if err != nil {
		return fmt.Errorf("%s: bad Location %q: %w", rawURL, loc, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()

	p.logger.WithFields(logging.DownloadFields("redirect", rawURL, key.String())).
		WithFields(logrus.Fields{"status": resp.StatusCode, "location": target}).
		Debug("redirect response")

	// 目标条目必须先提交，否则中途崩溃会留下指向空条目的重定向记录。
	if err := p.forceDownload(ctx, target, headers, seen); err != nil {
		return err
	}

	rec := cache.NewRecord(rawURL, headers, resp.StatusCode, resp.StatusText, resp.Header, cache.NoBodyMarker)
	unlock := p.store.Lock(key)
	defer unlock()
	if err := p.store.WriteMetadata(context.WithoutCancel(ctx), key, rec); err != nil {
		return fmt.Errorf("commit redirect %s: %w", key, err)
	}

	p.metrics.observeRedirect()
	p.logger.WithFields(logging.DownloadFields("commit", rawURL, key.String())).
		WithField("location", target).
		Info("redirect committed")
	return nil
}

func (p *Protocol) commitBody(ctx context.Context, key cache.Key, rawURL string, headers http.Header, resp *upstream.Response) error {
	ext := ResolveExtension(resp.Header, rawURL)
	basename := cache.BodyPrefix + ext

	unlock := p.store.Lock(key)
	written, err := p.store.WriteBody(ctx, key, ext, &networkReader{url: rawURL, r: resp.Body}, cache.BodyOptions{
		ContentType:        resp.Header.Get("Content-Type"),
		ContentDisposition: resp.Header.Get("Content-Disposition"),
	})
	if err != nil {
		unlock()
		var netErr *NetworkError
		if errors.As(err, &netErr) {
			return netErr
		}
		return fmt.Errorf("write body %s: %w", key.BodyPath(basename), err)
	}

	rec := cache.NewRecord(rawURL, headers, resp.StatusCode, resp.StatusText, resp.Header, basename)
	err = p.store.WriteMetadata(context.WithoutCancel(ctx), key, rec)
	unlock()
	if err != nil {
		return fmt.Errorf("commit %s: %w", key, err)
	}

	p.metrics.observeCommit(written)
	p.logger.WithFields(logging.DownloadFields("commit", rawURL, key.String())).
		WithFields(logrus.Fields{"body": basename, "size": written}).
		Info("entry committed")

	p.pause(ctx)
	return nil
}

// visit 记录已访问的 key，发现环或超出跳数上限时报错。
func (p *Protocol) visit(seen map[cache.Key]struct{}, key cache.Key, rawURL string) error {
	if _, dup := seen[key]; dup {
		return fmt.Errorf("%w: %s revisited", ErrRedirectLoop, rawURL)
	}
	if len(seen) > p.maxRedirects {
		return fmt.Errorf("%w: more than %d redirects at %s", ErrRedirectLoop, p.maxRedirects, rawURL)
	}
	seen[key] = struct{}{}
	return nil
}

func (p *Protocol) requestHeaders(headers http.Header) http.Header {
	merged := p.headers.Clone()
	if merged == nil {
		merged = http.Header{}
	}
	for key, values := range headers {
		merged[key] = append([]string(nil), values...)
	}
	return merged
}

func (p *Protocol) pause(ctx context.Context) {
	if p.delay <= 0 {
		return
	}
	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func resolveLocation(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// networkReader 把读取上游正文时的错误标记为网络错误。
type networkReader struct {
	url string
	r   io.Reader
}

func (n *networkReader) Read(b []byte) (int, error) {
	read, err := n.r.Read(b)
	if err != nil && !errors.Is(err, io.EOF) {
		return read, &NetworkError{URL: n.url, Err: err}
	}
	return read, err
}
