package upstream

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

// Response 是一次上游请求的结果：状态、响应头与正文流。
type Response struct {
	URL        string
	StatusCode int
	StatusText string
	Header     http.Header
	Body       io.ReadCloser
}

// Fetcher 发起单次请求，不跟随重定向。调用方负责关闭 Body。
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, headers http.Header) (*Response, error)
}

// ClientOptions 控制上游 http.Client 的超时与信任锚。
type ClientOptions struct {
	Timeout time.Duration
	RootCAs *x509.CertPool
}

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewTransport 返回克隆的共享 Transport，并注入自定义根证书池。
func NewTransport(roots *x509.CertPool) *http.Transport {
	transport := defaultTransport.Clone()
	if roots != nil {
		transport.TLSClientConfig = &tls.Config{
			RootCAs:    roots,
			MinVersion: tls.VersionTLS12,
		}
	}
	return transport
}

// NewClient 返回不跟随重定向的 http.Client，所有下载共享一份实例。
func NewClient(opts ClientOptions) *http.Client {
	timeout := 30 * time.Second
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(opts.RootCAs),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// HTTPFetcher 用 http.Client 实现 Fetcher。
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher 包装 client；传入 nil 时使用默认配置。
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = NewClient(ClientOptions{})
	}
	return &HTTPFetcher{client: client}
}

// ErrUnsupportedScheme 表示 URL 协议不是 http/https。
var ErrUnsupportedScheme = errors.New("unsupported url scheme")

// Fetch 发起 GET 请求；网络错误原样返回，由调用方分类。
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, headers http.Header) (*Response, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	CopyHeaders(req.Header, headers)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}

	return &Response{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		StatusText: statusText(resp),
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// statusText 去掉 resp.Status 中重复的状态码前缀，例如 "200 OK" -> "OK"。
func statusText(resp *http.Response) string {
	prefix := fmt.Sprintf("%d ", resp.StatusCode)
	if text, ok := strings.CutPrefix(resp.Status, prefix); ok {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// hopByHopHeaders 定义 RFC 7230 中禁止代理转发的头部。
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Proxy-Connection":    {}, // 非标准字段，但部分代理仍使用
}

// CopyHeaders 将 src 中允许透传的头复制到 dst，自动忽略 hop-by-hop 字段。
func CopyHeaders(dst, src http.Header) {
	for key, values := range src {
		if isHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func isHopByHopHeader(key string) bool {
	_, ok := hopByHopHeaders[textproto.CanonicalMIMEHeaderKey(key)]
	return ok
}
