package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/any-hub/url-cache/internal/cache"
	"github.com/any-hub/url-cache/internal/config"
	"github.com/any-hub/url-cache/internal/download"
	"github.com/any-hub/url-cache/internal/index"
	"github.com/any-hub/url-cache/internal/logging"
	"github.com/any-hub/url-cache/internal/upstream"
)

// services 持有一次命令执行所需的全部共享组件。
type services struct {
	cfg      *config.Config
	logger   *logrus.Logger
	fs       afero.Fs
	store    cache.Store
	protocol *download.Protocol
	registry *prometheus.Registry
}

// bootstrap 遵循“配置 → 日志 → 信任锚 → 存储 → 协议”顺序，
// 保证所有下载共享统一的 store 与 http.Client。
func bootstrap(configPath string) (*services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, failWith(1, "加载配置失败: %v", err)
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		return nil, failWith(1, "初始化日志失败: %v", err)
	}

	roots, err := upstream.LoadTrustAnchors(cfg.Global.TrustAnchorDir, cfg.Global.ExtraTrustAnchors)
	if err != nil {
		return nil, failWith(1, "加载信任锚失败: %v", err)
	}

	var storeOpts []cache.Option
	if cfg.Remote.Enabled() {
		bodies, err := cache.NewObjectBodies(cache.ObjectConfig{
			Endpoint:  cfg.Remote.Endpoint,
			Bucket:    cfg.Remote.Bucket,
			AccessKey: cfg.Remote.AccessKey,
			SecretKey: cfg.Remote.SecretKey,
			Region:    cfg.Remote.Region,
			UseSSL:    cfg.Remote.UseSSL,
			Transport: upstream.NewTransport(roots),
		})
		if err != nil {
			return nil, failWith(1, "初始化对象存储失败: %v", err)
		}
		storeOpts = append(storeOpts, cache.WithBodies(bodies))
	}

	fsys := afero.NewOsFs()
	storeOpts = append(storeOpts, cache.WithFs(fsys))
	store, err := cache.NewStore(cfg.Global.StoragePath, storeOpts...)
	if err != nil {
		return nil, failWith(1, "初始化缓存目录失败: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client := upstream.NewClient(upstream.ClientOptions{
		Timeout: cfg.Global.UpstreamTimeout.DurationValue(),
		RootCAs: roots,
	})
	protocol, err := download.New(download.Options{
		Store:        store,
		Fetcher:      upstream.NewHTTPFetcher(client),
		Logger:       logger,
		Headers:      cfg.Headers(),
		Delay:        cfg.Global.DownloadDelay.DurationValue(),
		MaxRedirects: cfg.Global.MaxRedirects,
		Metrics:      download.NewMetrics(registry),
	})
	if err != nil {
		return nil, failWith(1, "初始化下载协议失败: %v", err)
	}

	return &services{
		cfg:      cfg,
		logger:   logger,
		fs:       fsys,
		store:    store,
		protocol: protocol,
		registry: registry,
	}, nil
}

// buildIndex 扫描所有 schema 根目录；正文可能在对象存储中，因此大小经由 store 查询。
func (svc *services) buildIndex(ctx context.Context) ([]index.Node, error) {
	return index.Build(ctx, index.BuildOptions{
		Fs:          svc.fs,
		StoragePath: svc.cfg.Global.StoragePath,
		Schemas:     svc.cfg.Global.Schemas,
		Sizer: func(ctx context.Context, rel, basename string) (int64, error) {
			return svc.store.BodySize(ctx, cache.Key(rel), basename)
		},
		Logger: svc.logger,
	})
}
