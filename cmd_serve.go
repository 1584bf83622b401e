package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/any-hub/url-cache/internal/logging"
	"github.com/any-hub/url-cache/internal/server"
	"github.com/any-hub/url-cache/internal/server/routes"
	"github.com/any-hub/url-cache/internal/version"
)

func newServeCommand(opts *cliOptions) *cobra.Command {
	var allowFetch bool

	cmd := &cobra.Command{
		Use:   "serve [flags]",
		Short: "Serve the index and cached bodies over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := bootstrap(opts.configPath)
			if err != nil {
				return err
			}
			if err := startHTTPServer(cmd.Context(), svc, opts.configPath, allowFetch); err != nil {
				return failWith(1, "HTTP 服务启动失败: %v", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&allowFetch, "allow-fetch", false, "let /-/cache?fetch=1 download cache misses")
	return cmd
}

func startHTTPServer(ctx context.Context, svc *services, configPath string, allowFetch bool) error {
	indexFile := &server.IndexFile{
		Fs:    svc.fs,
		Path:  svc.cfg.Global.IndexPath,
		Build: svc.buildIndex,
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     svc.logger,
		Resolver:   svc.protocol,
		Index:      indexFile,
		AllowFetch: allowFetch,
	})
	if err != nil {
		return err
	}
	routes.RegisterDiagnostics(app, svc.registry, routes.StorageInfo{
		Mode:         svc.cfg.StorageMode(),
		StoragePath:  svc.cfg.Global.StoragePath,
		IndexPath:    svc.cfg.Global.IndexPath,
		Schemas:      svc.cfg.Global.Schemas,
		RemoteBucket: svc.cfg.Remote.Bucket,
	})

	port := svc.cfg.Global.ListenPort
	fields := logging.BaseFields("startup", configPath)
	fields["listen_port"] = port
	fields["storage_mode"] = svc.cfg.StorageMode()
	fields["allow_fetch"] = allowFetch
	fields["version"] = version.Full()
	svc.logger.WithFields(fields).Info("配置加载完成")

	svc.logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	// 收到 SIGINT/SIGTERM 后停止接收新连接，等待进行中的请求结束。
	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			svc.logger.WithError(err).Warn("Fiber 服务关闭失败")
		}
	}()

	return app.Listen(fmt.Sprintf(":%d", port))
}
