package main

import (
	"github.com/spf13/cobra"

	"github.com/any-hub/url-cache/internal/config"
	"github.com/any-hub/url-cache/internal/logging"
)

func newCheckConfigCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckConfig(*opts)
		},
	}
}

// runCheckConfig 只加载并校验配置，不触碰存储目录。
func runCheckConfig(opts cliOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return failWith(1, "加载配置失败: %v", err)
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		return failWith(1, "初始化日志失败: %v", err)
	}

	fields := logging.BaseFields("check_config", opts.configPath)
	fields["storage_path"] = cfg.Global.StoragePath
	fields["storage_mode"] = cfg.StorageMode()
	fields["schemas"] = cfg.Global.Schemas
	fields["result"] = "ok"
	logger.WithFields(fields).Info("配置校验通过")
	return nil
}
