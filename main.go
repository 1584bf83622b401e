package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// cliOptions 汇总全局标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

// exitError 携带命令希望返回的退出码。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func failWith(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute 构建命令树并执行，返回退出码，方便测试。
func execute(args []string) int {
	opts := &cliOptions{}
	root := newRootCommand(opts)
	root.SetArgs(args)
	root.SetOut(stdOut)
	root.SetErr(stdErr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintln(stdErr, err.Error())

	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	// cobra 自身的参数错误（未知命令、缺少参数等）。
	return 2
}

func newRootCommand(opts *cliOptions) *cobra.Command {
	var configFlag string

	root := &cobra.Command{
		Use:   "url-cache",
		Short: "URL-keyed download cache and index builder",
		Long: `
url-cache downloads resources exactly once into a directory tree keyed by URL,
records the response metadata next to each body, and builds a browsable JSON
index of everything it has cached.
`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.configPath = resolveConfigPath(configFlag)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 URL_CACHE_CONFIG 覆盖）")

	root.AddCommand(
		newDownloadCommand(opts),
		newFetchCommand(opts),
		newIndexCommand(opts),
		newServeCommand(opts),
		newCheckConfigCommand(opts),
		newVersionCommand(),
	)
	return root
}

// resolveConfigPath 结合 flag 与环境变量计算最终的配置路径。
func resolveConfigPath(flagValue string) string {
	path := os.Getenv("URL_CACHE_CONFIG")
	if flagValue != "" {
		path = flagValue
	}
	if path == "" {
		path = "config.toml"
	}
	return path
}
