package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/any-hub/url-cache/internal/logging"
)

func newFetchCommand(opts *cliOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "fetch [flags] URL",
		Short: "Print the cached body of a URL, downloading it first if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, opts, args[0], output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the body to `path` instead of stdout")
	return cmd
}

func runFetch(cmd *cobra.Command, opts *cliOptions, rawURL, output string) error {
	svc, err := bootstrap(opts.configPath)
	if err != nil {
		return err
	}

	stream, err := svc.protocol.EnsureInCacheThenStream(cmd.Context(), rawURL, nil)
	if err != nil {
		return failWith(1, "获取 %s 失败: %v", rawURL, err)
	}
	defer stream.Close()

	var dst io.Writer = stdOut
	if output != "" {
		file, err := os.Create(output)
		if err != nil {
			return failWith(1, "创建输出文件失败: %v", err)
		}
		defer file.Close()
		dst = file
	}

	written, err := io.Copy(dst, stream)
	if err != nil {
		return failWith(1, "读取缓存失败: %v", err)
	}

	fields := logging.DownloadFields("fetch", rawURL, stream.Key.String())
	fields["resolved_url"] = stream.URL
	fields["size"] = written
	svc.logger.WithFields(fields).Debug("body streamed")
	return nil
}
