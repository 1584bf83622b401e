package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/any-hub/url-cache/internal/download"
	"github.com/any-hub/url-cache/internal/logging"
)

// downloadOptions 汇总 download 命令的标志。
type downloadOptions struct {
	listFile        string
	force           bool
	continueOnError bool
	workers         int
}

func newDownloadCommand(opts *cliOptions) *cobra.Command {
	var dlOpts downloadOptions

	cmd := &cobra.Command{
		Use:   "download [flags] [URL] ...",
		Short: "Ensure every URL is in the cache",
		Long: `
The "download" command fetches each URL that is not cached yet and commits it
to the storage tree. URLs come from the arguments and from --file (one per
line, "-" reads stdin, lines starting with # are ignored).

EXIT STATUS
===========

Exit status is 0 if every URL is cached.
Exit status is 1 if at least one URL failed.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, opts, dlOpts, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&dlOpts.listFile, "file", "f", "", "read URLs from `path`, one per line")
	f.BoolVar(&dlOpts.force, "force", false, "download again even when the URL is cached")
	f.BoolVar(&dlOpts.continueOnError, "continue-on-error", false, "keep going after a failed URL")
	f.IntVar(&dlOpts.workers, "workers", 0, "number of concurrent workers (default: Workers from config)")
	return cmd
}

func runDownload(cmd *cobra.Command, opts *cliOptions, dlOpts downloadOptions, args []string) error {
	urls := append([]string(nil), args...)
	if dlOpts.listFile != "" {
		listed, err := readURLList(dlOpts.listFile, cmd.InOrStdin())
		if err != nil {
			return failWith(1, "读取 URL 列表失败: %v", err)
		}
		urls = append(urls, listed...)
	}
	if len(urls) == 0 {
		return failWith(2, "no URLs given")
	}

	svc, err := bootstrap(opts.configPath)
	if err != nil {
		return err
	}

	workers := svc.cfg.Global.Workers
	if dlOpts.workers > 0 {
		workers = dlOpts.workers
	}
	batch := &download.Batch{
		Protocol:        svc.protocol,
		Logger:          svc.logger,
		Workers:         workers,
		MaxRetries:      svc.cfg.Global.MaxRetries,
		InitialBackoff:  svc.cfg.Global.InitialBackoff.DurationValue(),
		Force:           dlOpts.force,
		ContinueOnError: dlOpts.continueOnError,
	}

	summary, runErr := batch.Run(cmd.Context(), urls, nil)

	fields := logging.BaseFields("download", opts.configPath)
	fields["urls"] = len(summary.Results)
	fields["failed"] = summary.Failed
	fields["workers"] = workers
	fields["storage_mode"] = svc.cfg.StorageMode()
	svc.logger.WithFields(fields).Info("批量下载结束")

	for _, result := range summary.Results {
		if result.Err != nil {
			fmt.Fprintf(stdErr, "FAIL %s: %v\n", result.URL, result.Err)
			continue
		}
		fmt.Fprintf(stdOut, "ok   %s\n", result.URL)
	}

	if runErr != nil {
		return failWith(1, "下载失败: %v", runErr)
	}
	if summary.Failed > 0 {
		return failWith(1, "%d of %d URLs failed", summary.Failed, len(summary.Results))
	}
	return nil
}

// readURLList 读取 URL 列表，忽略空行与 # 注释。
func readURLList(path string, stdin io.Reader) ([]string, error) {
	var reader io.Reader
	if path == "-" {
		reader = stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		reader = file
	}

	var urls []string
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}
