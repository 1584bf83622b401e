package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/any-hub/url-cache/internal/index"
	"github.com/any-hub/url-cache/internal/logging"
)

func newIndexCommand(opts *cliOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "index [flags]",
		Short: "Generate the JSON index of the cache tree",
		Long: `
The "index" command scans every configured schema root, merges them with the
first schema winning name collisions, and writes the normalized index
atomically to IndexPath (or --output).
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := bootstrap(opts.configPath)
			if err != nil {
				return err
			}

			nodes, err := svc.buildIndex(cmd.Context())
			if err != nil {
				return failWith(1, "生成索引失败: %v", err)
			}

			target := svc.cfg.Global.IndexPath
			if output != "" {
				target = output
			}
			if err := index.WriteJSON(svc.fs, target, nodes); err != nil {
				return failWith(1, "写入索引失败: %v", err)
			}

			fields := logging.BaseFields("index", opts.configPath)
			fields["output"] = target
			fields["schemas"] = svc.cfg.Global.Schemas
			fields["nodes"] = len(nodes)
			svc.logger.WithFields(fields).Info("索引已写入")
			fmt.Fprintln(stdOut, target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the index to `path` instead of IndexPath")
	return cmd
}
