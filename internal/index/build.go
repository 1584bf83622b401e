package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/url-cache/internal/logging"
)

// BuildOptions 描述一次索引生成。Schemas 按优先级排列，靠前者在文件冲突时胜出。
type BuildOptions struct {
	Fs          afero.Fs
	StoragePath string
	Schemas     []string
	// Sizer 接收相对存储根目录的条目路径（即缓存 key）。
	Sizer  BodySizer
	Logger *logrus.Logger
}

// Build 并行扫描每个 schema 根目录，按优先级合并并规范化。
func Build(ctx context.Context, opts BuildOptions) ([]Node, error) {
	if opts.Fs == nil {
		return nil, errors.New("index build requires a filesystem")
	}
	if len(opts.Schemas) == 0 {
		return nil, errors.New("index build requires at least one schema")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	started := time.Now()
	trees := make([][]Node, len(opts.Schemas))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, schema := range opts.Schemas {
		i, schema := i, schema
		root :=filepath.Join(opts.StoragePath, schema)
		group.Go(func() error {
			nodes, err := Scan(groupCtx, opts.Fs, root, schema, schemaSizer(opts.Sizer, schema))
			if err != nil {
				return fmt.Errorf("scan %s: %w", schema, err)
			}
			logger.WithFields(logging.IndexFields("index_scan", schema, root)).
				WithField("nodes", len(nodes)).
				Debug("schema scanned")
			trees[i] = nodes
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	merged := trees[0]
	for _, tree := range trees[1:] {
		merged = Merge(merged, tree)
	}
	result := NormalizeAll(merged)

	logger.WithFields(logrus.Fields{
		"action":   "index_build",
		"schemas":  opts.Schemas,
		"nodes":    len(result),
		"duration": time.Since(started).String(),
	}).Info("index built")
	return result, nil
}

// schemaSizer 把相对 schema 根目录的路径转换为相对存储根目录的路径。
func schemaSizer(sizer BodySizer, schema string) BodySizer {
	if sizer == nil {
		return nil
	}
	return func(ctx context.Context, rel, basename string) (int64, error) {
		return sizer(ctx, schema+"/"+rel, basename)
	}
}

// WriteJSON 先写临时文件再 rename，读者不会看到半截索引。
func WriteJSON(fsys afero.Fs, target string, nodes []Node) error {
	if nodes == nil {
		nodes = []Node{}
	}
	data, err := json.Marshal(nodes)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	dir := filepath.Dir(target)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tempName := filepath.Join(dir, ".index-"+uuid.NewString())
	if err := afero.WriteFile(fsys, tempName, data, 0o644); err != nil {
		_ = fsys.Remove(tempName)
		return err
	}
	if err := fsys.Rename(tempName, target); err != nil {
		_ = fsys.Remove(tempName)
		return err
	}
	return nil
}
