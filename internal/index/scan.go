package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"

	"github.com/any-hub/url-cache/internal/cache"
)

// BodySizer 返回某个条目正文的大小。rel 为条目相对 schema 根目录的路径。
// 正文存放在对象存储时由调用方提供；为空时直接 stat 本地文件。
type BodySizer func(ctx context.Context, rel, basename string) (int64, error)

// Scan 递归扫描 schemaRoot，返回排序后的节点序列。根目录不存在时返回空序列。
// 含 metadata 的目录仍作为目录返回，其中的条目本身以未命名文件节点出现，
// 由 Normalize 决定最终名字。重定向记录没有正文，不进入索引。
func Scan(ctx context.Context, fsys afero.Fs, schemaRoot, schema string, sizer BodySizer) ([]Node, error) {
	info, err := fsys.Stat(schemaRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Node{}, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("schema root %s is not a directory", schemaRoot)
	}

	s := &scanner{fs: fsys, root: schemaRoot, schema: schema, sizer: sizer}
	if s.sizer == nil {
		s.sizer = s.localSize
	}
	return s.readDir(ctx, "")
}

type scanner struct {
	fs     afero.Fs
	root   string
	schema string
	sizer  BodySizer
}

func (s *scanner) readDir(ctx context.Context, rel string) ([]Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(s.fs, s.abs(rel))
	if err != nil {
		return nil, err
	}

	nodes := make([]Node, 0, len(entries))
	for _, entry := range entries {
		childRel := path.Join(rel, entry.Name())
		switch {
		case entry.IsDir():
			children, err := s.readDir(ctx, childRel)
			if err != nil {
				return nil, err
			}
			dir := Node{Kind: KindDirectory, Name: entry.Name(), Path: childRel, Children: children}
			for _, child := range children {
				dir.NFiles += child.fileCount()
				dir.Size += child.Size
			}
			nodes = append(nodes, dir)
		case entry.Mode().IsRegular() && entry.Name() == cache.MetadataName:
			file, ok, err := s.readEntry(ctx, rel)
			if err != nil {
				return nil, err
			}
			if ok {
				nodes = append(nodes, file)
			}
		}
	}

	slices.SortStableFunc(nodes, compareNodes)
	return nodes, nil
}

// readEntry 把 rel 目录下的 metadata 转换为未命名文件节点。
func (s *scanner) readEntry(ctx context.Context, rel string) (Node, bool, error) {
	metaPath := path.Join(rel, cache.MetadataName)
	data, err := afero.ReadFile(s.fs, s.abs(metaPath))
	if err != nil {
		return Node{}, false, err
	}
	rec, err := cache.ParseRecord(data)
	if err != nil {
		return Node{}, false, fmt.Errorf("%s/%s: %w", s.schema, metaPath, err)
	}
	if _, redirect := rec.Location(); redirect {
		return Node{}, false, nil
	}
	basename, ok := rec.BodyName()
	if !ok {
		return Node{}, false, fmt.Errorf("%s/%s: %w: no body filename in trailer", s.schema, metaPath, cache.ErrMalformedRecord)
	}

	size, err := s.sizer(ctx, rel, basename)
	if err != nil {
		return Node{}, false, fmt.Errorf("%s/%s: %w", s.schema, path.Join(rel, basename), err)
	}
	return Node{
		Kind:        KindFile,
		Name:        selfName,
		ContentType: rec.ContentType(),
		Size:        size,
		Schema:      s.schema,
		Path:        path.Join(rel, basename),
	}, true, nil
}

func (s *scanner) localSize(_ context.Context, rel, basename string) (int64, error) {
	info, err := s.fs.Stat(s.abs(path.Join(rel, basename)))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *scanner) abs(rel string) string {
	if rel == "" {
		return s.root
	}
	return filepath.Join(s.root, filepath.FromSlash(rel))
}
