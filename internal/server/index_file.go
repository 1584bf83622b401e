package server

import (
	"context"
	"errors"
	"io/fs"
	"sync"

	"github.com/spf13/afero"

	"github.com/any-hub/url-cache/internal/index"
)

// IndexFile serves the index document written by the last generation run and
// builds it on demand when no document exists yet.
type IndexFile struct {
	Fs    afero.Fs
	Path  string
	Build func(ctx context.Context) ([]index.Node, error)

	mu sync.Mutex
}

// Load 读取索引文件；文件不存在时生成一次并落盘。
func (f *IndexFile) Load(ctx context.Context) ([]byte, error) {
	data, err := afero.ReadFile(f.Fs, f.Path)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) || f.Build == nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// 等锁期间可能已有请求生成完毕。
	if data, err := afero.ReadFile(f.Fs, f.Path); err == nil {
		return data, nil
	}

	nodes, err := f.Build(ctx)
	if err != nil {
		return nil, err
	}
	if err := index.WriteJSON(f.Fs, f.Path, nodes); err != nil {
		return nil, err
	}
	return afero.ReadFile(f.Fs, f.Path)
}
