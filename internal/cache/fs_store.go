package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Option 配置 NewStore 创建的存储实例。
type Option func(*fileStore)

// WithFs 替换底层文件系统，测试中通常传入 afero.NewMemMapFs()。
func WithFs(fsys afero.Fs) Option {
	return func(s *fileStore) {
		s.fs = fsys
	}
}

// WithBodies 将正文写入指定后端（例如对象存储），metadata 仍保存在本地。
func WithBodies(bodies BodyBackend) Option {
	return func(s *fileStore) {
		s.bodies = bodies
	}
}

// NewStore 以 basePath 为根目录构建缓存存储，整个进程复用一份实例。
func NewStore(basePath string, opts ...Option) (Store, error) {
	s := &fileStore{
		fs:    afero.NewOsFs(),
		locks: make(map[Key]*entryLock),
	}
	for _, opt := range opts {
		opt(s)
	}

	if basePath == "" {
		if _, isOS := s.fs.(*afero.OsFs); isOS {
			return nil, errors.New("storage path required")
		}
		basePath = "/"
	}
	if _, isOS := s.fs.(*afero.OsFs); isOS {
		abs, err := filepath.Abs(basePath)
		if err != nil {
			return nil, fmt.Errorf("resolve storage path: %w", err)
		}
		basePath = abs
	}

	if err := s.fs.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}
	s.basePath = basePath

	if s.bodies == nil {
		s.bodies = &localBodies{fs: s.fs, basePath: basePath}
	}
	return s, nil
}

// fileStore 通过 entryLock 避免同一 Key 并发提交，metadata 始终落在本地文件系统。
type fileStore struct {
	fs       afero.Fs
	basePath string
	bodies   BodyBackend

	mu    sync.Mutex
	locks map[Key]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Exists(ctx context.Context, key Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := s.fs.Stat(s.abs(key.MetadataPath()))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (s *fileStore) ReadMetadata(ctx context.Context, key Key) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	data, err := afero.ReadFile(s.fs, s.abs(key.MetadataPath()))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	rec, err := ParseRecord(data)
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", key.MetadataPath(), err)
	}
	return rec, nil
}

func (s *fileStore) WriteBody(ctx context.Context, key Key, ext string, body io.Reader, opts BodyOptions) (int64, error) {
	if err := s.fs.MkdirAll(s.abs(string(key)), 0o755); err != nil {
		return 0, err
	}
	return s.bodies.PutBody(ctx, key.BodyPath(BodyPrefix+ext), body, opts)
}

func (s *fileStore) WriteMetadata(ctx context.Context, key Key, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := s.abs(string(key))
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeFileAtomic(ctx, s.fs, s.abs(key.MetadataPath()), bytes.NewReader(rec.Marshal()))
}

func (s *fileStore) OpenBody(ctx context.Context, key Key, basename string) (io.ReadCloser, error) {
	return s.bodies.OpenBody(ctx, key.BodyPath(basename))
}

func (s *fileStore) BodySize(ctx context.Context, key Key, basename string) (int64, error) {
	return s.bodies.BodySize(ctx, key.BodyPath(basename))
}

func (s *fileStore) Lock(key Key) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *fileStore) abs(rel string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(rel))
}

// localBodies 把正文写在与 metadata 相同的目录中。
type localBodies struct {
	fs       afero.Fs
	basePath string
}

func (b *localBodies) PutBody(ctx context.Context, name string, body io.Reader, _ BodyOptions) (int64, error) {
	target := filepath.Join(b.basePath, filepath.FromSlash(name))
	if err := b.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	return writeFileAtomicN(ctx, b.fs, target, body)
}

func (b *localBodies) OpenBody(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := b.fs.Open(filepath.Join(b.basePath, filepath.FromSlash(name)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (b *localBodies) BodySize(_ context.Context, name string) (int64, error) {
	info, err := b.fs.Stat(filepath.Join(b.basePath, filepath.FromSlash(name)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return info.Size(), nil
}

func writeFileAtomic(ctx context.Context, fsys afero.Fs, target string, body io.Reader) error {
	_, err := writeFileAtomicN(ctx, fsys, target, body)
	return err
}

// writeFileAtomicN 先写临时文件再 rename，读者永远看不到半截文件。
func writeFileAtomicN(ctx context.Context, fsys afero.Fs, target string, body io.Reader) (int64, error) {
	tempName := filepath.Join(filepath.Dir(target), ".tmp-"+uuid.NewString())

	tempFile, err := fsys.Create(tempName)
	if err != nil {
		return 0, err
	}

	written, err := copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = fsys.Remove(tempName)
		return written, err
	}

	if err := fsys.Rename(tempName, target); err != nil {
		_ = fsys.Remove(tempName)
		return written, err
	}
	return written, nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
