package cache

import (
	"context"
	"errors"
	"io"
)

// Store 负责管理缓存条目的读写。磁盘布局遵循：
//
//	<StoragePath>/<schema>/<host>/<segments...>/metadata   # 提交标记
//	<StoragePath>/<schema>/<host>/<segments...>/body<ext>  # 实际正文
//
// Store 不提供事务：调用方必须先 WriteBody 再 WriteMetadata，
// 只有 metadata 存在时条目才算命中。
type Store interface {
	// Exists 仅检查 metadata 是否存在，不校验正文。
	Exists(ctx context.Context, key Key) (bool, error)

	// ReadMetadata 读取并解析 metadata；不存在时返回 ErrNotFound，
	// 内容无法解析时返回包装了 ErrMalformedRecord 的错误。
	ReadMetadata(ctx context.Context, key Key) (Record, error)

	// WriteBody 将正文写为 body<ext>，返回写入字节数。
	WriteBody(ctx context.Context, key Key, ext string, body io.Reader, opts BodyOptions) (int64, error)

	// WriteMetadata 写入 metadata 记录，即提交条目。
	WriteMetadata(ctx context.Context, key Key, rec Record) error

	// OpenBody 打开已提交条目的正文，basename 来自 metadata 尾部。
	OpenBody(ctx context.Context, key Key, basename string) (io.ReadCloser, error)

	// BodySize 返回正文大小，供索引构建使用。
	BodySize(ctx context.Context, key Key, basename string) (int64, error)

	// Lock 获取 key 级别的提交锁，返回解锁函数。
	Lock(key Key) func()
}

// BodyOptions 携带写入正文时可选的对象属性，远端存储会使用它们。
type BodyOptions struct {
	ContentType        string
	ContentDisposition string
}

// BodyBackend 抽象正文的实际存放位置（本地文件系统或对象存储）。
// name 为相对存储根目录的 `/` 分隔路径。
type BodyBackend interface {
	PutBody(ctx context.Context, name string, body io.Reader, opts BodyOptions) (int64, error)
	OpenBody(ctx context.Context, name string) (io.ReadCloser, error)
	BodySize(ctx context.Context, name string) (int64, error)
}

// ErrNotFound 表示缓存条目（或其正文）不存在。
var ErrNotFound = errors.New("cache entry not found")
