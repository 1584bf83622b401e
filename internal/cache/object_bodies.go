package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectConfig 描述 S3 兼容对象存储的连接参数。
type ObjectConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	// Transport 允许注入带额外信任锚的 RoundTripper。
	Transport http.RoundTripper
}

// objectBodies 将正文流式写入对象存储，键与本地布局一致。
type objectBodies struct {
	client *minio.Client
	bucket string
}

// NewObjectBodies 根据配置创建基于 minio-go 的正文后端。
func NewObjectBodies(cfg ObjectConfig) (BodyBackend, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("object endpoint required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("object bucket required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create object client: %w", err)
	}
	return &objectBodies{client: client, bucket: cfg.Bucket}, nil
}

func (o *objectBodies) PutBody(ctx context.Context, name string, body io.Reader, opts BodyOptions) (int64, error) {
	info, err := o.client.PutObject(ctx, o.bucket, name, body, -1, minio.PutObjectOptions{
		ContentType:        opts.ContentType,
		ContentDisposition: opts.ContentDisposition,
		CacheControl:       "public, max-age=3600",
	})
	if err != nil {
		return 0, fmt.Errorf("put object %s: %w", name, err)
	}
	return info.Size, nil
}

func (o *objectBodies) OpenBody(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := o.client.GetObject(ctx, o.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateObjectError(err)
	}
	// GetObject 延迟到首次读取才发请求，这里用 Stat 提前暴露 NoSuchKey。
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, translateObjectError(err)
	}
	return obj, nil
}

func (o *objectBodies) BodySize(ctx context.Context, name string) (int64, error) {
	info, err := o.client.StatObject(ctx, o.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return 0, translateObjectError(err)
	}
	return info.Size, nil
}

func translateObjectError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return ErrNotFound
	}
	return err
}
