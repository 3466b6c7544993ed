package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/z-wentao/slidecast/pkg/logger"
)

type GCSUploader struct {
	client     *storage.Client
	bucket     string
	prefix     string
	makePublic bool
	log        *logger.Logger
}

// NewGCSUploader credsPath 为空时使用默认凭据链
func NewGCSUploader(ctx context.Context, bucket, prefix, credsPath string, makePublic bool, log *logger.Logger) (*GCSUploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("缺少 GCS bucket")
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeFullControl)}
	if credsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credsPath))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("创建 GCS 客户端失败: %w", err)
	}
	return &GCSUploader{
		client:     client,
		bucket:     bucket,
		prefix:     prefix,
		makePublic: makePublic,
		log:        log.With("service", "GCSUploader", "bucket", bucket),
	}, nil
}

func (u *GCSUploader) Upload(ctx context.Context, localPath, videoID string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("打开视频失败: %w", err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	key := ObjectKey(u.prefix, videoID)
	obj := u.client.Bucket(u.bucket).Object(key)
	w := obj.NewWriter(ctx)
	w.ContentType = "video/mp4"
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("写入 GCS 失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("关闭 GCS writer 失败: %w", err)
	}

	// 公开失败不影响结果，bucket 可能开启了统一访问控制
	if u.makePublic {
		if err := obj.ACL().Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
			u.log.Warn("设置公开访问失败", "key", key, "error", err)
		}
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, key), nil
}

func (u *GCSUploader) Close() error {
	return u.client.Close()
}
