package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalUploader 复制到本地目录，开发环境用
type LocalUploader struct {
	dir     string
	prefix  string
	baseURL string
}

func NewLocalUploader(dir, prefix, baseURL string) *LocalUploader {
	return &LocalUploader{dir: dir, prefix: prefix, baseURL: strings.TrimRight(baseURL, "/")}
}

func (u *LocalUploader) Upload(ctx context.Context, localPath, videoID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := ObjectKey(u.prefix, videoID)
	dst := filepath.Join(u.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("创建目录失败: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("打开视频失败: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("创建文件失败: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", fmt.Errorf("复制视频失败: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	if u.baseURL == "" {
		return dst, nil
	}
	return u.baseURL + "/" + key, nil
}
