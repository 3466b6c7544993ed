package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/z-wentao/slidecast/pkg/logger"
	"github.com/z-wentao/slidecast/pkg/models"
)

// ErrTooLarge 下载内容超过上限
var ErrTooLarge = errors.New("文件超过大小上限")

// Layout 决定第 i 个素材落盘的位置（从 1 开始）
type Layout interface {
	AudioPath(i int) string
	ImagePath(i int) string
}

type Options struct {
	Timeout     time.Duration // 单个文件
	Concurrency int
	MaxBytes    int64 // 0 表示不限制
}

func DefaultOptions() Options {
	return Options{Timeout: 30 * time.Second, Concurrency: 4, MaxBytes: 200 << 20}
}

// Fetcher 并发下载语音和配图
type Fetcher struct {
	client *http.Client
	opts   Options
	log    *logger.Logger
}

func NewFetcher(opts Options, log *logger.Logger) *Fetcher {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	return &Fetcher{
		client: &http.Client{},
		opts:   opts,
		log:    log.With("service", "AssetFetcher"),
	}
}

type download struct {
	url  string
	path string
}

// Fetch 下载 wav_urls[i] 到 AudioPath(i+1)，image_urls[i] 到 ImagePath(i+1)
// 任意一个失败会取消其余下载
func (f *Fetcher) Fetch(ctx context.Context, wavURLs, imageURLs []string, dst Layout) error {
	if len(wavURLs) != len(imageURLs) {
		return fmt.Errorf("%w: %d 段语音, %d 张图片", models.ErrInputMismatch, len(wavURLs), len(imageURLs))
	}

	jobs := make([]download, 0, 2*len(wavURLs))
	for i, u := range wavURLs {
		jobs = append(jobs, download{url: u, path: dst.AudioPath(i + 1)})
	}
	for i, u := range imageURLs {
		jobs = append(jobs, download{url: u, path: dst.ImagePath(i + 1)})
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Concurrency)
	for _, d := range jobs {
		d := d
		g.Go(func() error {
			return f.get(gctx, d)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	f.log.Debug("素材下载完成", "files", len(jobs), "elapsed", time.Since(start).String())
	return nil
}

func (f *Fetcher) get(ctx context.Context, d download) error {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return fmt.Errorf("构造请求 %s 失败: %w", d.url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("下载 %s 失败: %w: %w", d.url, models.ErrMissingAsset, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("下载 %s 失败: %w: HTTP %d", d.url, models.ErrMissingAsset, resp.StatusCode)
	}
	if f.opts.MaxBytes > 0 && resp.ContentLength > f.opts.MaxBytes {
		return fmt.Errorf("%s: %w (%d > %d)", d.url, ErrTooLarge, resp.ContentLength, f.opts.MaxBytes)
	}

	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return err
	}
	tmp := d.path + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("创建文件失败: %w", err)
	}

	var body io.Reader = resp.Body
	if f.opts.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.opts.MaxBytes+1)
	}
	n, err := io.Copy(out, body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && f.opts.MaxBytes > 0 && n > f.opts.MaxBytes {
		err = fmt.Errorf("%s: %w", d.url, ErrTooLarge)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("保存 %s 失败: %w", d.url, err)
	}
	return os.Rename(tmp, d.path)
}
