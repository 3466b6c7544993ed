package models

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	MinFPS     = 10
	MaxFPS     = 60
	DefaultFPS = 30
)

// RenderRequest 生成视频请求
type RenderRequest struct {
	Transcripts []string `json:"transcripts" binding:"required"`
	WavURLs     []string `json:"wav_urls" binding:"required"`
	ImageURLs   []string `json:"image_urls" binding:"required"`
	FPS         int      `json:"fps"`
	ShowScript  bool     `json:"show_script"`
	ID          string   `json:"id" binding:"required"`
}

// Normalize 去除文稿首尾空白，补全默认帧率
func (r *RenderRequest) Normalize() {
	for i, s := range r.Transcripts {
		r.Transcripts[i] = strings.TrimSpace(s)
	}
	if r.FPS == 0 {
		r.FPS = DefaultFPS
	}
}

// Validate 校验请求（需先调用 Normalize）
func (r *RenderRequest) Validate() error {
	if len(r.Transcripts) == 0 || len(r.WavURLs) == 0 || len(r.ImageURLs) == 0 {
		return fmt.Errorf("transcripts、wav_urls、image_urls 不能为空: %w", ErrEmptyInput)
	}
	if len(r.Transcripts) != len(r.WavURLs) || len(r.WavURLs) != len(r.ImageURLs) {
		return fmt.Errorf("数量不匹配: transcripts=%d, wav_urls=%d, image_urls=%d: %w",
			len(r.Transcripts), len(r.WavURLs), len(r.ImageURLs), ErrInputMismatch)
	}
	for i, s := range r.Transcripts {
		if s == "" {
			return fmt.Errorf("第 %d 段文稿为空: %w", i+1, ErrEmptyInput)
		}
	}
	for _, list := range [][]string{r.WavURLs, r.ImageURLs} {
		for _, raw := range list {
			if err := validateHTTPURL(raw); err != nil {
				return err
			}
		}
	}
	if r.FPS < MinFPS || r.FPS > MaxFPS {
		return fmt.Errorf("fps 必须在 %d-%d 之间，当前 %d", MinFPS, MaxFPS, r.FPS)
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("id 不能为空")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("无效的 URL: %q", raw)
	}
	return nil
}
