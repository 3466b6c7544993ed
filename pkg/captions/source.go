package captions

import (
	"context"

	"github.com/z-wentao/slidecast/pkg/audio"
	"github.com/z-wentao/slidecast/pkg/models"
)

// Request 生成字幕需要的输入
type Request struct {
	AudioPath   string          // 最终混音（WAV）
	Transcripts []string        // 各段文稿，按顺序
	Narration   audio.Narration // 旁白时长账本
	Language    string          // 可选，空则自动检测
}

// Source 字幕来源：外部转写服务或文稿本身
type Source interface {
	Captions(ctx context.Context, req Request) ([]models.Caption, error)
}
