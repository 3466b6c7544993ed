package render

import (
	"fmt"
	"sort"

	"github.com/z-wentao/slidecast/pkg/models"
	"github.com/z-wentao/slidecast/pkg/timeline"
)

// Plan 编码所需的全部输入：图层、混音文件、帧率、画面尺寸
// 创建后只读
type Plan struct {
	layers    []timeline.Layer
	audioPath string
	fps       int
	frame     timeline.Size
	total     float64
}

// NewPlan 校验并冻结渲染计划，图层按 z 序（相同 z 按开始时间）排列
func NewPlan(layers []timeline.Layer, audioPath string, fps int, frame timeline.Size, total float64) (*Plan, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("渲染计划没有图层: %w", models.ErrEmptyInput)
	}
	if audioPath == "" {
		return nil, fmt.Errorf("渲染计划缺少混音: %w", models.ErrMissingAsset)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("无效的帧率: %d", fps)
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		return nil, fmt.Errorf("无效的画面尺寸 %dx%d", frame.Width, frame.Height)
	}
	if total <= 0 {
		return nil, fmt.Errorf("视频时长 %.3fs: %w", total, models.ErrInvalidDuration)
	}

	sorted := make([]timeline.Layer, len(layers))
	copy(sorted, layers)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Z != sorted[j].Z {
			return sorted[i].Z < sorted[j].Z
		}
		return sorted[i].Start < sorted[j].Start
	})
	for i, l := range sorted {
		if l.End <= l.Start {
			return nil, fmt.Errorf("图层 %d 时长无效 [%.3f, %.3f): %w", i, l.Start, l.End, models.ErrInvalidDuration)
		}
		if l.Kind == timeline.KindSlide && l.Image == "" {
			return nil, fmt.Errorf("图层 %d 缺少图片: %w", i, models.ErrMissingAsset)
		}
	}

	return &Plan{
		layers:    sorted,
		audioPath: audioPath,
		fps:       fps,
		frame:     frame,
		total:     total,
	}, nil
}

// Layers 返回图层副本
func (p *Plan) Layers() []timeline.Layer {
	out := make([]timeline.Layer, len(p.layers))
	copy(out, p.layers)
	return out
}

func (p *Plan) AudioPath() string { return p.audioPath }

func (p *Plan) FPS() int { return p.fps }

func (p *Plan) Frame() timeline.Size { return p.frame }

// TotalSeconds 视频总时长，等于旁白总时长
func (p *Plan) TotalSeconds() float64 { return p.total }
