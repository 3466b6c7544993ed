package timeline

import (
	"fmt"

	"github.com/z-wentao/slidecast/pkg/audio"
	"github.com/z-wentao/slidecast/pkg/models"
)

// Options 时间轴参数
type Options struct {
	ZoomRate       float64 `yaml:"zoom_rate"`       // 幻灯片每秒放大比例
	SlideFade      float64 `yaml:"slide_fade"`      // 幻灯片淡入淡出（秒）
	CaptionFade    float64 `yaml:"caption_fade"`    // 字幕淡入淡出（秒）
	StrictCaptions bool    `yaml:"strict_captions"` // 字幕有问题时直接失败
}

func DefaultOptions() Options {
	return Options{
		ZoomRate:    0.04,
		SlideFade:   0.5,
		CaptionFade: 0.1,
	}
}

// Result 时间轴构建结果
type Result struct {
	Layers   []Layer        `json:"layers"`
	Slides   int            `json:"slides"`
	Captions int            `json:"captions"`
	Total    float64        `json:"total"`
	Issues   []CaptionIssue `json:"issues,omitempty"`
}

type Builder struct {
	opts Options
}

func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts}
}

// Build 把图片和旁白时长排成首尾相接的幻灯片，再把字幕叠在所有幻灯片之上
//
// 第 i 张幻灯片持续 段 i 时长 + 一个静音间隔，最后一张没有后续间隔，
// 所以幻灯片总跨度恰好等于旁白总时长。偏移量按音频帧累加后再换算成秒，
// 相邻两张的边界是同一个浮点数。
func (b *Builder) Build(images []string, n audio.Narration, frame Size, captions []models.Caption) (*Result, error) {
	if len(images) == 0 || n.Count() == 0 {
		return nil, fmt.Errorf("构建时间轴: %w", models.ErrEmptyInput)
	}
	if len(images) != n.Count() {
		return nil, fmt.Errorf("图片 %d 张，语音 %d 段: %w", len(images), n.Count(), models.ErrInputMismatch)
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		return nil, fmt.Errorf("无效的画面尺寸 %dx%d", frame.Width, frame.Height)
	}

	res := &Result{
		Layers: make([]Layer, 0, len(images)+len(captions)),
		Total:  n.TotalSeconds(),
	}

	cursor := 0
	for i, img := range images {
		if img == "" {
			return nil, fmt.Errorf("第 %d 张图片路径为空: %w", i+1, models.ErrMissingAsset)
		}
		frames := n.SegmentFrames[i]
		if i < len(images)-1 {
			frames += n.GapFrames
		}
		start, end := n.Seconds(cursor), n.Seconds(cursor+frames)
		cursor += frames

		fade := clampFade(b.opts.SlideFade, end-start)
		res.Layers = append(res.Layers, Layer{
			Kind:    KindSlide,
			Z:       i,
			Start:   start,
			End:     end,
			Image:   img,
			FadeIn:  fade,
			FadeOut: fade,
			Zoom:    b.opts.ZoomRate,
		})
	}
	res.Slides = len(images)

	if len(captions) == 0 {
		return res, nil
	}

	kept, issues, err := CheckCaptions(captions, res.Total, b.opts.StrictCaptions)
	res.Issues = issues
	if err != nil {
		return nil, err
	}
	for k, c := range kept {
		fade := clampFade(b.opts.CaptionFade, c.End-c.Start)
		res.Layers = append(res.Layers, Layer{
			Kind:    KindCaption,
			Z:       len(images) + k,
			Start:   c.Start,
			End:     c.End,
			Text:    c.Text,
			FadeIn:  fade,
			FadeOut: fade,
		})
	}
	res.Captions = len(kept)
	return res, nil
}

// 淡入淡出各不超过图层时长的一半
func clampFade(fade, dur float64) float64 {
	if fade <= 0 || dur <= 0 {
		return 0
	}
	return min(fade, dur/2)
}
