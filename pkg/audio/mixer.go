package audio

import (
	"fmt"
	"time"

	"github.com/z-wentao/slidecast/pkg/models"
)

// MixerOptions 混音参数
type MixerOptions struct {
	Format        Format
	SilenceGap    time.Duration // 段间静音
	HeadroomDB    float64       // 每段人声的余量衰减
	BackgroundDB  float64       // 背景音乐额外衰减
	BackgroundIn  time.Duration // 背景音乐叠加前淡入
	BackgroundOut time.Duration // 背景音乐叠加前淡出
	MasterFadeIn  time.Duration // 成品淡入
	MasterFadeOut time.Duration // 成品淡出
}

// DefaultMixerOptions 默认参数
func DefaultMixerOptions() MixerOptions {
	return MixerOptions{
		Format:        DefaultFormat,
		SilenceGap:    500 * time.Millisecond,
		HeadroomDB:    -1.0,
		BackgroundDB:  -14.0,
		BackgroundIn:  400 * time.Millisecond,
		BackgroundOut: 600 * time.Millisecond,
		MasterFadeIn:  50 * time.Millisecond,
		MasterFadeOut: 120 * time.Millisecond,
	}
}

// Mixer 人声拼接 + 背景音乐叠加
type Mixer struct {
	opts MixerOptions
}

// NewMixer 创建混音器
func NewMixer(opts MixerOptions) *Mixer {
	return &Mixer{opts: opts}
}

// Mix 按顺序拼接人声（段间插入静音），可选叠加背景音乐
// background 为 nil 时只输出人声。整段只分配一份输出缓冲，增益、叠加和淡化都在上面原地完成
func (m *Mixer) Mix(segments []*Track, background *Track) (*Track, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("混音: %w", models.ErrEmptyInput)
	}
	f := m.opts.Format
	gap := make([]int, f.FramesFor(m.opts.SilenceGap)*f.Channels)

	capacity := len(gap) * (len(segments) - 1)
	for _, seg := range segments {
		capacity += (seg.Frames()*f.SampleRate/max(seg.Format.SampleRate, 1) + 1) * f.Channels
	}
	main := &Track{Format: f, Samples: make([]int, 0, capacity)}
	for i, seg := range segments {
		// Normalize 总是返回新缓冲，可以原地改
		norm, err := Normalize(seg, f)
		if err != nil {
			return nil, fmt.Errorf("归一化片段 %d 失败: %w", i+1, err)
		}
		norm.gainInPlace(m.opts.HeadroomDB)
		main.Samples = append(main.Samples, norm.Samples...)
		if i < len(segments)-1 {
			main.Samples = append(main.Samples, gap...)
		}
	}

	if background != nil && background.Frames() > 0 {
		bg, err := Normalize(background, f)
		if err != nil {
			return nil, fmt.Errorf("归一化背景音乐失败: %w", err)
		}
		bg.gainInPlace(m.opts.HeadroomDB + m.opts.BackgroundDB)
		if err := main.overlayLoopedInPlace(bg, m.opts.BackgroundIn, m.opts.BackgroundOut); err != nil {
			return nil, err
		}
	}

	main.fadeInPlace(m.opts.MasterFadeIn, m.opts.MasterFadeOut)
	return main, nil
}
