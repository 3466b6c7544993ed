package audio

import (
	"fmt"
	"math"
	"time"

	"github.com/z-wentao/slidecast/pkg/models"
)

// LoopSpec 背景音乐循环参数
type LoopSpec struct {
	TargetSeconds float64       // 目标总时长（秒）
	Crossfade     time.Duration // 循环接缝处的交叉淡化时长，0 表示硬拼接
	Format        Format        // 输出格式
	FadeIn        time.Duration // 循环成品的淡入，默认 200ms
	FadeOut       time.Duration // 循环成品的淡出，默认 300ms
}

// DefaultLoopSpec 默认参数
func DefaultLoopSpec(target float64) LoopSpec {
	return LoopSpec{
		TargetSeconds: target,
		Crossfade:     200 * time.Millisecond,
		Format:        DefaultFormat,
		FadeIn:        200 * time.Millisecond,
		FadeOut:       300 * time.Millisecond,
	}
}

// loopStats 循环过程统计（测试和日志用）
type loopStats struct {
	Repetitions int
	Seams       int
	Truncated   bool
}

// Synthesize 用较短的背景音乐合成精确 round(target*1000) 毫秒的音轨
func Synthesize(source *Track, spec LoopSpec) (*Track, error) {
	out, _, err := synthesize(source, spec)
	return out, err
}

func synthesize(source *Track, spec LoopSpec) (*Track, loopStats, error) {
	var stats loopStats
	if source == nil || source.Frames() == 0 {
		return nil, stats, fmt.Errorf("背景音乐: %w", models.ErrMissingAsset)
	}
	targetMillis := int64(math.Round(spec.TargetSeconds * 1000))
	if spec.TargetSeconds <= 0 || targetMillis <= 0 {
		return nil, stats, fmt.Errorf("背景音乐目标时长 %.3fs: %w", spec.TargetSeconds, models.ErrInvalidDuration)
	}

	bg, err := Normalize(source, spec.Format)
	if err != nil {
		return nil, stats, fmt.Errorf("归一化背景音乐失败: %w", err)
	}
	if bg.Frames() == 0 {
		return nil, stats, fmt.Errorf("背景音乐重采样后为空: %w", models.ErrMissingAsset)
	}
	targetFrames := spec.Format.FramesForMillis(targetMillis)

	// 原曲足够长，直接截断
	if bg.Frames() >= targetFrames {
		stats.Repetitions = 1
		stats.Truncated = bg.Frames() > targetFrames
		return bg.Slice(0, targetFrames), stats, nil
	}

	// 交叉淡化不超过原曲一半，保证每次追加都有进展
	xfade := min(spec.Format.FramesFor(spec.Crossfade), bg.Frames()/2)

	ch := spec.Format.Channels
	acc := make([]int, 0, targetFrames*ch+len(bg.Samples))
	for len(acc) < targetFrames*ch {
		if len(acc) > 0 && xfade > 0 {
			stats.Seams++
		}
		acc = appendCrossfade(spec.Format, acc, bg.Samples, xfade)
		stats.Repetitions++
	}
	current := &Track{Format: spec.Format, Samples: acc}

	stats.Truncated = current.Frames() > targetFrames
	out := current.Slice(0, targetFrames)
	out.fadeInPlace(spec.FadeIn, spec.FadeOut)
	return out, stats, nil
}
