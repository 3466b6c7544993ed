package audio

import (
	"fmt"
	"time"

	"github.com/z-wentao/slidecast/pkg/models"
)

// Narration 旁白时长账本：以帧为单位记录每段语音长度和段间静音
// 时间轴和混音都从这里取时长，保证两边一致
type Narration struct {
	SampleRate    int   `json:"sample_rate"`
	SegmentFrames []int `json:"segment_frames"`
	GapFrames     int   `json:"gap_frames"`
}

// Account 统计每段语音的实际时长（基于解码后的帧数，而不是容器元数据）
// tracks 需已归一化到同一格式
func Account(tracks []*Track, gap time.Duration) (Narration, error) {
	if len(tracks) == 0 {
		return Narration{}, fmt.Errorf("统计旁白时长: %w", models.ErrEmptyInput)
	}
	f := tracks[0].Format
	n := Narration{
		SampleRate:    f.SampleRate,
		SegmentFrames: make([]int, len(tracks)),
		GapFrames:     f.FramesFor(gap),
	}
	for i, t := range tracks {
		if t.Format.SampleRate != f.SampleRate {
			return Narration{}, fmt.Errorf("片段 %d 采样率 %d 与 %d 不一致", i+1, t.Format.SampleRate, f.SampleRate)
		}
		n.SegmentFrames[i] = t.Frames()
	}
	return n, nil
}

// Count 片段数量
func (n Narration) Count() int { return len(n.SegmentFrames) }

// Durations 每段语音时长（秒）
func (n Narration) Durations() []float64 {
	out := make([]float64, len(n.SegmentFrames))
	for i, f := range n.SegmentFrames {
		out[i] = n.Seconds(f)
	}
	return out
}

// TotalFrames Σ 片段帧数 + (N-1) × 静音帧数
func (n Narration) TotalFrames() int {
	total := 0
	for i, f := range n.SegmentFrames {
		total += f
		if i < len(n.SegmentFrames)-1 {
			total += n.GapFrames
		}
	}
	return total
}

// TotalSeconds 旁白总时长（秒）
func (n Narration) TotalSeconds() float64 {
	return n.Seconds(n.TotalFrames())
}

// GapSeconds 段间静音时长（秒）
func (n Narration) GapSeconds() float64 {
	return n.Seconds(n.GapFrames)
}

// Seconds 帧数换算为秒
func (n Narration) Seconds(frames int) float64 {
	if n.SampleRate == 0 {
		return 0
	}
	return float64(frames) / float64(n.SampleRate)
}
