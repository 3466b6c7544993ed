package audio

import (
	"fmt"
	"math"
	"time"
)

// Format PCM 采样格式
type Format struct {
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`
	Channels   int `yaml:"channels" json:"channels"`
	BitDepth   int `yaml:"bit_depth" json:"bit_depth"`
}

// DefaultFormat 默认目标格式：单声道、16 bit、24 kHz
var DefaultFormat = Format{SampleRate: 24000, Channels: 1, BitDepth: 16}

// Validate 检查格式是否可用
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return fmt.Errorf("无效的音频格式: %+v", f)
	}
	switch f.BitDepth {
	case 8, 16, 24, 32:
		return nil
	}
	return fmt.Errorf("不支持的位深: %d", f.BitDepth)
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitDepth)
}

func (f Format) maxSample() int { return 1<<(f.BitDepth-1) - 1 }
func (f Format) minSample() int { return -(1 << (f.BitDepth - 1)) }

// FramesFor 将时长换算为帧数（四舍五入）
func (f Format) FramesFor(d time.Duration) int {
	return int(math.Round(d.Seconds() * float64(f.SampleRate)))
}

// FramesForMillis 毫秒换算为帧数
func (f Format) FramesForMillis(ms int64) int {
	return int(math.Round(float64(ms) * float64(f.SampleRate) / 1000))
}

// Track 解码后的 PCM 音轨（交错存储，有符号整数样本）
// 导出的方法都返回新的 Track，不修改输入；*InPlace 系列只用于调用方独占的缓冲
type Track struct {
	Format  Format
	Samples []int
}

// NewSilence 生成指定帧数的静音
func NewSilence(f Format, frames int) *Track {
	if frames < 0 {
		frames = 0
	}
	return &Track{Format: f, Samples: make([]int, frames*f.Channels)}
}

// Frames 帧数（每帧包含所有声道的一个样本）
func (t *Track) Frames() int {
	if t == nil || t.Format.Channels == 0 {
		return 0
	}
	return len(t.Samples) / t.Format.Channels
}

// Seconds 播放时长（秒）
func (t *Track) Seconds() float64 {
	if t == nil || t.Format.SampleRate == 0 {
		return 0
	}
	return float64(t.Frames()) / float64(t.Format.SampleRate)
}

// Millis 播放时长（毫秒，四舍五入）
func (t *Track) Millis() int64 {
	return int64(math.Round(t.Seconds() * 1000))
}

// Clone 深拷贝
func (t *Track) Clone() *Track {
	out := &Track{Format: t.Format, Samples: make([]int, len(t.Samples))}
	copy(out.Samples, t.Samples)
	return out
}

// Slice 截取 [from, to) 帧，返回新音轨
func (t *Track) Slice(from, to int) *Track {
	n := t.Frames()
	if from < 0 {
		from = 0
	}
	if to > n {
		to = n
	}
	if to < from {
		to = from
	}
	ch := t.Format.Channels
	out := &Track{Format: t.Format, Samples: make([]int, (to-from)*ch)}
	copy(out.Samples, t.Samples[from*ch:to*ch])
	return out
}

// Gain 按分贝调整音量（饱和截断）
func (t *Track) Gain(db float64) *Track {
	out := t.Clone()
	out.gainInPlace(db)
	return out
}

func (t *Track) gainInPlace(db float64) {
	factor := math.Pow(10, db/20)
	for i, s := range t.Samples {
		t.Samples[i] = t.Format.clamp(math.Round(float64(s) * factor))
	}
}

// fadeEnvelope 线性淡入淡出的逐帧增益
type fadeEnvelope struct {
	inFrames  int
	outFrames int
	outStart  int
}

func newFadeEnvelope(f Format, frames int, in, out time.Duration) fadeEnvelope {
	e := fadeEnvelope{
		inFrames:  min(f.FramesFor(in), frames),
		outFrames: min(f.FramesFor(out), frames),
	}
	e.outStart = frames - e.outFrames
	return e
}

// apply 第 j 帧的样本 v 先淡入再淡出
func (e fadeEnvelope) apply(j, v int) int {
	if j < e.inFrames {
		g := float64(j) / float64(e.inFrames)
		v = int(math.Round(float64(v) * g))
	}
	if j >= e.outStart {
		g := float64(e.outFrames-1-(j-e.outStart)) / float64(e.outFrames)
		v = int(math.Round(float64(v) * g))
	}
	return v
}

// Fade 对开头做线性淡入、对结尾做线性淡出
func (t *Track) Fade(in, out time.Duration) *Track {
	res := t.Clone()
	res.fadeInPlace(in, out)
	return res
}

func (t *Track) fadeInPlace(in, out time.Duration) {
	n := t.Frames()
	ch := t.Format.Channels
	e := newFadeEnvelope(t.Format, n, in, out)
	for j := 0; j < n; j++ {
		if j >= e.inFrames && j < e.outStart {
			// 中间段增益为 1
			j = e.outStart - 1
			continue
		}
		for c := 0; c < ch; c++ {
			idx := j*ch + c
			t.Samples[idx] = e.apply(j, t.Samples[idx])
		}
	}
}

// Overlay 从第 0 帧开始逐样本叠加 other（长度以 t 为准，超出部分丢弃）
func (t *Track) Overlay(other *Track) (*Track, error) {
	if other.Format != t.Format {
		return nil, fmt.Errorf("叠加格式不一致: %s != %s", other.Format, t.Format)
	}
	out := t.Clone()
	n := min(len(out.Samples), len(other.Samples))
	for i := 0; i < n; i++ {
		out.Samples[i] = t.Format.clamp(float64(out.Samples[i] + other.Samples[i]))
	}
	return out, nil
}

// overlayLoopedInPlace 把 bg 硬拼接循环铺满 t，带淡入淡出原地叠加
// 结果与 t.Overlay(循环到 t 长度并 Fade 后的 bg) 相同，但不生成整段背景轨
func (t *Track) overlayLoopedInPlace(bg *Track, in, out time.Duration) error {
	if bg.Format != t.Format {
		return fmt.Errorf("叠加格式不一致: %s != %s", bg.Format, t.Format)
	}
	bn := bg.Frames()
	if bn == 0 {
		return nil
	}
	n := t.Frames()
	ch := t.Format.Channels
	e := newFadeEnvelope(t.Format, n, in, out)
	for j := 0; j < n; j++ {
		src := (j % bn) * ch
		for c := 0; c < ch; c++ {
			idx := j*ch + c
			t.Samples[idx] = t.Format.clamp(float64(t.Samples[idx] + e.apply(j, bg.Samples[src+c])))
		}
	}
	return nil
}

// AppendCrossfade 追加 next，重叠部分做线性交叉淡化
// 结果长度 = len(t) + len(next) - crossfade
func (t *Track) AppendCrossfade(next *Track, crossfade int) (*Track, error) {
	if next.Format != t.Format {
		return nil, fmt.Errorf("交叉淡化格式不一致: %s != %s", next.Format, t.Format)
	}
	out := &Track{Format: t.Format, Samples: make([]int, len(t.Samples), len(t.Samples)+len(next.Samples))}
	copy(out.Samples, t.Samples)
	out.Samples = appendCrossfade(t.Format, out.Samples, next.Samples, crossfade)
	return out, nil
}

// appendCrossfade 在 dst 上原地混合尾部并追加 next（dst 归调用方独占）
func appendCrossfade(f Format, dst, next []int, crossfade int) []int {
	ch := f.Channels
	crossfade = min(crossfade, len(dst)/ch, len(next)/ch)
	if crossfade <= 0 {
		return append(dst, next...)
	}
	head := len(dst)/ch - crossfade
	for j := 0; j < crossfade; j++ {
		w := float64(j) / float64(crossfade)
		for c := 0; c < ch; c++ {
			idx := (head+j)*ch + c
			a := float64(dst[idx])
			b := float64(next[j*ch+c])
			dst[idx] = f.clamp(math.Round(a*(1-w) + b*w))
		}
	}
	return append(dst, next[crossfade*ch:]...)
}

func (f Format) clamp(v float64) int {
	if v > float64(f.maxSample()) {
		return f.maxSample()
	}
	if v < float64(f.minSample()) {
		return f.minSample()
	}
	return int(v)
}
