package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/z-wentao/slidecast/pkg/models"
)

func tone(f Format, seconds float64, amp float64) *Track {
	frames := int(math.Round(seconds * float64(f.SampleRate)))
	t := NewSilence(f, frames)
	for i := 0; i < frames; i++ {
		v := int(amp * math.Sin(2*math.Pi*440*float64(i)/float64(f.SampleRate)))
		for c := 0; c < f.Channels; c++ {
			t.Samples[i*f.Channels+c] = v
		}
	}
	return t
}

func TestAccountAggregatesGaps(t *testing.T) {
	f := DefaultFormat
	n, err := Account([]*Track{tone(f, 1.0, 8000), tone(f, 1.0, 8000)}, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if got := n.TotalSeconds(); got != 2.5 {
		t.Fatalf("total: want=2.5 got=%v", got)
	}
	d := n.Durations()
	if len(d) != 2 || d[0] != 1.0 || d[1] != 1.0 {
		t.Fatalf("durations: got=%v", d)
	}
	if n.GapSeconds() != 0.5 {
		t.Fatalf("gap: want=0.5 got=%v", n.GapSeconds())
	}
}

func TestAccountSingleSegmentHasNoGap(t *testing.T) {
	f := DefaultFormat
	n, err := Account([]*Track{tone(f, 1.25, 8000)}, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if n.TotalFrames() != f.FramesFor(1250*time.Millisecond) {
		t.Fatalf("total frames: got=%d", n.TotalFrames())
	}
}

func TestAccountEmpty(t *testing.T) {
	if _, err := Account(nil, time.Second); !errors.Is(err, models.ErrEmptyInput) {
		t.Fatalf("want ErrEmptyInput, got %v", err)
	}
}

func TestSynthesizeExactLength(t *testing.T) {
	f := DefaultFormat
	for _, target := range []float64{0.1, 1.0, 3.7, 120.0} {
		for _, srcLen := range []float64{0.05, 1.0, target + 1} {
			spec := DefaultLoopSpec(target)
			out, err := Synthesize(tone(f, srcLen, 6000), spec)
			if err != nil {
				t.Fatalf("Synthesize(target=%v, src=%v): %v", target, srcLen, err)
			}
			wantMillis := int64(math.Round(target * 1000))
			if out.Millis() != wantMillis {
				t.Fatalf("target=%v src=%v: want=%dms got=%dms", target, srcLen, wantMillis, out.Millis())
			}
			if out.Frames() != f.FramesForMillis(wantMillis) {
				t.Fatalf("target=%v src=%v: frames=%d", target, srcLen, out.Frames())
			}
		}
	}
}

func TestSynthesizeLoopsWithCrossfade(t *testing.T) {
	f := DefaultFormat
	spec := DefaultLoopSpec(2.5)
	spec.Crossfade = 200 * time.Millisecond

	out, stats, err := synthesize(tone(f, 1.0, 6000), spec)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if out.Millis() != 2500 {
		t.Fatalf("length: want=2500ms got=%dms", out.Millis())
	}
	if stats.Repetitions < 2 {
		t.Fatalf("repetitions: want>=2 got=%d", stats.Repetitions)
	}
	if stats.Seams < 1 {
		t.Fatalf("seams: want>=1 got=%d", stats.Seams)
	}
	if out.Samples[0] != 0 || out.Samples[len(out.Samples)-1] != 0 {
		t.Fatalf("edges should be faded to silence")
	}
}

func TestSynthesizeTruncatesLongSource(t *testing.T) {
	f := DefaultFormat
	out, stats, err := synthesize(tone(f, 5.0, 6000), DefaultLoopSpec(2.0))
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if stats.Repetitions != 1 || stats.Seams != 0 {
		t.Fatalf("stats: %+v", stats)
	}
	if out.Millis() != 2000 {
		t.Fatalf("length: got=%dms", out.Millis())
	}
}

func TestSynthesizeErrors(t *testing.T) {
	if _, err := Synthesize(nil, DefaultLoopSpec(1)); !errors.Is(err, models.ErrMissingAsset) {
		t.Fatalf("nil source: want ErrMissingAsset, got %v", err)
	}
	src := tone(DefaultFormat, 1, 6000)
	for _, target := range []float64{0, -1, 0.0001} {
		if _, err := Synthesize(src, DefaultLoopSpec(target)); !errors.Is(err, models.ErrInvalidDuration) {
			t.Fatalf("target=%v: want ErrInvalidDuration, got %v", target, err)
		}
	}
}

func TestMixLengthWithAndWithoutBackground(t *testing.T) {
	f := DefaultFormat
	segs := []*Track{tone(f, 1.0, 8000), tone(f, 0.75, 8000), tone(f, 1.3, 8000)}
	n, err := Account(segs, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}

	m := NewMixer(DefaultMixerOptions())
	fg, err := m.Mix(segs, nil)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if fg.Frames() != n.TotalFrames() {
		t.Fatalf("foreground frames: want=%d got=%d", n.TotalFrames(), fg.Frames())
	}

	bgSrc := tone(f, 1.0, 6000)
	bg, err := Synthesize(bgSrc, DefaultLoopSpec(n.TotalSeconds()))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	mixed, err := m.Mix(segs, bg)
	if err != nil {
		t.Fatalf("Mix with background: %v", err)
	}
	if mixed.Frames() != fg.Frames() {
		t.Fatalf("mixed frames: want=%d got=%d", fg.Frames(), mixed.Frames())
	}
}

func TestMixInsertsTrueSilence(t *testing.T) {
	f := DefaultFormat
	segs := []*Track{tone(f, 1.0, 8000), tone(f, 1.0, 8000)}
	out, err := NewMixer(DefaultMixerOptions()).Mix(segs, nil)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if out.Millis() != 2500 {
		t.Fatalf("length: want=2500ms got=%dms", out.Millis())
	}
	gapStart := f.FramesFor(time.Second)
	gapEnd := f.FramesFor(1500 * time.Millisecond)
	for i := gapStart; i < gapEnd; i++ {
		if out.Samples[i] != 0 {
			t.Fatalf("sample %d in gap should be silent, got %d", i, out.Samples[i])
		}
	}
}

func TestMixSingleSegmentNoGap(t *testing.T) {
	f := DefaultFormat
	out, err := NewMixer(DefaultMixerOptions()).Mix([]*Track{tone(f, 1.0, 8000)}, nil)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if out.Frames() != f.SampleRate {
		t.Fatalf("frames: want=%d got=%d", f.SampleRate, out.Frames())
	}
}

func TestMixEmpty(t *testing.T) {
	if _, err := NewMixer(DefaultMixerOptions()).Mix(nil, nil); !errors.Is(err, models.ErrEmptyInput) {
		t.Fatalf("want ErrEmptyInput, got %v", err)
	}
}

func TestMixDoesNotMutateInputs(t *testing.T) {
	f := DefaultFormat
	seg := tone(f, 0.5, 8000)
	bg := tone(f, 0.2, 4000)
	segBefore, bgBefore := seg.Clone(), bg.Clone()
	if _, err := NewMixer(DefaultMixerOptions()).Mix([]*Track{seg}, bg); err != nil {
		t.Fatalf("Mix: %v", err)
	}
	for i := range seg.Samples {
		if seg.Samples[i] != segBefore.Samples[i] {
			t.Fatalf("segment mutated at %d", i)
		}
	}
	for i := range bg.Samples {
		if bg.Samples[i] != bgBefore.Samples[i] {
			t.Fatalf("background mutated at %d", i)
		}
	}
}

// loopTrack 硬拼接循环到 frames 帧
func loopTrack(src *Track, frames int) *Track {
	out := NewSilence(src.Format, frames)
	ch := src.Format.Channels
	for j := 0; j < frames; j++ {
		copy(out.Samples[j*ch:(j+1)*ch], src.Samples[(j%src.Frames())*ch:])
	}
	return out
}

func TestMixMatchesStageByStageComposition(t *testing.T) {
	f := DefaultFormat
	opts := DefaultMixerOptions()
	segs := []*Track{tone(f, 0.8, 20000), tone(f, 0.6, 30000)}
	bg := tone(f, 0.3, 25000)

	got, err := NewMixer(opts).Mix(segs, bg)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}

	// 每一步都生成新音轨的写法
	gap := NewSilence(f, f.FramesFor(opts.SilenceGap))
	var samples []int
	samples = append(samples, segs[0].Gain(opts.HeadroomDB).Samples...)
	samples = append(samples, gap.Samples...)
	samples = append(samples, segs[1].Gain(opts.HeadroomDB).Samples...)
	main := &Track{Format: f, Samples: samples}
	looped := loopTrack(bg.Gain(opts.HeadroomDB+opts.BackgroundDB), main.Frames()).
		Fade(opts.BackgroundIn, opts.BackgroundOut)
	mixed, err := main.Overlay(looped)
	if err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	want := mixed.Fade(opts.MasterFadeIn, opts.MasterFadeOut)

	if got.Frames() != want.Frames() {
		t.Fatalf("frames: want=%d got=%d", want.Frames(), got.Frames())
	}
	for i := range want.Samples {
		if got.Samples[i] != want.Samples[i] {
			t.Fatalf("sample %d: want=%d got=%d", i, want.Samples[i], got.Samples[i])
		}
	}
}

func TestFadeOverlappingRamps(t *testing.T) {
	f := DefaultFormat
	src := tone(f, 0.1, 10000)
	// 淡入淡出都比音轨长，每帧先淡入再淡出，且只处理一次
	got := src.Fade(time.Second, time.Second)
	n := src.Frames()
	for j := 0; j < n; j++ {
		v := int(math.Round(float64(src.Samples[j]) * (float64(j) / float64(n))))
		v = int(math.Round(float64(v) * (float64(n-1-j) / float64(n))))
		if got.Samples[j] != v {
			t.Fatalf("frame %d: want=%d got=%d", j, v, got.Samples[j])
		}
	}
}

func TestNormalizeStereo48kToMono24k(t *testing.T) {
	src := tone(Format{SampleRate: 48000, Channels: 2, BitDepth: 16}, 2.0, 8000)
	out, err := Normalize(src, DefaultFormat)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.Format != DefaultFormat {
		t.Fatalf("format: got=%s", out.Format)
	}
	if out.Frames() != 48000 {
		t.Fatalf("frames: want=48000 got=%d", out.Frames())
	}
}

func TestNormalizeBitDepth(t *testing.T) {
	src := &Track{Format: Format{SampleRate: 24000, Channels: 1, BitDepth: 24}, Samples: []int{1 << 20, -(1 << 20)}}
	out, err := Normalize(src, DefaultFormat)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.Samples[0] != 1<<12 || out.Samples[1] != -(1<<12) {
		t.Fatalf("samples: got=%v", out.Samples)
	}
}

func TestOverlaySaturates(t *testing.T) {
	f := DefaultFormat
	a := &Track{Format: f, Samples: []int{30000, -30000, 10}}
	b := &Track{Format: f, Samples: []int{30000, -30000}}
	out, err := a.Overlay(b)
	if err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	if out.Samples[0] != 32767 || out.Samples[1] != -32768 || out.Samples[2] != 10 {
		t.Fatalf("samples: got=%v", out.Samples)
	}
}

func TestAppendCrossfadeLength(t *testing.T) {
	f := DefaultFormat
	a, b := tone(f, 1.0, 5000), tone(f, 1.0, 5000)
	out, err := a.AppendCrossfade(b, f.FramesFor(200*time.Millisecond))
	if err != nil {
		t.Fatalf("AppendCrossfade: %v", err)
	}
	if out.Millis() != 1800 {
		t.Fatalf("length: want=1800ms got=%dms", out.Millis())
	}
}

func TestWAVRoundTrip(t *testing.T) {
	src := tone(DefaultFormat, 0.3, 9000)
	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := EncodeWAVFile(src, path); err != nil {
		t.Fatalf("EncodeWAVFile: %v", err)
	}
	got, err := DecodeWAVFile(path)
	if err != nil {
		t.Fatalf("DecodeWAVFile: %v", err)
	}
	if got.Format != src.Format || got.Frames() != src.Frames() {
		t.Fatalf("decoded %s/%d frames, want %s/%d", got.Format, got.Frames(), src.Format, src.Frames())
	}
	for i := range src.Samples {
		if got.Samples[i] != src.Samples[i] {
			t.Fatalf("sample %d: want=%d got=%d", i, src.Samples[i], got.Samples[i])
		}
	}
}

// buildWAV 手工拼一个单声道 WAV；subFormat 非空时写 WAVE_FORMAT_EXTENSIBLE 头
func buildWAV(bits int, subFormat []byte, data []byte) []byte {
	const rate, channels = 24000, 1
	le := binary.LittleEndian
	blockAlign := channels * bits / 8

	var fmtChunk bytes.Buffer
	tag := uint16(wavFormatPCM)
	if subFormat != nil {
		tag = wavFormatExtensible
	}
	binary.Write(&fmtChunk, le, tag)
	binary.Write(&fmtChunk, le, uint16(channels))
	binary.Write(&fmtChunk, le, uint32(rate))
	binary.Write(&fmtChunk, le, uint32(rate*blockAlign))
	binary.Write(&fmtChunk, le, uint16(blockAlign))
	binary.Write(&fmtChunk, le, uint16(bits))
	if subFormat != nil {
		binary.Write(&fmtChunk, le, uint16(22))
		binary.Write(&fmtChunk, le, uint16(bits))
		binary.Write(&fmtChunk, le, uint32(0x4)) // front center
		fmtChunk.Write(subFormat)
	}

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, le, uint32(4+8+fmtChunk.Len()+8+len(data)))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	binary.Write(&out, le, uint32(fmtChunk.Len()))
	out.Write(fmtChunk.Bytes())
	out.WriteString("data")
	binary.Write(&out, le, uint32(len(data)))
	out.Write(data)
	return out.Bytes()
}

func pcm16(samples ...int16) []byte {
	var b bytes.Buffer
	for _, v := range samples {
		binary.Write(&b, binary.LittleEndian, v)
	}
	return b.Bytes()
}

func TestDecodeWAVExtensiblePCM(t *testing.T) {
	want := []int{1000, -1000, 32767, -32768, 0, 42}
	data := pcm16(1000, -1000, 32767, -32768, 0, 42)

	got, err := DecodeWAV(bytes.NewReader(buildWAV(16, pcmSubFormat[:], data)))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if got.Format != (Format{SampleRate: 24000, Channels: 1, BitDepth: 16}) {
		t.Fatalf("format: %s", got.Format)
	}
	if len(got.Samples) != len(want) {
		t.Fatalf("samples: want=%d got=%d", len(want), len(got.Samples))
	}
	for i := range want {
		if got.Samples[i] != want[i] {
			t.Fatalf("sample %d: want=%d got=%d", i, want[i], got.Samples[i])
		}
	}
}

func TestDecodeWAVRejectsFloatSubFormat(t *testing.T) {
	ieee := pcmSubFormat
	ieee[0] = 0x03 // KSDATAFORMAT_SUBTYPE_IEEE_FLOAT
	if _, err := DecodeWAV(bytes.NewReader(buildWAV(32, ieee[:], make([]byte, 16)))); err == nil {
		t.Fatalf("float sub format should be rejected")
	}
}

func TestDecodeWAVEightBitUnsigned(t *testing.T) {
	got, err := DecodeWAV(bytes.NewReader(buildWAV(8, nil, []byte{128, 255, 0, 64})))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	want := []int{0, 127, -128, -64}
	if got.Format.BitDepth != 8 || len(got.Samples) != len(want) {
		t.Fatalf("decoded %s with %d samples", got.Format, len(got.Samples))
	}
	for i := range want {
		if got.Samples[i] != want[i] {
			t.Fatalf("sample %d: want=%d got=%d", i, want[i], got.Samples[i])
		}
	}

	// 编码时要转回无符号
	path := filepath.Join(t.TempDir(), "u8.wav")
	if err := EncodeWAVFile(got, path); err != nil {
		t.Fatalf("EncodeWAVFile: %v", err)
	}
	back, err := DecodeWAVFile(path)
	if err != nil {
		t.Fatalf("DecodeWAVFile: %v", err)
	}
	for i := range want {
		if back.Samples[i] != want[i] {
			t.Fatalf("round trip sample %d: want=%d got=%d", i, want[i], back.Samples[i])
		}
	}
}
