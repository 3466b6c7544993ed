package audio

import "math"

// Normalize 转换到目标格式：位深 → 声道 → 采样率
// 格式已一致时返回副本
func Normalize(t *Track, target Format) (*Track, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if err := t.Format.Validate(); err != nil {
		return nil, err
	}
	if t.Format == target {
		return t.Clone(), nil
	}

	out := convertBitDepth(t, target.BitDepth)
	out = convertChannels(out, target.Channels)
	out = resample(out, target.SampleRate)
	return out, nil
}

func convertBitDepth(t *Track, depth int) *Track {
	if t.Format.BitDepth == depth {
		return t
	}
	f := t.Format
	f.BitDepth = depth
	out := &Track{Format: f, Samples: make([]int, len(t.Samples))}
	shift := depth - t.Format.BitDepth
	for i, s := range t.Samples {
		if shift > 0 {
			out.Samples[i] = s << shift
		} else {
			out.Samples[i] = s >> -shift
		}
	}
	return out
}

// convertChannels 多声道下混取平均；单声道上混复制
func convertChannels(t *Track, channels int) *Track {
	src := t.Format.Channels
	if src == channels {
		return t
	}
	f := t.Format
	f.Channels = channels
	frames := t.Frames()
	out := &Track{Format: f, Samples: make([]int, frames*channels)}
	for i := 0; i < frames; i++ {
		frame := t.Samples[i*src : (i+1)*src]
		switch {
		case channels == 1:
			sum := 0
			for _, s := range frame {
				sum += s
			}
			out.Samples[i] = int(math.Round(float64(sum) / float64(src)))
		case src == 1:
			for c := 0; c < channels; c++ {
				out.Samples[i*channels+c] = frame[0]
			}
		default:
			for c := 0; c < channels; c++ {
				out.Samples[i*channels+c] = frame[c%src]
			}
		}
	}
	return out
}

// resample 线性插值重采样，输出帧数 = round(n * dst / src)
func resample(t *Track, rate int) *Track {
	if t.Format.SampleRate == rate {
		return t
	}
	f := t.Format
	f.SampleRate = rate
	ch := f.Channels
	n := t.Frames()
	outFrames := int(math.Round(float64(n) * float64(rate) / float64(t.Format.SampleRate)))
	out := &Track{Format: f, Samples: make([]int, outFrames*ch)}
	if n == 0 {
		return out
	}
	step := float64(t.Format.SampleRate) / float64(rate)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * step
		i0 := int(pos)
		if i0 >= n-1 {
			copy(out.Samples[i*ch:(i+1)*ch], t.Samples[(n-1)*ch:n*ch])
			continue
		}
		frac := pos - float64(i0)
		for c := 0; c < ch; c++ {
			a := float64(t.Samples[i0*ch+c])
			b := float64(t.Samples[(i0+1)*ch+c])
			out.Samples[i*ch+c] = int(math.Round(a + (b-a)*frac))
		}
	}
	return out
}
