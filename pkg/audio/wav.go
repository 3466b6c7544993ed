package audio

import (
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/riff"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// KSDATAFORMAT_SUBTYPE_PCM
var pcmSubFormat = [16]byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71}

// fmtHeader fmt 块中解码前需要判断的字段
type fmtHeader struct {
	tag       uint16
	subFormat [16]byte // 仅 WAVE_FORMAT_EXTENSIBLE 有效
}

// readFmtHeader 读取 fmt 块，读完后把 r 倒回开头
func readFmtHeader(r io.ReadSeeker) (fmtHeader, error) {
	var h fmtHeader
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return h, err
	}
	defer r.Seek(0, io.SeekStart)

	p := riff.New(r)
	if err := p.ParseHeaders(); err != nil {
		return h, err
	}
	if p.Format != riff.WavFormatID {
		return h, fmt.Errorf("RIFF 子格式不是 WAVE: %q", p.Format[:])
	}
	for {
		ch, err := p.NextChunk()
		if err != nil {
			return h, fmt.Errorf("未找到 fmt 块: %w", err)
		}
		if ch.ID != riff.FmtID {
			ch.Drain()
			continue
		}
		if err := ch.ReadLE(&h.tag); err != nil {
			return h, err
		}
		if h.tag != wavFormatExtensible {
			return h, nil
		}
		// 16 字节基础头 + cbSize + wValidBitsPerSample + dwChannelMask，之后是 SubFormat
		if ch.Size < 40 {
			return h, fmt.Errorf("扩展 fmt 块过短: %d 字节", ch.Size)
		}
		skip := make([]byte, 22)
		if err := ch.ReadLE(skip); err != nil {
			return h, err
		}
		if err := ch.ReadLE(&h.subFormat); err != nil {
			return h, err
		}
		return h, nil
	}
}

// DecodeWAVFile 读取并解码 WAV 文件
func DecodeWAVFile(path string) (*Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开音频文件失败: %w", err)
	}
	defer f.Close()

	t, err := DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// DecodeWAV 解码 PCM WAV 数据，同时接受 WAVE_FORMAT_EXTENSIBLE 头（SubFormat 须为 PCM）
func DecodeWAV(r io.ReadSeeker) (*Track, error) {
	h, err := readFmtHeader(r)
	if err != nil {
		return nil, fmt.Errorf("不是有效的 WAV 文件: %w", err)
	}
	switch h.tag {
	case wavFormatPCM:
	case wavFormatExtensible:
		if h.subFormat != pcmSubFormat {
			return nil, fmt.Errorf("不支持的扩展 WAV 子格式: %x（仅支持 PCM）", h.subFormat[:])
		}
	default:
		return nil, fmt.Errorf("不支持的 WAV 编码格式: %d（仅支持 PCM）", h.tag)
	}

	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("不是有效的 WAV 文件")
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("解码 PCM 失败: %w", err)
	}

	f := Format{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	samples := buf.Data
	if f.BitDepth == 8 {
		// 8 bit WAV 为无符号样本
		samples = make([]int, len(buf.Data))
		for i, v := range buf.Data {
			samples[i] = v - 128
		}
	}
	// 丢弃不完整的尾帧
	samples = samples[:len(samples)-len(samples)%f.Channels]

	return &Track{Format: f, Samples: samples}, nil
}

// EncodeWAVFile 将音轨写为 PCM WAV 文件
func EncodeWAVFile(t *Track, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建 WAV 文件失败: %w", err)
	}
	if err := EncodeWAV(t, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeWAV 编码为 PCM WAV
func EncodeWAV(t *Track, w io.WriteSeeker) error {
	samples := t.Samples
	if t.Format.BitDepth == 8 {
		samples = make([]int, len(t.Samples))
		for i, v := range t.Samples {
			samples[i] = v + 128
		}
	}

	enc := wav.NewEncoder(w, t.Format.SampleRate, t.Format.BitDepth, t.Format.Channels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: t.Format.Channels,
			SampleRate:  t.Format.SampleRate,
		},
		Data:           samples,
		SourceBitDepth: t.Format.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("写入 PCM 失败: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("关闭 WAV 编码器失败: %w", err)
	}
	return nil
}
