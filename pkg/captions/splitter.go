package captions

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/z-wentao/slidecast/pkg/audio"
)

// Chunk 一个待转写的音频切片
type Chunk struct {
	Index  int
	Path   string
	Offset float64 // 在整段混音中的起始时间（秒）
	owned  bool    // 由 Splitter 创建，转写完需要删除
}

// Splitter 把较长的混音切成若干 WAV，避免超过 Whisper 的上传限制
type Splitter struct {
	chunkSeconds int
}

func NewSplitter(chunkSeconds int) *Splitter {
	if chunkSeconds <= 0 {
		chunkSeconds = 300
	}
	return &Splitter{chunkSeconds: chunkSeconds}
}

// Split 不超过 chunkSeconds 的音频原样返回
func (s *Splitter) Split(wavPath string) ([]Chunk, error) {
	track, err := audio.DecodeWAVFile(wavPath)
	if err != nil {
		return nil, err
	}
	chunkFrames := s.chunkSeconds * track.Format.SampleRate
	total := track.Frames()
	if total <= chunkFrames {
		return []Chunk{{Index: 0, Path: wavPath}}, nil
	}

	dir := filepath.Join(filepath.Dir(wavPath), "chunks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建切片目录失败: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(wavPath), filepath.Ext(wavPath))

	var chunks []Chunk
	for i, from := 0, 0; from < total; i, from = i+1, from+chunkFrames {
		path := filepath.Join(dir, fmt.Sprintf("%s_%03d.wav", base, i))
		part := track.Slice(from, from+chunkFrames)
		if err := audio.EncodeWAVFile(part, path); err != nil {
			s.Cleanup(chunks)
			return nil, fmt.Errorf("写入切片 %d 失败: %w", i, err)
		}
		chunks = append(chunks, Chunk{
			Index:  i,
			Path:   path,
			Offset: float64(from) / float64(track.Format.SampleRate),
			owned:  true,
		})
	}
	return chunks, nil
}

// Cleanup 删除切片文件，原始音频保留
func (s *Splitter) Cleanup(chunks []Chunk) {
	for _, c := range chunks {
		if c.owned {
			_ = os.Remove(c.Path)
		}
	}
}
