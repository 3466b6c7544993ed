package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/z-wentao/slidecast/pkg/models"
)

// Workspace 单个任务独占的工作目录
//
//	<root>/audio/N.wav
//	<root>/image/N.png
//	<root>/script/N.txt
//	<root>/out/
type Workspace struct {
	Root string
}

func NewWorkspace(baseDir, jobID string) *Workspace {
	return &Workspace{Root: filepath.Join(baseDir, jobID)}
}

func (w *Workspace) AudioDir() string { return filepath.Join(w.Root, "audio") }

func (w *Workspace) ImageDir() string { return filepath.Join(w.Root, "image") }

func (w *Workspace) ScriptDir() string { return filepath.Join(w.Root, "script") }

func (w *Workspace) OutDir() string { return filepath.Join(w.Root, "out") }

// AudioPath 第 i 段语音（从 1 开始）
func (w *Workspace) AudioPath(i int) string {
	return filepath.Join(w.AudioDir(), strconv.Itoa(i)+".wav")
}

// ImagePath 第 i 张图片（从 1 开始）
func (w *Workspace) ImagePath(i int) string {
	return filepath.Join(w.ImageDir(), strconv.Itoa(i)+".png")
}

func (w *Workspace) ScriptPath(i int) string {
	return filepath.Join(w.ScriptDir(), strconv.Itoa(i)+".txt")
}

func (w *Workspace) MixPath() string { return filepath.Join(w.OutDir(), "output.wav") }

func (w *Workspace) VideoPath() string { return filepath.Join(w.OutDir(), "final_video.mp4") }

// Reset 清掉上次残留的内容并重建目录
func (w *Workspace) Reset() error {
	if err := os.RemoveAll(w.Root); err != nil {
		return fmt.Errorf("清理工作目录失败: %w", err)
	}
	for _, dir := range []string{w.AudioDir(), w.ImageDir(), w.ScriptDir(), w.OutDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建目录 %s 失败: %w", dir, err)
		}
	}
	return nil
}

// SaveTranscripts 文稿写入 script/1.txt ... N.txt
func (w *Workspace) SaveTranscripts(transcripts []string) error {
	for i, t := range transcripts {
		if err := os.WriteFile(w.ScriptPath(i+1), []byte(t), 0o644); err != nil {
			return fmt.Errorf("保存文稿 %d 失败: %w", i+1, err)
		}
	}
	return nil
}

// LoadTranscripts 依次读取 script/1.txt、2.txt ... 直到文件不存在
func (w *Workspace) LoadTranscripts() ([]string, error) {
	var out []string
	for i := 1; ; i++ {
		b, err := os.ReadFile(w.ScriptPath(i))
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取文稿 %d 失败: %w", i, err)
		}
		out = append(out, strings.TrimSpace(string(b)))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s 下没有文稿: %w", w.ScriptDir(), models.ErrEmptyInput)
	}
	return out, nil
}

// Segments 按位置组装片段
func (w *Workspace) Segments(transcripts []string) []models.Segment {
	segs := make([]models.Segment, len(transcripts))
	for i, t := range transcripts {
		segs[i] = models.Segment{
			Index:      i + 1,
			AudioPath:  w.AudioPath(i + 1),
			ImagePath:  w.ImagePath(i + 1),
			Transcript: t,
		}
	}
	return segs
}

// Cleanup 删除整个工作目录，可重复调用，目录不存在也不报错
func (w *Workspace) Cleanup() error {
	if w == nil || w.Root == "" {
		return nil
	}
	if err := os.RemoveAll(w.Root); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除工作目录失败: %w", err)
	}
	return nil
}
