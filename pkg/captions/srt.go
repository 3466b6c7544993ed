package captions

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/z-wentao/slidecast/pkg/models"
)

// ParseSRT 解析 SRT 字幕
func ParseSRT(r io.Reader) ([]models.Caption, error) {
	var (
		out   []models.Caption
		cur   *models.Caption
		text  []string
		state int // 0: 等序号 1: 等时间轴 2: 读文本
	)
	finish := func() {
		if cur != nil {
			cur.Text = strings.Join(text, "\n")
			out = append(out, *cur)
		}
		cur, text, state = nil, nil, 0
	}

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		switch state {
		case 0:
			if line == "" {
				continue
			}
			idx, err := strconv.Atoi(line)
			if err != nil {
				return nil, fmt.Errorf("第 %d 行: 无效的字幕序号 %q", lineNo, line)
			}
			cur = &models.Caption{Index: idx}
			state = 1
		case 1:
			start, end, err := parseTimeRange(line)
			if err != nil {
				return nil, fmt.Errorf("第 %d 行: %w", lineNo, err)
			}
			cur.Start, cur.End = start, end
			state = 2
		case 2:
			if line == "" {
				finish()
				continue
			}
			text = append(text, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("读取字幕失败: %w", err)
	}
	if state == 1 {
		return nil, fmt.Errorf("字幕 #%d 缺少时间轴", cur.Index)
	}
	finish()
	return out, nil
}

// ParseSRTFile 读取 SRT 文件
func ParseSRTFile(path string) ([]models.Caption, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开字幕文件失败: %w", err)
	}
	defer f.Close()
	return ParseSRT(f)
}

// FileSource 从现成的 SRT 文件读取字幕
type FileSource struct {
	Path string
}

func (fs FileSource) Captions(_ context.Context, _ Request) ([]models.Caption, error) {
	return ParseSRTFile(fs.Path)
}

func parseTimeRange(line string) (float64, float64, error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("无效的时间轴 %q", line)
	}
	start, err := parseTimestamp(parts[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := parseTimestamp(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// parseTimestamp 支持 00:01:05,500 和 00:01:05.500
func parseTimestamp(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i] // VTT 时间后可能跟着样式设置
	}
	s = strings.Replace(s, ",", ".", 1)
	fields := strings.Split(s, ":")
	if len(fields) < 2 || len(fields) > 3 {
		return 0, fmt.Errorf("无效的时间戳 %q", s)
	}
	var total float64
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("无效的时间戳 %q", s)
		}
		total = total*60 + v
	}
	return total, nil
}

// GenerateSRT 生成 SRT 字幕文件
func GenerateSRT(captions []models.Caption, outputPath string) error {
	return writeSubtitles(captions, outputPath, "", ',')
}

// GenerateVTT 生成 WebVTT 字幕文件（用于 HTML5 video 播放）
func GenerateVTT(captions []models.Caption, outputPath string) error {
	return writeSubtitles(captions, outputPath, "WEBVTT\n\n", '.')
}

func writeSubtitles(captions []models.Caption, outputPath, header string, sep byte) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	var b strings.Builder
	b.WriteString(header)
	n := 1
	for _, c := range captions {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", n, formatTimestamp(c.Start, sep), formatTimestamp(c.End, sep), text)
		n++
	}

	if err := os.WriteFile(outputPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("写入字幕文件失败: %w", err)
	}
	return nil
}

// formatTimestamp 65.5 -> 00:01:05,500（VTT 用点号）
func formatTimestamp(seconds float64, sep byte) string {
	ms := int64(math.Round(max(seconds, 0) * 1000))
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms%1000)
}
