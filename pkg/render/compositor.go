package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/z-wentao/slidecast/pkg/logger"
	"github.com/z-wentao/slidecast/pkg/models"
	"github.com/z-wentao/slidecast/pkg/timeline"
)

// EncoderOptions ffmpeg 编码参数
type EncoderOptions struct {
	FFmpegPath    string `yaml:"ffmpeg_path"`
	VideoCodec    string `yaml:"video_codec"`
	AudioCodec    string `yaml:"audio_codec"`
	Preset        string `yaml:"preset"`
	VideoBitrate  string `yaml:"video_bitrate"`
	Threads       int    `yaml:"threads"`
	CaptionMargin int    `yaml:"caption_margin"` // 字幕距底边像素
}

func DefaultEncoderOptions() EncoderOptions {
	return EncoderOptions{
		VideoCodec:    "libx264",
		AudioCodec:    "aac",
		Preset:        "slow",
		VideoBitrate:  "5000k",
		Threads:       4,
		CaptionMargin: 30,
	}
}

// Compositor 把渲染计划交给 ffmpeg 合成最终视频
type Compositor struct {
	opts     EncoderOptions
	captions *CaptionRenderer
	log      *logger.Logger
}

func NewCompositor(opts EncoderOptions, captions *CaptionRenderer, log *logger.Logger) *Compositor {
	return &Compositor{
		opts:     opts,
		captions: captions,
		log:      log.With("service", "Compositor"),
	}
}

// layerInput 一个图层准备好的输入图片
type layerInput struct {
	layer timeline.Layer
	path  string
}

// Render 编码 plan 到 outputPath
// 先写入 <name>.partial.mp4，成功后改名；失败时删除半成品，错误都包装为 ErrEncoding
func (c *Compositor) Render(ctx context.Context, plan *Plan, outputPath string) error {
	if plan == nil {
		return fmt.Errorf("渲染计划为空: %w", models.ErrEncoding)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w: %w", models.ErrEncoding, err)
	}

	scratch, err := os.MkdirTemp(filepath.Dir(outputPath), ".render-")
	if err != nil {
		return fmt.Errorf("创建临时目录失败: %w: %w", models.ErrEncoding, err)
	}
	defer os.RemoveAll(scratch)

	inputs, err := c.prepareInputs(plan, scratch)
	if err != nil {
		return fmt.Errorf("准备图层失败: %w: %w", models.ErrEncoding, err)
	}

	partial := PartialPath(outputPath)
	_ = os.Remove(partial)

	stream := c.buildCommand(plan, inputs, partial)
	c.log.Info("开始编码视频",
		"output", outputPath,
		"layers", len(inputs),
		"fps", plan.FPS(),
		"duration", plan.TotalSeconds(),
	)
	c.log.Debug("ffmpeg 参数", "args", strings.Join(stream.GetArgs(), " "))

	if err := c.run(ctx, stream); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("ffmpeg 编码失败: %w: %w", models.ErrEncoding, err)
	}

	info, err := os.Stat(partial)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(partial)
		return fmt.Errorf("ffmpeg 没有产出视频文件: %w", models.ErrEncoding)
	}
	if err := os.Rename(partial, outputPath); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("重命名输出文件失败: %w: %w", models.ErrEncoding, err)
	}

	c.log.Info("视频编码完成", "output", outputPath, "bytes", info.Size())
	return nil
}

// PartialPath 编码过程中使用的临时文件名
func PartialPath(outputPath string) string {
	ext := filepath.Ext(outputPath)
	return strings.TrimSuffix(outputPath, ext) + ".partial.mp4"
}

func (c *Compositor) prepareInputs(plan *Plan, dir string) ([]layerInput, error) {
	layers := plan.Layers()
	inputs := make([]layerInput, 0, len(layers))
	for i, l := range layers {
		path := filepath.Join(dir, fmt.Sprintf("%03d_%s.png", i, l.Kind))
		switch l.Kind {
		case timeline.KindSlide:
			if err := PrepareImage(l.Image, path, plan.Frame()); err != nil {
				return nil, err
			}
		case timeline.KindCaption:
			if c.captions == nil {
				return nil, errors.New("未配置字幕渲染器")
			}
			if _, _, err := c.captions.Render(l.Text, path); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("未知图层类型: %q", l.Kind)
		}
		inputs = append(inputs, layerInput{layer: l, path: path})
	}
	return inputs, nil
}

// buildCommand 黑色底板 + 按 z 序逐层 overlay，混音作为音轨
func (c *Compositor) buildCommand(plan *Plan, inputs []layerInput, outputPath string) *ffmpeg.Stream {
	frame := plan.Frame()
	fps := strconv.Itoa(plan.FPS())
	total := seconds(plan.TotalSeconds())

	base := ffmpeg.Input(
		fmt.Sprintf("color=c=black:s=%dx%d:r=%s:d=%s", frame.Width, frame.Height, fps, total),
		ffmpeg.KwArgs{"f": "lavfi"},
	)

	for _, in := range inputs {
		l := in.layer
		src := ffmpeg.Input(in.path, ffmpeg.KwArgs{
			"loop":      "1",
			"framerate": fps,
			"t":         seconds(l.Duration()),
		})

		var layer *ffmpeg.Stream
		overlay := ffmpeg.KwArgs{"eof_action": "pass"}
		switch l.Kind {
		case timeline.KindSlide:
			layer = src.Filter("zoompan", ffmpeg.Args{}, ffmpeg.KwArgs{
				"z":   fmt.Sprintf("1+%g*on/%s", l.Zoom, fps),
				"d":   "1",
				"x":   "iw/2-(iw/zoom/2)",
				"y":   "ih/2-(ih/zoom/2)",
				"s":   fmt.Sprintf("%dx%d", frame.Width, frame.Height),
				"fps": fps,
			})
			overlay["x"] = "(W-w)/2"
			overlay["y"] = "(H-h)/2"
		default:
			layer = src
			overlay["x"] = "(W-w)/2"
			overlay["y"] = fmt.Sprintf("H-h-%d", c.opts.CaptionMargin)
		}

		layer = layer.Filter("format", ffmpeg.Args{"rgba"})
		if l.FadeIn > 0 {
			layer = layer.Filter("fade", ffmpeg.Args{}, ffmpeg.KwArgs{
				"t": "in", "st": "0", "d": seconds(l.FadeIn), "alpha": "1",
			})
		}
		if l.FadeOut > 0 {
			layer = layer.Filter("fade", ffmpeg.Args{}, ffmpeg.KwArgs{
				"t": "out", "st": seconds(l.Duration() - l.FadeOut), "d": seconds(l.FadeOut), "alpha": "1",
			})
		}
		layer = layer.Filter("setpts", ffmpeg.Args{fmt.Sprintf("PTS-STARTPTS+%s/TB", seconds(l.Start))})

		base = ffmpeg.Filter([]*ffmpeg.Stream{base, layer}, "overlay", ffmpeg.Args{}, overlay)
	}

	audio := ffmpeg.Input(plan.AudioPath()).Audio()

	return ffmpeg.Output([]*ffmpeg.Stream{base, audio}, outputPath, ffmpeg.KwArgs{
		"c:v":      c.opts.VideoCodec,
		"c:a":      c.opts.AudioCodec,
		"preset":   c.opts.Preset,
		"b:v":      c.opts.VideoBitrate,
		"r":        fps,
		"threads":  strconv.Itoa(c.opts.Threads),
		"pix_fmt":  "yuv420p",
		"movflags": "+faststart",
		"t":        total,
	}).OverWriteOutput()
}

func (c *Compositor) run(ctx context.Context, stream *ffmpeg.Stream) error {
	var stderr bytes.Buffer
	cmd := stream.Compile(c.binary())
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("启动 ffmpeg 失败: %w", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %s", err, tail(stderr.String(), 2000))
		}
		return nil
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	}
}

// binary 替换 ffmpeg 可执行文件路径（配置了 ffmpeg_path 时）
func (c *Compositor) binary() ffmpeg.CompilationOption {
	return func(_ *ffmpeg.Stream, cmd *exec.Cmd) {
		if c.opts.FFmpegPath == "" {
			return
		}
		cmd.Path = c.opts.FFmpegPath
		if len(cmd.Args) > 0 {
			cmd.Args[0] = c.opts.FFmpegPath
		}
		cmd.Err = nil
	}
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
