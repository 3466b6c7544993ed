package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/z-wentao/slidecast/pkg/audio"
	"github.com/z-wentao/slidecast/pkg/captions"
	"github.com/z-wentao/slidecast/pkg/logger"
	"github.com/z-wentao/slidecast/pkg/models"
	"github.com/z-wentao/slidecast/pkg/render"
	"github.com/z-wentao/slidecast/pkg/timeline"
)

// Encoder 最终编码阶段（render.Compositor 实现）
type Encoder interface {
	Render(ctx context.Context, plan *render.Plan, outputPath string) error
}

// Options 流水线参数
type Options struct {
	Mixer       audio.MixerOptions
	Crossfade   time.Duration // 背景音乐循环接缝
	LoopFadeIn  time.Duration
	LoopFadeOut time.Duration
	Timeline    timeline.Options
	Frame       timeline.Size
}

func DefaultOptions() Options {
	loop := audio.DefaultLoopSpec(0)
	return Options{
		Mixer:       audio.DefaultMixerOptions(),
		Crossfade:   loop.Crossfade,
		LoopFadeIn:  loop.FadeIn,
		LoopFadeOut: loop.FadeOut,
		Timeline:    timeline.DefaultOptions(),
		Frame:       timeline.Size{Width: 1080, Height: 1920},
	}
}

// Inputs 一次运行的全部输入，路径都由调用方显式给出
type Inputs struct {
	Segments       []models.Segment
	BackgroundPath string // 可选，文件不存在时只用人声
	FPS            int
	ShowCaptions   bool
	OutputPath     string
	MixPath        string // 混音输出，默认与视频同目录的 output.wav
	Language       string
	Progress       func(stage Stage)
}

// Validate 检查片段是否完整
func (in *Inputs) Validate() error {
	if len(in.Segments) == 0 {
		return fmt.Errorf("没有片段: %w", models.ErrEmptyInput)
	}
	for i, s := range in.Segments {
		if s.AudioPath == "" || s.ImagePath == "" {
			return fmt.Errorf("片段 %d 缺少语音或图片: %w", i+1, models.ErrInputMismatch)
		}
		if strings.TrimSpace(s.Transcript) == "" {
			return fmt.Errorf("片段 %d 文稿为空: %w", i+1, models.ErrEmptyInput)
		}
	}
	if in.FPS <= 0 {
		return fmt.Errorf("无效的帧率: %d", in.FPS)
	}
	if in.OutputPath == "" {
		return fmt.Errorf("未指定输出路径")
	}
	return nil
}

// Result 运行结果
type Result struct {
	OutputPath    string                  `json:"output_path"`
	MixPath       string                  `json:"mix_path"`
	Durations     []float64               `json:"durations"`
	TotalSeconds  float64                 `json:"total_seconds"`
	LayerCount    int                     `json:"layer_count"`
	CaptionCount  int                     `json:"caption_count"`
	CaptionIssues []timeline.CaptionIssue `json:"caption_issues,omitempty"`
	SubtitlePath  string                  `json:"subtitle_path,omitempty"`
	VTTPath       string                  `json:"vtt_path,omitempty"`
}

// Runner 在进程内按顺序执行各阶段
type Runner struct {
	opts     Options
	mixer    *audio.Mixer
	builder  *timeline.Builder
	encoder  Encoder
	captions captions.Source
	log      *logger.Logger
}

// NewRunner captions 可以为 nil，此时忽略 ShowCaptions
func NewRunner(opts Options, encoder Encoder, source captions.Source, log *logger.Logger) *Runner {
	return &Runner{
		opts:     opts,
		mixer:    audio.NewMixer(opts.Mixer),
		builder:  timeline.NewBuilder(opts.Timeline),
		encoder:  encoder,
		captions: source,
		log:      log.With("service", "Pipeline"),
	}
}

// Run 解码 → 时长统计 → 背景循环 → 混音 → 字幕 → 时间轴 → 渲染计划 → 编码
// 任一阶段失败都返回 *StageError
func (r *Runner) Run(ctx context.Context, in Inputs) (*Result, error) {
	step := func(s Stage) {
		if in.Progress != nil {
			in.Progress(s)
		}
	}

	step(StageValidate)
	if err := in.Validate(); err != nil {
		return nil, stageErr(StageValidate, err)
	}
	mixPath := in.MixPath
	if mixPath == "" {
		mixPath = filepath.Join(filepath.Dir(in.OutputPath), "output.wav")
	}

	step(StageDecode)
	tracks, images, err := r.decode(in.Segments)
	if err != nil {
		return nil, stageErr(StageDecode, err)
	}

	step(StageAccount)
	narration, err := audio.Account(tracks, r.opts.Mixer.SilenceGap)
	if err != nil {
		return nil, stageErr(StageAccount, err)
	}
	r.log.Info("旁白时长统计完成",
		"segments", narration.Count(),
		"total", narration.TotalSeconds(),
		"gap", narration.GapSeconds(),
	)

	step(StageLoop)
	background, err := r.background(in.BackgroundPath, narration.TotalSeconds())
	if err != nil {
		return nil, stageErr(StageLoop, err)
	}

	step(StageMix)
	mixed, err := r.mixer.Mix(tracks, background)
	if err != nil {
		return nil, stageErr(StageMix, err)
	}
	if mixed.Frames() != narration.TotalFrames() {
		return nil, stageErr(StageMix, fmt.Errorf("混音 %d 帧，旁白 %d 帧: %w",
			mixed.Frames(), narration.TotalFrames(), models.ErrDurationMismatch))
	}
	if err := os.MkdirAll(filepath.Dir(mixPath), 0o755); err != nil {
		return nil, stageErr(StageMix, err)
	}
	if err := audio.EncodeWAVFile(mixed, mixPath); err != nil {
		return nil, stageErr(StageMix, err)
	}

	res := &Result{
		OutputPath:   in.OutputPath,
		MixPath:      mixPath,
		Durations:    narration.Durations(),
		TotalSeconds: narration.TotalSeconds(),
	}

	var caps []models.Caption
	if in.ShowCaptions && r.captions != nil {
		step(StageCaptions)
		caps, err = r.captions.Captions(ctx, captions.Request{
			AudioPath:   mixPath,
			Transcripts: transcripts(in.Segments),
			Narration:   narration,
			Language:    in.Language,
		})
		if err != nil {
			return nil, stageErr(StageCaptions, err)
		}
		base := strings.TrimSuffix(in.OutputPath, filepath.Ext(in.OutputPath))
		if err := captions.GenerateSRT(caps, base+".srt"); err != nil {
			r.log.Warn("生成 SRT 失败", "error", err)
		} else {
			res.SubtitlePath = base + ".srt"
		}
		if err := captions.GenerateVTT(caps, base+".vtt"); err != nil {
			r.log.Warn("生成 VTT 失败", "error", err)
		} else {
			res.VTTPath = base + ".vtt"
		}
	}

	step(StageTimeline)
	built, err := r.builder.Build(images, narration, r.opts.Frame, caps)
	if err != nil {
		return nil, stageErr(StageTimeline, err)
	}
	for _, issue := range built.Issues {
		r.log.Warn("字幕时间轴问题", "index", issue.Index, "kind", issue.Kind, "detail", issue.Detail)
	}
	res.LayerCount = len(built.Layers)
	res.CaptionCount = built.Captions
	res.CaptionIssues = built.Issues

	step(StagePlan)
	plan, err := render.NewPlan(built.Layers, mixPath, in.FPS, r.opts.Frame, built.Total)
	if err != nil {
		return nil, stageErr(StagePlan, err)
	}

	step(StageRender)
	if err := r.encoder.Render(ctx, plan, in.OutputPath); err != nil {
		return nil, stageErr(StageRender, err)
	}
	if _, err := os.Stat(in.OutputPath); err != nil {
		return nil, stageErr(StageRender, fmt.Errorf("输出文件 %s: %w", in.OutputPath, models.ErrMissingAsset))
	}

	step(StageDone)
	r.log.Info("视频生成完成",
		"output", in.OutputPath,
		"duration", res.TotalSeconds,
		"layers", res.LayerCount,
		"captions", res.CaptionCount,
	)
	return res, nil
}

// decode 解码全部语音并归一化到统一格式，同时检查图片是否存在
func (r *Runner) decode(segments []models.Segment) ([]*audio.Track, []string, error) {
	tracks := make([]*audio.Track, len(segments))
	images := make([]string, len(segments))
	for i, s := range segments {
		t, err := audio.DecodeWAVFile(s.AudioPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil, fmt.Errorf("语音 %s: %w", s.AudioPath, models.ErrMissingAsset)
			}
			return nil, nil, fmt.Errorf("解码片段 %d 失败: %w", i+1, err)
		}
		if tracks[i], err = audio.Normalize(t, r.opts.Mixer.Format); err != nil {
			return nil, nil, fmt.Errorf("归一化片段 %d 失败: %w", i+1, err)
		}
		if _, err := os.Stat(s.ImagePath); err != nil {
			return nil, nil, fmt.Errorf("图片 %s: %w", s.ImagePath, models.ErrMissingAsset)
		}
		images[i] = s.ImagePath
	}
	return tracks, images, nil
}

// background 背景音乐缺失时返回 nil，不算错误
func (r *Runner) background(path string, total float64) (*audio.Track, error) {
	if path == "" {
		return nil, nil
	}
	src, err := audio.DecodeWAVFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		r.log.Warn("背景音乐不存在，只使用人声", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("解码背景音乐失败: %w", err)
	}

	spec := audio.DefaultLoopSpec(total)
	spec.Format = r.opts.Mixer.Format
	spec.Crossfade = r.opts.Crossfade
	spec.FadeIn = r.opts.LoopFadeIn
	spec.FadeOut = r.opts.LoopFadeOut
	bg, err := audio.Synthesize(src, spec)
	if err != nil {
		return nil, err
	}
	r.log.Debug("背景音乐已循环", "source", src.Seconds(), "target", total, "result_ms", bg.Millis())
	return bg, nil
}

func transcripts(segments []models.Segment) []string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = strings.TrimSpace(s.Transcript)
	}
	return out
}
