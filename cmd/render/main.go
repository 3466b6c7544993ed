// render 在本地目录上运行一次完整流水线，不经过队列和 HTTP 服务
//
// 目录结构与 Worker 的工作目录相同：
//
//	<dir>/audio/1.wav ... N.wav
//	<dir>/image/1.png ... N.png
//	<dir>/script/1.txt ... N.txt
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/z-wentao/slidecast/pkg/captions"
	"github.com/z-wentao/slidecast/pkg/config"
	"github.com/z-wentao/slidecast/pkg/logger"
	"github.com/z-wentao/slidecast/pkg/models"
	"github.com/z-wentao/slidecast/pkg/pipeline"
	"github.com/z-wentao/slidecast/pkg/render"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径，不存在时使用默认配置")
	dir := flag.String("dir", "", "素材目录（必填）")
	out := flag.String("out", "", "输出视频路径，默认 <dir>/out/final_video.mp4")
	fps := flag.Int("fps", 0, "帧率，默认取配置")
	showCaptions := flag.Bool("captions", false, "叠加字幕")
	source := flag.String("source", "", "字幕来源 whisper | script | srt 文件路径，默认取配置")
	bg := flag.String("bg", "", "背景音乐 wav，默认取配置")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "用法: render -dir ./work/demo [-captions] [-source script] [-out video.mp4]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ws := &pipeline.Workspace{Root: *dir}
	transcripts, err := ws.LoadTranscripts()
	if err != nil {
		log.Fatal("读取文稿失败", "error", err)
	}

	in := pipeline.Inputs{
		Segments:       ws.Segments(transcripts),
		BackgroundPath: cfg.Render.BackgroundPath,
		FPS:            cfg.Render.DefaultFPS,
		ShowCaptions:   *showCaptions,
		OutputPath:     ws.VideoPath(),
		MixPath:        ws.MixPath(),
		Language:       cfg.Captions.Language,
		Progress: func(s pipeline.Stage) {
			log.Info("阶段", "stage", s, "progress", s.Percent())
		},
	}
	if *out != "" {
		in.OutputPath = *out
	}
	if *fps != 0 {
		in.FPS = *fps
	}
	if in.FPS < models.MinFPS || in.FPS > models.MaxFPS {
		log.Fatal("帧率超出范围", "fps", in.FPS, "min", models.MinFPS, "max", models.MaxFPS)
	}
	if *bg != "" {
		in.BackgroundPath = *bg
	}

	src, err := captionSource(cfg, *source, log)
	if err != nil {
		log.Fatal("初始化字幕来源失败", "error", err)
	}
	captionRenderer, err := render.NewCaptionRenderer(cfg.Render.Caption)
	if err != nil {
		log.Fatal("加载字幕字体失败", "error", err)
	}
	runner := pipeline.NewRunner(cfg.PipelineOptions(),
		render.NewCompositor(cfg.Render.Encoder, captionRenderer, log), src, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := runner.Run(ctx, in)
	if err != nil {
		stage, _ := pipeline.StageOf(err)
		log.Fatal("生成视频失败", "stage", stage, "error", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(res)
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return config.Default()
	}
	return config.LoadConfig(path)
}

// captionSource name 为空时取配置；不是 whisper/script/none 时当作 SRT 文件路径
func captionSource(cfg *config.Config, name string, log *logger.Logger) (captions.Source, error) {
	if name == "" {
		name = cfg.Captions.Source
	}
	switch name {
	case "whisper":
		if cfg.Captions.Whisper.APIKey == "" {
			return nil, fmt.Errorf("whisper 需要 OPENAI_API_KEY")
		}
		return captions.NewWhisperSource(cfg.Captions.Whisper, log), nil
	case "script":
		return captions.NewScriptSource(), nil
	case "none":
		return nil, nil
	default:
		if _, err := os.Stat(name); err != nil {
			return nil, fmt.Errorf("字幕文件 %s: %w", name, err)
		}
		return &captions.FileSource{Path: name}, nil
	}
}
