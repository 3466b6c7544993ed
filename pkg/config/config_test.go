package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/z-wentao/slidecast/pkg/audio"
	"github.com/z-wentao/slidecast/pkg/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	r := cfg.Render
	if r.Format != audio.DefaultFormat || r.SilenceGap != 0.5 || r.DefaultFPS != models.DefaultFPS {
		t.Fatalf("render defaults: %+v", r)
	}
	if r.Frame.Width != 1080 || r.Frame.Height != 1920 {
		t.Fatalf("frame: %+v", r.Frame)
	}
	if r.Encoder.Preset != "slow" || r.Encoder.VideoBitrate != "5000k" || r.Encoder.Threads != 4 {
		t.Fatalf("encoder: %+v", r.Encoder)
	}
	if r.Caption.FontSize != 60 || r.Caption.Width != 500 {
		t.Fatalf("caption: %+v", r.Caption)
	}
	if cfg.Captions.Whisper.Granularity != "word" {
		t.Fatalf("granularity: %q", cfg.Captions.Whisper.Granularity)
	}
	if cfg.Captions.Source != "script" || cfg.Queue.Type != "memory" || cfg.Storage.Type != "memory" {
		t.Fatalf("runtime defaults: %+v %+v %+v", cfg.Captions, cfg.Queue, cfg.Storage)
	}
	if cfg.Worker.JobTimeout != 150*time.Minute || cfg.Server.Port != 8080 {
		t.Fatalf("worker/server: %+v %+v", cfg.Worker, cfg.Server)
	}

	opts := cfg.PipelineOptions()
	if opts.Mixer.SilenceGap != 500*time.Millisecond || opts.Crossfade != 200*time.Millisecond {
		t.Fatalf("pipeline options: %+v", opts)
	}
}

func TestLoadConfigAndEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("GCP_BUCKET_NAME", "bucket-from-env")
	t.Setenv("MAKE_PUBLIC", "false")
	path := writeConfig(t, `
render:
  silence_gap: 0.25
  default_fps: 24
  frame:
    width: 720
    height: 1280
captions:
  source: whisper
worker:
  job_timeout: 10m
upload:
  provider: gcs
  make_public: true
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Captions.Whisper.APIKey != "sk-env" || cfg.Upload.Bucket != "bucket-from-env" || cfg.Upload.MakePublic {
		t.Fatalf("env overrides: %+v %+v", cfg.Captions.Whisper, cfg.Upload)
	}
	if cfg.Render.SilenceGap != 0.25 || cfg.Render.DefaultFPS != 24 || cfg.Render.Frame.Width != 720 {
		t.Fatalf("render: %+v", cfg.Render)
	}
	if cfg.Worker.JobTimeout != 10*time.Minute {
		t.Fatalf("job timeout: %v", cfg.Worker.JobTimeout)
	}
}

func TestValidateRejects(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GCP_BUCKET_NAME", "")
	t.Setenv("RABBITMQ_URL", "")
	cases := map[string]string{
		"whisper without key":  "captions:\n  source: whisper\n",
		"unknown source":       "captions:\n  source: magic\n",
		"unknown granularity":  "captions:\n  whisper:\n    granularity: letter\n",
		"fps out of range":     "render:\n  default_fps: 5\n",
		"rabbitmq without url": "queue:\n  type: rabbitmq\n",
		"unknown storage":      "storage:\n  type: mongo\n",
		"gcs without bucket":   "upload:\n  provider: gcs\n",
		"kafka without broker": "events:\n  type: kafka\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, body)); err == nil {
				t.Fatalf("want error")
			}
		})
	}
}

func TestExampleConfigLoads(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := LoadConfig(filepath.Join("..", "..", "config", "config.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Assets.Timeout != 30*time.Second || cfg.Storage.Redis.TTL != 168*time.Hour {
		t.Fatalf("durations: %+v %+v", cfg.Assets, cfg.Storage.Redis)
	}
}
