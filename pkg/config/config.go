package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/z-wentao/slidecast/pkg/audio"
	"github.com/z-wentao/slidecast/pkg/captions"
	"github.com/z-wentao/slidecast/pkg/models"
	"github.com/z-wentao/slidecast/pkg/pipeline"
	"github.com/z-wentao/slidecast/pkg/render"
	"github.com/z-wentao/slidecast/pkg/timeline"
)

// Config 应用配置
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Render   RenderConfig   `yaml:"render"`
	Captions CaptionsConfig `yaml:"captions"`
	Assets   AssetsConfig   `yaml:"assets"`
	Worker   WorkerConfig   `yaml:"worker"`
	Queue    QueueConfig    `yaml:"queue"`
	Storage  StorageConfig  `yaml:"storage"`
	Upload   UploadConfig   `yaml:"upload"`
	Events   EventsConfig   `yaml:"events"`
	Server   ServerConfig   `yaml:"server"`
}

type LogConfig struct {
	Mode string `yaml:"mode"` // dev | prod
}

// RenderConfig 音频、时间轴和编码参数
type RenderConfig struct {
	Format         audio.Format          `yaml:"format"`
	SilenceGap     float64               `yaml:"silence_gap"` // 秒
	BackgroundPath string                `yaml:"background_path"`
	Audio          AudioConfig           `yaml:"audio"`
	Timeline       timeline.Options      `yaml:"timeline"`
	Frame          timeline.Size         `yaml:"frame"`
	DefaultFPS     int                   `yaml:"default_fps"`
	Encoder        render.EncoderOptions `yaml:"encoder"`
	Caption        render.CaptionStyle   `yaml:"caption"`
}

// AudioConfig 增益（dB）和淡入淡出（毫秒）
type AudioConfig struct {
	HeadroomDB      float64 `yaml:"headroom_db"`
	BackgroundDB    float64 `yaml:"background_db"`
	CrossfadeMS     int     `yaml:"crossfade_ms"`
	LoopFadeInMS    int     `yaml:"loop_fade_in_ms"`
	LoopFadeOutMS   int     `yaml:"loop_fade_out_ms"`
	BgFadeInMS      int     `yaml:"bg_fade_in_ms"`
	BgFadeOutMS     int     `yaml:"bg_fade_out_ms"`
	MasterFadeInMS  int     `yaml:"master_fade_in_ms"`
	MasterFadeOutMS int     `yaml:"master_fade_out_ms"`
}

// CaptionsConfig 字幕来源：whisper | script | none
type CaptionsConfig struct {
	Source   string                  `yaml:"source"`
	Language string                  `yaml:"language"`
	Whisper  captions.WhisperOptions `yaml:"whisper"`
}

type AssetsConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	MaxBytes    int64         `yaml:"max_bytes"`
}

// WorkerConfig Worker 配置
type WorkerConfig struct {
	PoolSize   int           `yaml:"pool_size"` // 同时处理的任务数
	WorkDir    string        `yaml:"work_dir"`
	JobTimeout time.Duration `yaml:"job_timeout"`
}

// QueueConfig 队列配置
type QueueConfig struct {
	Type       string         `yaml:"type"` // memory | rabbitmq
	BufferSize int            `yaml:"buffer_size"`
	RabbitMQ   RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig RabbitMQ 配置
type RabbitMQConfig struct {
	URL       string `yaml:"url"`
	QueueName string `yaml:"queue_name"`
}

// StorageConfig 任务存储：memory | redis | postgres | hybrid
type StorageConfig struct {
	Type     string         `yaml:"type"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// UploadConfig 成品上传：gcs | s3 | local
type UploadConfig struct {
	Provider   string `yaml:"provider"`
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix"`
	MakePublic bool   `yaml:"make_public"`
	CredsPath  string `yaml:"creds_path"` // GCS 服务账号 JSON，可选
	Region     string `yaml:"region"`     // S3
	LocalDir   string `yaml:"local_dir"`
	BaseURL    string `yaml:"base_url"` // local 模式下拼接下载地址
}

// EventsConfig 任务事件：none | kafka
type EventsConfig struct {
	Type    string   `yaml:"type"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return &config, nil
}

// Default 没有配置文件时使用的默认配置（仍会读取环境变量）
func Default() (*Config, error) {
	var config Config
	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// ApplyEnv 环境变量覆盖配置文件中的密钥和存储位置
func (c *Config) ApplyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Captions.Whisper.APIKey = v
	}
	if v := os.Getenv("GCP_BUCKET_NAME"); v != "" {
		c.Upload.Bucket = v
	}
	if v := os.Getenv("MAKE_PUBLIC"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Upload.MakePublic = b
		}
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.Upload.Region = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		c.Queue.RabbitMQ.URL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.Postgres.DSN = v
	}
}

// Validate 验证配置并补全默认值
func (c *Config) Validate() error {
	if c.Log.Mode == "" {
		c.Log.Mode = "dev"
	}

	r := &c.Render
	if r.Format == (audio.Format{}) {
		r.Format = audio.DefaultFormat
	}
	if err := r.Format.Validate(); err != nil {
		return err
	}
	if r.SilenceGap <= 0 {
		r.SilenceGap = 0.5
	}
	c.validateAudio()
	dt := timeline.DefaultOptions()
	if r.Timeline.ZoomRate <= 0 {
		r.Timeline.ZoomRate = dt.ZoomRate
	}
	if r.Timeline.SlideFade <= 0 {
		r.Timeline.SlideFade = dt.SlideFade
	}
	if r.Timeline.CaptionFade <= 0 {
		r.Timeline.CaptionFade = dt.CaptionFade
	}
	if r.Frame.Width <= 0 || r.Frame.Height <= 0 {
		r.Frame = timeline.Size{Width: 1080, Height: 1920}
	}
	if r.DefaultFPS == 0 {
		r.DefaultFPS = models.DefaultFPS
	}
	if r.DefaultFPS < models.MinFPS || r.DefaultFPS > models.MaxFPS {
		return fmt.Errorf("render.default_fps 必须在 %d-%d 之间", models.MinFPS, models.MaxFPS)
	}
	fillEncoder(&r.Encoder)
	fillCaption(&r.Caption)

	switch c.Captions.Source {
	case "":
		c.Captions.Source = "script"
	case "whisper":
		if c.Captions.Whisper.APIKey == "" || c.Captions.Whisper.APIKey == "your-openai-api-key-here" {
			return fmt.Errorf("captions.source=whisper 需要有效的 OpenAI API Key")
		}
	case "script", "none":
	default:
		return fmt.Errorf("未知的字幕来源: %s", c.Captions.Source)
	}
	switch c.Captions.Whisper.Granularity {
	case "":
		c.Captions.Whisper.Granularity = captions.GranularityWord
	case captions.GranularityWord, captions.GranularitySegment:
	default:
		return fmt.Errorf("未知的字幕粒度: %s（word | segment）", c.Captions.Whisper.Granularity)
	}

	if c.Assets.Timeout <= 0 {
		c.Assets.Timeout = 30 * time.Second
	}
	if c.Assets.Concurrency <= 0 {
		c.Assets.Concurrency = 4
	}

	if c.Worker.PoolSize <= 0 {
		c.Worker.PoolSize = 2
	}
	if c.Worker.WorkDir == "" {
		c.Worker.WorkDir = "./work"
	}
	if c.Worker.JobTimeout <= 0 {
		c.Worker.JobTimeout = 150 * time.Minute
	}

	if c.Queue.Type == "" {
		c.Queue.Type = "memory"
	}
	if c.Queue.BufferSize <= 0 {
		c.Queue.BufferSize = 100
	}
	if c.Queue.Type == "rabbitmq" && c.Queue.RabbitMQ.URL == "" {
		return fmt.Errorf("queue.type=rabbitmq 需要配置 queue.rabbitmq.url")
	}
	if c.Queue.RabbitMQ.QueueName == "" {
		c.Queue.RabbitMQ.QueueName = "render_jobs"
	}

	switch c.Storage.Type {
	case "":
		c.Storage.Type = "memory"
	case "memory", "redis", "postgres", "hybrid":
	default:
		return fmt.Errorf("未知的存储类型: %s", c.Storage.Type)
	}
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = "localhost:6379"
	}
	if c.Storage.Redis.TTL <= 0 {
		c.Storage.Redis.TTL = 7 * 24 * time.Hour
	}

	switch c.Upload.Provider {
	case "":
		c.Upload.Provider = "local"
	case "gcs", "s3":
		if c.Upload.Bucket == "" {
			return fmt.Errorf("upload.provider=%s 需要配置 bucket", c.Upload.Provider)
		}
	case "local":
	default:
		return fmt.Errorf("未知的上传方式: %s", c.Upload.Provider)
	}
	if c.Upload.Prefix == "" {
		c.Upload.Prefix = "videos/"
	}
	if c.Upload.LocalDir == "" {
		c.Upload.LocalDir = "./videos"
	}

	if c.Events.Type == "" {
		c.Events.Type = "none"
	}
	if c.Events.Type == "kafka" && len(c.Events.Brokers) == 0 {
		return fmt.Errorf("events.type=kafka 需要配置 brokers")
	}
	if c.Events.Topic == "" {
		c.Events.Topic = "slidecast.jobs"
	}

	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	return nil
}

func (c *Config) validateAudio() {
	a := &c.Render.Audio
	d := audio.DefaultMixerOptions()
	if a.HeadroomDB == 0 {
		a.HeadroomDB = d.HeadroomDB
	}
	if a.BackgroundDB == 0 {
		a.BackgroundDB = d.BackgroundDB
	}
	setMS(&a.CrossfadeMS, 200)
	setMS(&a.LoopFadeInMS, 200)
	setMS(&a.LoopFadeOutMS, 300)
	setMS(&a.BgFadeInMS, int(d.BackgroundIn.Milliseconds()))
	setMS(&a.BgFadeOutMS, int(d.BackgroundOut.Milliseconds()))
	setMS(&a.MasterFadeInMS, int(d.MasterFadeIn.Milliseconds()))
	setMS(&a.MasterFadeOutMS, int(d.MasterFadeOut.Milliseconds()))
}

func setMS(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func fillEncoder(e *render.EncoderOptions) {
	d := render.DefaultEncoderOptions()
	if e.VideoCodec == "" {
		e.VideoCodec = d.VideoCodec
	}
	if e.AudioCodec == "" {
		e.AudioCodec = d.AudioCodec
	}
	if e.Preset == "" {
		e.Preset = d.Preset
	}
	if e.VideoBitrate == "" {
		e.VideoBitrate = d.VideoBitrate
	}
	if e.Threads <= 0 {
		e.Threads = d.Threads
	}
	if e.CaptionMargin <= 0 {
		e.CaptionMargin = d.CaptionMargin
	}
}

func fillCaption(s *render.CaptionStyle) {
	d := render.DefaultCaptionStyle()
	if s.FontSize <= 0 {
		s.FontSize = d.FontSize
	}
	if strings.TrimSpace(s.Color) == "" {
		s.Color = d.Color
	}
	if s.Width <= 0 {
		s.Width = d.Width
	}
	if s.LineSpacing <= 0 {
		s.LineSpacing = d.LineSpacing
	}
	if s.Padding <= 0 {
		s.Padding = d.Padding
	}
}

// PipelineOptions 转换为流水线参数
func (c *Config) PipelineOptions() pipeline.Options {
	r := c.Render
	a := r.Audio
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return pipeline.Options{
		Mixer: audio.MixerOptions{
			Format:        r.Format,
			SilenceGap:    time.Duration(r.SilenceGap * float64(time.Second)),
			HeadroomDB:    a.HeadroomDB,
			BackgroundDB:  a.BackgroundDB,
			BackgroundIn:  ms(a.BgFadeInMS),
			BackgroundOut: ms(a.BgFadeOutMS),
			MasterFadeIn:  ms(a.MasterFadeInMS),
			MasterFadeOut: ms(a.MasterFadeOutMS),
		},
		Crossfade:   ms(a.CrossfadeMS),
		LoopFadeIn:  ms(a.LoopFadeInMS),
		LoopFadeOut: ms(a.LoopFadeOutMS),
		Timeline:    r.Timeline,
		Frame:       r.Frame,
	}
}
