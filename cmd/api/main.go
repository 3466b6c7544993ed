package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/z-wentao/slidecast/pkg/assets"
	"github.com/z-wentao/slidecast/pkg/captions"
	"github.com/z-wentao/slidecast/pkg/config"
	"github.com/z-wentao/slidecast/pkg/events"
	"github.com/z-wentao/slidecast/pkg/logger"
	"github.com/z-wentao/slidecast/pkg/pipeline"
	"github.com/z-wentao/slidecast/pkg/queue"
	"github.com/z-wentao/slidecast/pkg/render"
	"github.com/z-wentao/slidecast/pkg/storage"
	"github.com/z-wentao/slidecast/pkg/upload"
	"github.com/z-wentao/slidecast/pkg/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
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
	if cfg.Log.Mode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	store, err := newStore(cfg, log)
	if err != nil {
		log.Fatal("初始化任务存储失败", "error", err)
	}
	defer store.Close()

	q, err := newQueue(cfg, log)
	if err != nil {
		log.Fatal("初始化队列失败", "error", err)
	}

	uploader, err := newUploader(ctx, cfg, log)
	if err != nil {
		log.Fatal("初始化上传失败", "error", err)
	}

	publisher, err := newPublisher(cfg, log)
	if err != nil {
		log.Fatal("初始化事件发布失败", "error", err)
	}
	defer publisher.Close()

	runner, err := newRunner(cfg, log)
	if err != nil {
		log.Fatal("初始化渲染流水线失败", "error", err)
	}

	w := worker.NewWorker(q, store,
		assets.NewFetcher(assets.Options{
			Timeout:     cfg.Assets.Timeout,
			Concurrency: cfg.Assets.Concurrency,
			MaxBytes:    cfg.Assets.MaxBytes,
		}, log),
		runner, uploader, publisher,
		worker.Options{
			PoolSize:       cfg.Worker.PoolSize,
			WorkDir:        cfg.Worker.WorkDir,
			JobTimeout:     cfg.Worker.JobTimeout,
			BackgroundPath: cfg.Render.BackgroundPath,
			Language:       cfg.Captions.Language,
		},
		log,
	)
	w.Start()

	app := &App{queue: q, store: store, log: log.With("service", "API")}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: app.setupRouter(),
	}
	go func() {
		log.Info("服务器启动",
			"port", cfg.Server.Port,
			"queue", cfg.Queue.Type,
			"storage", cfg.Storage.Type,
			"upload", cfg.Upload.Provider,
			"captions", cfg.Captions.Source,
			"workers", cfg.Worker.PoolSize,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("服务器启动失败", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP 服务器关闭超时", "error", err)
	}
	q.Close()
	w.Stop()
	log.Info("服务器已关闭")
}

func newStore(cfg *config.Config, log *logger.Logger) (storage.Store, error) {
	sc := cfg.Storage
	switch sc.Type {
	case "redis":
		return storage.NewRedisJobStore(sc.Redis.Addr, sc.Redis.Password, sc.Redis.DB, sc.Redis.TTL)
	case "postgres":
		return storage.NewPostgresJobStore(sc.Postgres.DSN)
	case "hybrid":
		cache, err := storage.NewRedisJobStore(sc.Redis.Addr, sc.Redis.Password, sc.Redis.DB, sc.Redis.TTL)
		if err != nil {
			return nil, err
		}
		db, err := storage.NewPostgresJobStore(sc.Postgres.DSN)
		if err != nil {
			cache.Close()
			return nil, err
		}
		return storage.NewHybridJobStore(cache, db, log), nil
	default:
		return storage.NewJobStore(), nil
	}
}

func newQueue(cfg *config.Config, log *logger.Logger) (queue.Queue, error) {
	if cfg.Queue.Type == "rabbitmq" {
		return queue.NewRabbitMQQueue(cfg.Queue.RabbitMQ.URL, cfg.Queue.RabbitMQ.QueueName, cfg.Worker.PoolSize, log)
	}
	return queue.NewMemoryQueue(cfg.Queue.BufferSize), nil
}

func newUploader(ctx context.Context, cfg *config.Config, log *logger.Logger) (upload.Uploader, error) {
	uc := cfg.Upload
	switch uc.Provider {
	case "gcs":
		return upload.NewGCSUploader(ctx, uc.Bucket, uc.Prefix, uc.CredsPath, uc.MakePublic, log)
	case "s3":
		return upload.NewS3Uploader(ctx, uc.Bucket, uc.Prefix, uc.Region, uc.MakePublic)
	default:
		return upload.NewLocalUploader(uc.LocalDir, uc.Prefix, uc.BaseURL), nil
	}
}

func newPublisher(cfg *config.Config, log *logger.Logger) (events.Publisher, error) {
	if cfg.Events.Type == "kafka" {
		return events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, log)
	}
	return events.Nop{}, nil
}

func newRunner(cfg *config.Config, log *logger.Logger) (*pipeline.Runner, error) {
	captionRenderer, err := render.NewCaptionRenderer(cfg.Render.Caption)
	if err != nil {
		return nil, err
	}
	var source captions.Source
	switch cfg.Captions.Source {
	case "whisper":
		source = captions.NewWhisperSource(cfg.Captions.Whisper, log)
	case "script":
		source = captions.NewScriptSource()
	}
	encoder := render.NewCompositor(cfg.Render.Encoder, captionRenderer, log)
	return pipeline.NewRunner(cfg.PipelineOptions(), encoder, source, log), nil
}
