package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/z-wentao/slidecast/pkg/assets"
	"github.com/z-wentao/slidecast/pkg/events"
	"github.com/z-wentao/slidecast/pkg/logger"
	"github.com/z-wentao/slidecast/pkg/models"
	"github.com/z-wentao/slidecast/pkg/pipeline"
	"github.com/z-wentao/slidecast/pkg/queue"
	"github.com/z-wentao/slidecast/pkg/storage"
	"github.com/z-wentao/slidecast/pkg/upload"
)

// Pipeline 渲染流水线（pipeline.Runner 实现）
type Pipeline interface {
	Run(ctx context.Context, in pipeline.Inputs) (*pipeline.Result, error)
}

// Fetcher 素材下载（assets.Fetcher 实现）
type Fetcher interface {
	Fetch(ctx context.Context, wavURLs, imageURLs []string, dst assets.Layout) error
}

type Options struct {
	PoolSize       int
	WorkDir        string
	JobTimeout     time.Duration
	BackgroundPath string
	Language       string
	KeepWorkspace  bool // 调试用，保留工作目录
}

// Worker 从队列取任务，下载素材、渲染、上传，并维护任务状态
type Worker struct {
	queue     queue.Queue
	store     storage.Store
	fetcher   Fetcher
	pipeline  Pipeline
	uploader  upload.Uploader
	publisher events.Publisher
	opts      Options
	log       *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(
	q queue.Queue,
	store storage.Store,
	fetcher Fetcher,
	p Pipeline,
	uploader upload.Uploader,
	publisher events.Publisher,
	opts Options,
	log *logger.Logger,
) *Worker {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 1
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		queue:     q,
		store:     store,
		fetcher:   fetcher,
		pipeline:  p,
		uploader:  uploader,
		publisher: publisher,
		opts:      opts,
		log:       log.With("service", "Worker"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start 启动 PoolSize 个消费协程
func (w *Worker) Start() {
	for i := 0; i < w.opts.PoolSize; i++ {
		w.wg.Add(1)
		go w.run(i + 1)
	}
	w.log.Info("Worker 已启动", "pool_size", w.opts.PoolSize)
}

// Stop 取消正在处理的任务并等待所有协程退出
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
	w.log.Info("Worker 已停止")
}

func (w *Worker) run(id int) {
	defer w.wg.Done()
	log := w.log.With("worker_id", id)

	for {
		job, err := w.queue.Dequeue(w.ctx)
		if err != nil {
			if w.ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			log.Warn("从队列获取任务失败", "error", err)
			select {
			case <-time.After(time.Second):
			case <-w.ctx.Done():
				return
			}
			continue
		}
		w.Process(w.ctx, job)
	}
}

// Process 处理单个任务，任何情况下都会清理工作目录并 Ack/Nack
func (w *Worker) Process(ctx context.Context, job *models.RenderJob) {
	log := w.log.With("job_id", job.JobID, "video_id", job.VideoID)
	start := time.Now()

	// 没有任务记录就无法追踪进度，不做无人能查询的渲染
	if err := w.ensureRecord(job, start); err != nil {
		log.Error("任务记录不可用，放弃处理", "error", err)
		w.finish(job, func(j *models.RenderJob) {
			j.Status = models.StatusFailed
			j.Error = err.Error()
		})
		if nerr := w.queue.Nack(job, false); nerr != nil {
			log.Warn("Nack 失败", "error", nerr)
		}
		return
	}

	var cancel context.CancelFunc
	if w.opts.JobTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, w.opts.JobTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	ws := pipeline.NewWorkspace(w.opts.WorkDir, job.JobID)
	if !w.opts.KeepWorkspace {
		defer func() {
			if err := ws.Cleanup(); err != nil {
				log.Warn("清理工作目录失败", "root", ws.Root, "error", err)
			}
		}()
	}

	w.update(job.JobID, func(j *models.RenderJob) {
		j.Status = models.StatusProcessing
		j.Error = ""
	})
	log.Info("开始处理任务", "segments", len(job.Request.Transcripts), "fps", job.Request.FPS)

	url, res, stage, err := w.render(ctx, job, ws)
	if err != nil {
		log.Error("任务失败", "stage", stage, "error", err, "elapsed", time.Since(start).String())
		w.finish(job, func(j *models.RenderJob) {
			j.Status = models.StatusFailed
			j.Stage = string(stage)
			j.Error = err.Error()
		})
		// 超时或格式错误重试也不会成功
		if nerr := w.queue.Nack(job, false); nerr != nil {
			log.Warn("Nack 失败", "error", nerr)
		}
		return
	}

	log.Info("任务完成", "url", url, "duration", res.TotalSeconds, "elapsed", time.Since(start).String())
	w.finish(job, func(j *models.RenderJob) {
		j.Status = models.StatusCompleted
		j.Stage = string(pipeline.StageDone)
		j.Progress = 100
		j.URL = url
		j.Duration = res.TotalSeconds
		j.LayerCount = res.LayerCount
		j.CaptionCount = res.CaptionCount
	})
	if aerr := w.queue.Ack(job); aerr != nil {
		log.Warn("Ack 失败", "error", aerr)
	}
}

// ensureRecord 消息可能先于 API 落库到达（RabbitMQ 重投），补一条记录
func (w *Worker) ensureRecord(job *models.RenderJob, now time.Time) error {
	_, err := w.store.Get(job.JobID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("读取任务记录失败: %w", err)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if err := w.store.Save(job); err != nil {
		return fmt.Errorf("保存任务记录失败: %w", err)
	}
	return nil
}

// render 返回失败时所处的阶段
func (w *Worker) render(ctx context.Context, job *models.RenderJob, ws *pipeline.Workspace) (string, *pipeline.Result, pipeline.Stage, error) {
	req := job.Request
	req.Normalize()
	if err := req.Validate(); err != nil {
		return "", nil, pipeline.StageValidate, err
	}

	w.progress(job.JobID, pipeline.StageFetch)
	if err := ws.Reset(); err != nil {
		return "", nil, pipeline.StageFetch, err
	}
	if err := ws.SaveTranscripts(req.Transcripts); err != nil {
		return "", nil, pipeline.StageFetch, err
	}
	if err := w.fetcher.Fetch(ctx, req.WavURLs, req.ImageURLs, ws); err != nil {
		return "", nil, pipeline.StageFetch, err
	}

	res, err := w.pipeline.Run(ctx, pipeline.Inputs{
		Segments:       ws.Segments(req.Transcripts),
		BackgroundPath: w.opts.BackgroundPath,
		FPS:            req.FPS,
		ShowCaptions:   req.ShowScript,
		OutputPath:     ws.VideoPath(),
		MixPath:        ws.MixPath(),
		Language:       w.opts.Language,
		Progress: func(s pipeline.Stage) {
			if s != pipeline.StageDone {
				w.progress(job.JobID, s)
			}
		},
	})
	if err != nil {
		stage, ok := pipeline.StageOf(err)
		if !ok {
			stage = pipeline.StageRender
		}
		return "", nil, stage, err
	}

	w.progress(job.JobID, pipeline.StageUpload)
	url, err := w.uploader.Upload(ctx, res.OutputPath, job.VideoID)
	if err != nil {
		return "", nil, pipeline.StageUpload, err
	}
	return url, res, "", nil
}

func (w *Worker) progress(jobID string, s pipeline.Stage) {
	w.update(jobID, func(j *models.RenderJob) {
		j.Stage = string(s)
		j.Progress = s.Percent()
	})
}

func (w *Worker) update(jobID string, fn func(*models.RenderJob)) {
	if err := w.store.Update(jobID, fn); err != nil {
		w.log.Warn("更新任务状态失败", "job_id", jobID, "error", err)
	}
}

// finish 写入终态并发布事件
func (w *Worker) finish(job *models.RenderJob, fn func(*models.RenderJob)) {
	w.update(job.JobID, func(j *models.RenderJob) {
		fn(j)
		j.CompletedAt = time.Now()
	})
	final, err := w.store.Get(job.JobID)
	if err != nil {
		final = job
		fn(final)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.publisher.Publish(ctx, events.FromJob(final)); err != nil {
		w.log.Warn("发布任务事件失败", "job_id", job.JobID, "error", err)
	}
}
