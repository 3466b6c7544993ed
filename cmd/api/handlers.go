package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/z-wentao/slidecast/pkg/logger"
	"github.com/z-wentao/slidecast/pkg/models"
	"github.com/z-wentao/slidecast/pkg/queue"
	"github.com/z-wentao/slidecast/pkg/storage"
	"github.com/z-wentao/slidecast/pkg/templates"
)

const version = "0.3.0"

// App HTTP 层依赖
type App struct {
	queue queue.Queue
	store storage.Store
	log   *logger.Logger
}

func (app *App) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), app.requestLogger())

	r.GET("/", app.handleJobsPage)
	r.GET("/jobs/:job_id/card", app.handleJobCard)

	api := r.Group("/api")
	{
		api.GET("/ping", app.handlePing)
		api.GET("/queue", app.handleQueueStats)
		api.POST("/videos", app.handleCreateVideo)
		api.GET("/jobs", app.handleListJobs)
		api.GET("/jobs/:job_id", app.handleGetJob)
		api.DELETE("/jobs/:job_id", app.handleDeleteJob)
	}
	return r
}

func (app *App) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		app.log.Debug("http",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
		)
	}
}

// statusFor 错误 → HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrEmptyInput), errors.Is(err, models.ErrInputMismatch):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (app *App) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong", "version": version})
}

// handleQueueStats 队列积压情况
func (app *App) handleQueueStats(c *gin.Context) {
	switch q := app.queue.(type) {
	case *queue.MemoryQueue:
		c.JSON(http.StatusOK, gin.H{"backend": "memory", "messages": q.Len()})
	case *queue.RabbitMQQueue:
		messages, consumers, err := q.Depth()
		if err != nil {
			app.log.Warn("查询队列深度失败", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "查询队列失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"backend": "rabbitmq", "messages": messages, "consumers": consumers})
	default:
		c.JSON(http.StatusOK, gin.H{"backend": "unknown"})
	}
}

// handleCreateVideo 校验请求、落库、入队，立即返回 job_id
func (app *App) handleCreateVideo(c *gin.Context) {
	var req models.RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job := &models.RenderJob{
		JobID:     uuid.New().String(),
		VideoID:   req.ID,
		Request:   req,
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
	}
	if err := app.store.Save(job); err != nil {
		app.log.Error("保存任务失败", "job_id", job.JobID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存任务失败"})
		return
	}
	if err := app.queue.Enqueue(c.Request.Context(), job); err != nil {
		app.log.Error("任务入队失败", "job_id", job.JobID, "error", err)
		_ = app.store.Update(job.JobID, func(j *models.RenderJob) {
			j.Status = models.StatusFailed
			j.Error = err.Error()
			j.CompletedAt = time.Now()
		})
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "任务加入队列失败", "job_id": job.JobID})
		return
	}

	app.log.Info("任务已加入队列", "job_id", job.JobID, "video_id", job.VideoID, "segments", len(req.Transcripts))
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":   job.JobID,
		"video_id": job.VideoID,
		"status":   job.Status,
	})
}

func (app *App) handleGetJob(c *gin.Context) {
	job, err := app.store.Get(c.Param("job_id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

// handleListJobs 支持 ?status= 过滤
func (app *App) handleListJobs(c *gin.Context) {
	jobs, err := app.store.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if status := c.Query("status"); status != "" {
		filtered := jobs[:0]
		for _, j := range jobs {
			if string(j.Status) == status {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// handleDeleteJob 正在处理的任务不能删除
func (app *App) handleDeleteJob(c *gin.Context) {
	jobID := c.Param("job_id")
	job, err := app.store.Get(jobID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if job.Status == models.StatusProcessing {
		c.JSON(http.StatusConflict, gin.H{"error": "任务正在处理中"})
		return
	}
	if err := app.store.Delete(jobID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已删除", "job_id": jobID})
}

func (app *App) handleJobsPage(c *gin.Context) {
	jobs, err := app.store.List()
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := templates.RenderJobList(c.Writer, jobs); err != nil {
		app.log.Error("渲染任务列表失败", "error", err)
	}
}

func (app *App) handleJobCard(c *gin.Context) {
	job, err := app.store.Get(c.Param("job_id"))
	if err != nil {
		c.String(statusFor(err), err.Error())
		return
	}
	card, err := templates.RenderJobCard(job)
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(card))
}
