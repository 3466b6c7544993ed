package queue

import (
	"context"
	"errors"

	"github.com/z-wentao/slidecast/pkg/models"
)

// ErrClosed 队列已关闭
var ErrClosed = errors.New("队列已关闭")

// Queue 渲染任务队列
type Queue interface {
	// Enqueue 将任务加入队列
	Enqueue(ctx context.Context, job *models.RenderJob) error

	// Dequeue 阻塞直到取到任务、ctx 结束或队列关闭（返回 ErrClosed）
	Dequeue(ctx context.Context) (*models.RenderJob, error)

	// Ack 任务处理完成
	Ack(job *models.RenderJob) error

	// Nack 任务处理失败，requeue 表示是否重新入队
	Nack(job *models.RenderJob, requeue bool) error

	Close() error
}

// message 队列中传递的内容，只带重建任务需要的字段
type message struct {
	JobID   string               `json:"job_id"`
	VideoID string               `json:"video_id"`
	Request models.RenderRequest `json:"request"`
}

func toMessage(job *models.RenderJob) message {
	return message{JobID: job.JobID, VideoID: job.VideoID, Request: job.Request}
}

func (m message) job() *models.RenderJob {
	return &models.RenderJob{
		JobID:   m.JobID,
		VideoID: m.VideoID,
		Request: m.Request,
		Status:  models.StatusPending,
	}
}
