package storage

import (
	"errors"

	"github.com/z-wentao/slidecast/pkg/models"
)

// ErrNotFound 任务不存在
var ErrNotFound = errors.New("任务不存在")

// Store 任务存储接口
type Store interface {
	// Save 保存任务（存在则覆盖）
	Save(job *models.RenderJob) error

	// Get 获取任务，不存在时返回 ErrNotFound
	Get(jobID string) (*models.RenderJob, error)

	// Update 读取-修改-写回
	Update(jobID string, updateFn func(*models.RenderJob)) error

	// List 按创建时间倒序列出任务
	List() ([]*models.RenderJob, error)

	Delete(jobID string) error

	Close() error
}

func isTerminal(job *models.RenderJob) bool {
	return job.Status == models.StatusCompleted || job.Status == models.StatusFailed
}
