package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/z-wentao/slidecast/pkg/models"
)

// MemoryQueue 基于 Channel 的内存队列
// Ack 为空操作；Nack(requeue=true) 会把任务放回队尾
type MemoryQueue struct {
	queue chan *models.RenderJob
	done  chan struct{}
	once  sync.Once
}

func NewMemoryQueue(bufferSize int) *MemoryQueue {
	return &MemoryQueue{
		queue: make(chan *models.RenderJob, bufferSize),
		done:  make(chan struct{}),
	}
}

// Enqueue 队列满时立即返回错误，不阻塞 HTTP 请求
func (mq *MemoryQueue) Enqueue(_ context.Context, job *models.RenderJob) error {
	select {
	case <-mq.done:
		return ErrClosed
	default:
	}
	select {
	case mq.queue <- job:
		return nil
	default:
		return fmt.Errorf("队列已满 (容量 %d)", cap(mq.queue))
	}
}

func (mq *MemoryQueue) Dequeue(ctx context.Context) (*models.RenderJob, error) {
	select {
	case job := <-mq.queue:
		return job, nil
	case <-mq.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (mq *MemoryQueue) Ack(*models.RenderJob) error { return nil }

func (mq *MemoryQueue) Nack(job *models.RenderJob, requeue bool) error {
	if !requeue {
		return nil
	}
	return mq.Enqueue(context.Background(), job)
}

// Len 当前排队数量
func (mq *MemoryQueue) Len() int { return len(mq.queue) }

func (mq *MemoryQueue) Close() error {
	mq.once.Do(func() { close(mq.done) })
	return nil
}
