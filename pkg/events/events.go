package events

import (
	"context"
	"time"

	"github.com/z-wentao/slidecast/pkg/models"
)

// Event 任务进入终态时发布的消息
type Event struct {
	JobID      string           `json:"job_id"`
	VideoID    string           `json:"video_id"`
	Status     models.JobStatus `json:"status"`
	Stage      string           `json:"stage,omitempty"`
	URL        string           `json:"url,omitempty"`
	Duration   float64          `json:"duration"`
	Error      string           `json:"error,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

func FromJob(job *models.RenderJob) Event {
	at := job.CompletedAt
	if at.IsZero() {
		at = time.Now()
	}
	return Event{
		JobID:      job.JobID,
		VideoID:    job.VideoID,
		Status:     job.Status,
		Stage:      job.Stage,
		URL:        job.URL,
		Duration:   job.Duration,
		Error:      job.Error,
		OccurredAt: at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop 不发布任何事件
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (Nop) Close() error { return nil }
