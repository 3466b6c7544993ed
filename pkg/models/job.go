package models

import "time"

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// RenderJob 视频合成任务
type RenderJob struct {
	JobID        string        `json:"job_id"`
	VideoID      string        `json:"video_id"` // 调用方提供的 id，用于命名上传对象
	Request      RenderRequest `json:"request"`
	Status       JobStatus     `json:"status"`
	Stage        string        `json:"stage"` // 当前（或失败时）所处阶段
	Progress     int           `json:"progress"`
	URL          string        `json:"url"`           // 上传后的视频地址
	Duration     float64       `json:"duration"`      // 旁白总时长（秒）
	LayerCount   int           `json:"layer_count"`   // 画面图层数
	CaptionCount int           `json:"caption_count"` // 字幕条数
	Error        string        `json:"error"`
	CreatedAt    time.Time     `json:"created_at"`
	CompletedAt  time.Time     `json:"completed_at"`

	// RabbitMQ 相关（不序列化到 JSON）
	DeliveryTag      uint64 `json:"-"`
	RabbitMQDelivery any    `json:"-"`
}

// Segment 一段旁白：序号 + 语音 + 文稿 + 配图
type Segment struct {
	Index      int    `json:"index"` // 从 1 开始，决定播放顺序
	AudioPath  string `json:"audio_path"`
	ImagePath  string `json:"image_path"`
	Transcript string `json:"transcript"`
}

// Caption 外部转写得到的带时间码字幕
type Caption struct {
	Index int     `json:"index"`
	Start float64 `json:"start"` // 秒
	End   float64 `json:"end"`   // 秒
	Text  string  `json:"content"`
}
