package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/z-wentao/slidecast/pkg/models"
)

const renderJobsSchema = `
CREATE TABLE IF NOT EXISTS render_jobs (
	job_id        TEXT PRIMARY KEY,
	video_id      TEXT NOT NULL,
	request       JSONB NOT NULL,
	status        TEXT NOT NULL,
	stage         TEXT,
	progress      INTEGER NOT NULL DEFAULT 0,
	url           TEXT,
	duration      DOUBLE PRECISION,
	layer_count   INTEGER NOT NULL DEFAULT 0,
	caption_count INTEGER NOT NULL DEFAULT 0,
	error         TEXT,
	created_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS render_jobs_created_at_idx ON render_jobs (created_at DESC);
`

const renderJobColumns = `job_id, video_id, request, status, stage, progress,
	url, duration, layer_count, caption_count, error, created_at, completed_at`

// PostgresJobStore PostgreSQL 任务存储
type PostgresJobStore struct {
	db *sql.DB
}

func NewPostgresJobStore(connStr string) (*PostgresJobStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if _, err := db.Exec(renderJobsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return &PostgresJobStore{db: db}, nil
}

func (s *PostgresJobStore) Save(job *models.RenderJob) error {
	request, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("序列化 request 失败: %w", err)
	}

	query := `
	INSERT INTO render_jobs (` + renderJobColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (job_id) DO UPDATE SET
		status = EXCLUDED.status,
		stage = EXCLUDED.stage,
		progress = EXCLUDED.progress,
		url = EXCLUDED.url,
		duration = EXCLUDED.duration,
		layer_count = EXCLUDED.layer_count,
		caption_count = EXCLUDED.caption_count,
		error = EXCLUDED.error,
		completed_at = EXCLUDED.completed_at
	`
	var completedAt sql.NullTime
	if !job.CompletedAt.IsZero() {
		completedAt = sql.NullTime{Time: job.CompletedAt, Valid: true}
	}

	_, err = s.db.Exec(query,
		job.JobID,
		job.VideoID,
		request,
		job.Status,
		job.Stage,
		job.Progress,
		job.URL,
		job.Duration,
		job.LayerCount,
		job.CaptionCount,
		job.Error,
		job.CreatedAt,
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("保存到数据库失败: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.RenderJob, error) {
	var (
		job                models.RenderJob
		request            []byte
		stage, url, errMsg sql.NullString
		duration           sql.NullFloat64
		completedAt        sql.NullTime
	)
	err := row.Scan(
		&job.JobID,
		&job.VideoID,
		&request,
		&job.Status,
		&stage,
		&job.Progress,
		&url,
		&duration,
		&job.LayerCount,
		&job.CaptionCount,
		&errMsg,
		&job.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(request, &job.Request); err != nil {
		return nil, fmt.Errorf("反序列化 request 失败: %w", err)
	}
	job.Stage = stage.String
	job.URL = url.String
	job.Duration = duration.Float64
	job.Error = errMsg.String
	if completedAt.Valid {
		job.CompletedAt = completedAt.Time
	}
	return &job, nil
}

func (s *PostgresJobStore) Get(jobID string) (*models.RenderJob, error) {
	row := s.db.QueryRow(`SELECT `+renderJobColumns+` FROM render_jobs WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("查询数据库失败: %w", err)
	}
	return job, nil
}

func (s *PostgresJobStore) Update(jobID string, updateFn func(*models.RenderJob)) error {
	job, err := s.Get(jobID)
	if err != nil {
		return err
	}
	updateFn(job)
	return s.Save(job)
}

// List 最近 100 条
func (s *PostgresJobStore) List() ([]*models.RenderJob, error) {
	rows, err := s.db.Query(`SELECT ` + renderJobColumns + ` FROM render_jobs ORDER BY created_at DESC LIMIT 100`)
	if err != nil {
		return nil, fmt.Errorf("查询数据库失败: %w", err)
	}
	defer rows.Close()

	jobs := make([]*models.RenderJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("读取任务失败: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *PostgresJobStore) Delete(jobID string) error {
	result, err := s.db.Exec(`DELETE FROM render_jobs WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("删除任务失败: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("获取删除结果失败: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return nil
}

func (s *PostgresJobStore) Close() error {
	return s.db.Close()
}
