package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/z-wentao/slidecast/pkg/models"
)

// JobStore 内存任务存储
// 存取都复制一份，调用方拿到的指针不会和 Worker 的写入互相干扰
type JobStore struct {
	jobs map[string]*models.RenderJob
	mu   sync.RWMutex
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*models.RenderJob)}
}

func clone(job *models.RenderJob) *models.RenderJob {
	cp := *job
	cp.Request.Transcripts = append([]string(nil), job.Request.Transcripts...)
	cp.Request.WavURLs = append([]string(nil), job.Request.WavURLs...)
	cp.Request.ImageURLs = append([]string(nil), job.Request.ImageURLs...)
	return &cp
}

func (js *JobStore) Save(job *models.RenderJob) error {
	js.mu.Lock()
	defer js.mu.Unlock()
	js.jobs[job.JobID] = clone(job)
	return nil
}

func (js *JobStore) Get(jobID string) (*models.RenderJob, error) {
	js.mu.RLock()
	defer js.mu.RUnlock()
	job, ok := js.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return clone(job), nil
}

func (js *JobStore) Update(jobID string, updateFn func(*models.RenderJob)) error {
	js.mu.Lock()
	defer js.mu.Unlock()
	job, ok := js.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	updateFn(job)
	return nil
}

func (js *JobStore) List() ([]*models.RenderJob, error) {
	js.mu.RLock()
	jobs := make([]*models.RenderJob, 0, len(js.jobs))
	for _, job := range js.jobs {
		jobs = append(jobs, clone(job))
	}
	js.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].JobID < jobs[j].JobID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (js *JobStore) Delete(jobID string) error {
	js.mu.Lock()
	defer js.mu.Unlock()
	if _, ok := js.jobs[jobID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	delete(js.jobs, jobID)
	return nil
}

func (js *JobStore) Close() error { return nil }
