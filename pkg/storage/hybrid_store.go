package storage

import (
	"sync"
	"time"

	"github.com/z-wentao/slidecast/pkg/logger"
	"github.com/z-wentao/slidecast/pkg/models"
)

const (
	syncBatchSize = 50
	syncInterval  = 5 * time.Second
)

// HybridJobStore 热数据放缓存层（Redis），终态任务异步批量落库
type HybridJobStore struct {
	cache Store
	db    Store
	log   *logger.Logger

	syncQueue chan *models.RenderJob
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewHybridJobStore(cache, db Store, log *logger.Logger) *HybridJobStore {
	s := &HybridJobStore{
		cache:     cache,
		db:        db,
		log:       log.With("service", "HybridJobStore"),
		syncQueue: make(chan *models.RenderJob, 100),
		stopCh:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.syncWorker()
	return s
}

// Save 先写缓存，终态任务再异步落库
func (s *HybridJobStore) Save(job *models.RenderJob) error {
	if err := s.cache.Save(job); err != nil {
		s.log.Warn("缓存写入失败，直接写数据库", "job_id", job.JobID, "error", err)
		return s.db.Save(job)
	}
	if isTerminal(job) {
		s.enqueueSync(job)
	}
	return nil
}

// Get 缓存未命中时查数据库并回填
func (s *HybridJobStore) Get(jobID string) (*models.RenderJob, error) {
	if job, err := s.cache.Get(jobID); err == nil {
		return job, nil
	}
	job, err := s.db.Get(jobID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Save(job); err != nil {
		s.log.Warn("回填缓存失败", "job_id", jobID, "error", err)
	}
	return job, nil
}

func (s *HybridJobStore) Update(jobID string, updateFn func(*models.RenderJob)) error {
	if _, err := s.Get(jobID); err != nil {
		return err
	}
	var updated *models.RenderJob
	err := s.cache.Update(jobID, func(job *models.RenderJob) {
		updateFn(job)
		cp := *job
		updated = &cp
	})
	if err != nil {
		s.log.Warn("缓存更新失败，改为更新数据库", "job_id", jobID, "error", err)
		return s.db.Update(jobID, updateFn)
	}
	if isTerminal(updated) {
		s.enqueueSync(updated)
	}
	return nil
}

func (s *HybridJobStore) List() ([]*models.RenderJob, error) {
	jobs, err := s.cache.List()
	if err != nil || len(jobs) == 0 {
		if err != nil {
			s.log.Warn("缓存列表查询失败，降级到数据库", "error", err)
		}
		return s.db.List()
	}
	return jobs, nil
}

// Delete 两层都删；只要有一层删除成功就算成功
func (s *HybridJobStore) Delete(jobID string) error {
	cacheErr := s.cache.Delete(jobID)
	dbErr := s.db.Delete(jobID)
	if cacheErr != nil && dbErr != nil {
		return dbErr
	}
	return nil
}

// Close 刷完待同步的任务后关闭两层存储
func (s *HybridJobStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.cache.Close()
		s.db.Close()
		s.log.Info("混合存储已关闭")
	})
	return nil
}

func (s *HybridJobStore) enqueueSync(job *models.RenderJob) {
	select {
	case s.syncQueue <- job:
	default:
		s.log.Warn("同步队列已满，同步写入数据库", "job_id", job.JobID)
		if err := s.db.Save(job); err != nil {
			s.log.Error("写入数据库失败", "job_id", job.JobID, "error", err)
		}
	}
}

// syncWorker 攒满一批或到时间就落库
func (s *HybridJobStore) syncWorker() {
	defer s.wg.Done()
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	batch := make([]*models.RenderJob, 0, syncBatchSize)
	flush := func() {
		s.batchSave(batch)
		batch = batch[:0]
	}

	for {
		select {
		case job := <-s.syncQueue:
			batch = append(batch, job)
			if len(batch) >= syncBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.stopCh:
			for {
				select {
				case job := <-s.syncQueue:
					batch = append(batch, job)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *HybridJobStore) batchSave(jobs []*models.RenderJob) {
	if len(jobs) == 0 {
		return
	}
	ok := 0
	for _, job := range jobs {
		if err := s.db.Save(job); err != nil {
			s.log.Error("同步任务失败", "job_id", job.JobID, "error", err)
			continue
		}
		ok++
	}
	s.log.Debug("批量同步到数据库", "ok", ok, "total", len(jobs))
}
