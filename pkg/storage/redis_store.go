package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/z-wentao/slidecast/pkg/models"
)

const (
	redisKeyPrefix = "slidecast:job:"
	redisIndexKey  = "slidecast:jobs:index"
)

// RedisJobStore Redis 任务存储
// 任务以 JSON 存储并带 TTL，另有一个按创建时间排序的 ZSet 作为索引
type RedisJobStore struct {
	client *redis.Client
	ttl    time.Duration
	ctx    context.Context
}

func NewRedisJobStore(addr, password string, db int, ttl time.Duration) (*RedisJobStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisJobStore{client: client, ttl: ttl, ctx: ctx}, nil
}

func (rs *RedisJobStore) key(jobID string) string {
	return redisKeyPrefix + jobID
}

func (rs *RedisJobStore) write(pipe redis.Pipeliner, job *models.RenderJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("序列化任务失败: %w", err)
	}
	pipe.Set(rs.ctx, rs.key(job.JobID), data, rs.ttl)
	pipe.ZAdd(rs.ctx, redisIndexKey, redis.Z{
		Score:  float64(job.CreatedAt.UnixMilli()),
		Member: job.JobID,
	})
	return nil
}

func (rs *RedisJobStore) Save(job *models.RenderJob) error {
	var werr error
	_, err := rs.client.TxPipelined(rs.ctx, func(pipe redis.Pipeliner) error {
		werr = rs.write(pipe, job)
		return werr
	})
	if werr != nil {
		return werr
	}
	if err != nil {
		return fmt.Errorf("保存到 Redis 失败: %w", err)
	}
	return nil
}

func (rs *RedisJobStore) decode(jobID string, data []byte) (*models.RenderJob, error) {
	var job models.RenderJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("反序列化任务 %s 失败: %w", jobID, err)
	}
	return &job, nil
}

func (rs *RedisJobStore) Get(jobID string) (*models.RenderJob, error) {
	data, err := rs.client.Get(rs.ctx, rs.key(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("从 Redis 获取失败: %w", err)
	}
	return rs.decode(jobID, data)
}

// Update 用 WATCH 做乐观锁，并发修改时重试
func (rs *RedisJobStore) Update(jobID string, updateFn func(*models.RenderJob)) error {
	key := rs.key(jobID)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(rs.ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		if err != nil {
			return err
		}
		job, err := rs.decode(jobID, data)
		if err != nil {
			return err
		}
		updateFn(job)
		_, err = tx.TxPipelined(rs.ctx, func(pipe redis.Pipeliner) error {
			return rs.write(pipe, job)
		})
		return err
	}

	for i := 0; i < 5; i++ {
		err := rs.client.Watch(rs.ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("更新任务 %s 冲突次数过多", jobID)
}

func (rs *RedisJobStore) List() ([]*models.RenderJob, error) {
	jobIDs, err := rs.client.ZRevRange(rs.ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("获取任务索引失败: %w", err)
	}
	if len(jobIDs) == 0 {
		return []*models.RenderJob{}, nil
	}

	keys := make([]string, len(jobIDs))
	for i, id := range jobIDs {
		keys[i] = rs.key(id)
	}
	values, err := rs.client.MGet(rs.ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("批量获取任务失败: %w", err)
	}

	jobs := make([]*models.RenderJob, 0, len(jobIDs))
	var expired []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// 已过期，顺手清理索引
			expired = append(expired, jobIDs[i])
			continue
		}
		job, err := rs.decode(jobIDs[i], []byte(s))
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	if len(expired) > 0 {
		rs.client.ZRem(rs.ctx, redisIndexKey, expired...)
	}
	return jobs, nil
}

func (rs *RedisJobStore) Delete(jobID string) error {
	deleted, err := rs.client.Del(rs.ctx, rs.key(jobID)).Result()
	if err != nil {
		return fmt.Errorf("删除任务失败: %w", err)
	}
	rs.client.ZRem(rs.ctx, redisIndexKey, jobID)
	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return nil
}

func (rs *RedisJobStore) Close() error {
	return rs.client.Close()
}
