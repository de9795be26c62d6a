package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"governance-api/domain"
)

type backend interface {
	FetchTasks(ctx context.Context, eventID string) ([]domain.Task, error)
	GetTask(ctx context.Context, eventID, taskID string) (domain.Task, error)
	UpdateStatus(ctx context.Context, eventID string, tr domain.Transition, actorID string) (domain.Task, error)
	SyncTasks(ctx context.Context, eventID string, tasks []domain.SyncTask) (int, error)
	EnqueueAudit(ctx context.Context, ev domain.AuditEvent) error
}

// Cache wraps a Storage instance with Redis-backed caching of event task
// lists. Every write through the cache evicts the event's list.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) FetchTasks(ctx context.Context, eventID string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasksFromCache(ctx, eventID); ok {
		return tasks, nil
	}

	tasks, err := c.base.FetchTasks(ctx, eventID)
	if err != nil {
		return nil, err
	}

	c.storeTasks(ctx, eventID, tasks)
	return tasks, nil
}

func (c *Cache) GetTask(ctx context.Context, eventID, taskID string) (domain.Task, error) {
	return c.base.GetTask(ctx, eventID, taskID)
}

func (c *Cache) UpdateStatus(ctx context.Context, eventID string, tr domain.Transition, actorID string) (domain.Task, error) {
	task, err := c.base.UpdateStatus(ctx, eventID, tr, actorID)
	if err != nil {
		return domain.Task{}, err
	}

	c.evict(ctx, eventID)
	return task, nil
}

func (c *Cache) SyncTasks(ctx context.Context, eventID string, tasks []domain.SyncTask) (int, error) {
	n, err := c.base.SyncTasks(ctx, eventID, tasks)
	if err != nil {
		return 0, err
	}

	c.evict(ctx, eventID)
	return n, nil
}

func (c *Cache) EnqueueAudit(ctx context.Context, ev domain.AuditEvent) error {
	return c.base.EnqueueAudit(ctx, ev)
}

func (c *Cache) loadTasksFromCache(ctx context.Context, eventID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(eventID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, tasksCacheKey(eventID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(eventID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) storeTasks(ctx context.Context, eventID string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(eventID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, eventID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, tasksCacheKey(eventID)).Result()
}

func tasksCacheKey(eventID string) string {
	return "tasks:" + eventID
}
