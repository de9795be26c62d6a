package workspace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound        = errors.New("workspace not found")
	ErrVersionConflict = errors.New("workspace was modified concurrently")
)

// Store persists workspace sessions.
type Store interface {
	Create(ctx context.Context, w *Workspace) error
	Load(ctx context.Context, id string) (*Workspace, error)
	Save(ctx context.Context, w *Workspace) error
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps each workspace as one JSON document with a TTL. Saves are
// optimistic: a save based on a stale version fails with ErrVersionConflict.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store using the provided Redis client and TTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("workspace.NewRedisStore: redis client is nil")
	}
	return &RedisStore{client: client, ttl: ttl}
}

func workspaceKey(id string) string {
	return "workspace:" + id
}

// Create stores a new workspace. It fails if the ID is already taken.
func (s *RedisStore) Create(ctx context.Context, w *Workspace) error {
	payload, err := sonic.Marshal(w.toDocument())
	if err != nil {
		return fmt.Errorf("encode workspace: %w", err)
	}
	ok, err := s.client.SetNX(ctx, workspaceKey(w.ID), payload, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("workspace %s already exists", w.ID)
	}
	return nil
}

// Load fetches a workspace by ID.
func (s *RedisStore) Load(ctx context.Context, id string) (*Workspace, error) {
	data, err := s.client.Get(ctx, workspaceKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeWorkspace(data)
}

// Save writes w if the stored version still equals w.Version, then bumps
// w.Version.
func (s *RedisStore) Save(ctx context.Context, w *Workspace) error {
	key := workspaceKey(w.ID)
	next := w.Version + 1
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		var stored struct {
			Version int64 `json:"version"`
		}
		if err := sonic.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("decode workspace version: %w", err)
		}
		if stored.Version != w.Version {
			return ErrVersionConflict
		}

		doc := w.toDocument()
		doc.Version = next
		payload, err := sonic.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode workspace: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	if err != nil {
		return err
	}
	w.Version = next
	return nil
}

// Delete removes a workspace. Deleting a missing workspace is not an error.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, workspaceKey(id)).Err()
}

func decodeWorkspace(data []byte) (*Workspace, error) {
	var doc document
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode workspace: %w", err)
	}
	return fromDocument(doc), nil
}
