package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const (
	dedupeKeyPrefix      = "idem"
	headerIdempotencyKey = "Idempotency-Key"
)

var (
	errDuplicateRequest   = errors.New("duplicate request")
	errDeduperUnavailable = errors.New("idempotency store unavailable")
)

// RedisDeduper stores processed idempotency keys in Redis so all instances
// can avoid reprocessing the same request.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(actorID, key string) string {
	return actorID + ":" + dedupeKeyPrefix + ":" + key
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, actorID, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(actorID, key), 1, r.ttl).Result()
}

// Remove deletes a previously recorded key. It is used when downstream
// processing fails so the caller may retry the request.
func (r *RedisDeduper) Remove(ctx context.Context, actorID, key string) error {
	return r.client.Del(ctx, r.key(actorID, key)).Err()
}

// idempotent rejects a replayed Idempotency-Key with 409. The key is scoped to
// the actor and the request path, and released again when the request fails
// so the client may retry it.
func idempotent(d Deduper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(headerIdempotencyKey)
			if raw == "" || d == nil {
				return next(c)
			}
			actor := actorFrom(c)
			key := c.Request().Method + " " + c.Request().URL.Path + " " + raw
			ctx := c.Request().Context()

			added, err := d.Add(ctx, actor.ID, key)
			if err != nil {
				metricsFrom(c).Fail("idempotency", err)
				return writeJSON(c, http.StatusServiceUnavailable, errorResponse{Message: errDeduperUnavailable.Error()})
			}
			if !added {
				return fail(c, "idempotency", errDuplicateRequest)
			}

			herr := next(c)
			if herr != nil || c.Response().Status >= http.StatusBadRequest {
				if rerr := d.Remove(context.WithoutCancel(ctx), actor.ID, key); rerr != nil {
					c.Logger().Errorf("idempotency rollback failed: %v", rerr)
				}
			}
			return herr
		}
	}
}
