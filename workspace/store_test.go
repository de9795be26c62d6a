package workspace

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"governance-api/domain"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStoreCreateLoad(t *testing.T) {
	mr, client := newRedis(t)
	store := NewRedisStore(client, time.Hour)
	ctx := context.Background()

	w := New("ev1", "u1", []domain.CandidateRow{{Title: "A", Exists: true}, {Title: "B"}})
	require.NoError(t, w.ToggleSelection(1))
	require.NoError(t, store.Create(ctx, w))
	assert.Error(t, store.Create(ctx, w), "duplicate id")
	assert.Equal(t, time.Hour, mr.TTL(workspaceKey(w.ID)))

	got, err := store.Load(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.EventID, got.EventID)
	assert.Equal(t, w.OwnerID, got.OwnerID)
	assert.Equal(t, w.Rows(), got.Rows())
	assert.Equal(t, w.Decisions(), got.Decisions())
	assert.Equal(t, []int{1}, got.Selected())
}

func TestRedisStoreLoadMissing(t *testing.T) {
	_, client := newRedis(t)
	store := NewRedisStore(client, time.Hour)
	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreExpires(t *testing.T) {
	mr, client := newRedis(t)
	store := NewRedisStore(client, time.Minute)
	ctx := context.Background()
	w := New("ev1", "u1", rowsNamed("A"))
	require.NoError(t, store.Create(ctx, w))
	mr.FastForward(2 * time.Minute)
	_, err := store.Load(ctx, w.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreSaveBumpsVersion(t *testing.T) {
	_, client := newRedis(t)
	store := NewRedisStore(client, time.Hour)
	ctx := context.Background()
	w := New("ev1", "u1", rowsNamed("A"))
	require.NoError(t, store.Create(ctx, w))

	require.NoError(t, w.EditField(0, FieldTitle, "A2"))
	require.NoError(t, store.Save(ctx, w))
	assert.Equal(t, int64(1), w.Version)

	got, err := store.Load(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, []string{"A2"}, titlesOf(got))
	assert.True(t, got.CanUndo())
}

func TestRedisStoreSaveRejectsStaleVersion(t *testing.T) {
	_, client := newRedis(t)
	store := NewRedisStore(client, time.Hour)
	ctx := context.Background()
	w := New("ev1", "u1", rowsNamed("A"))
	require.NoError(t, store.Create(ctx, w))

	first, err := store.Load(ctx, w.ID)
	require.NoError(t, err)
	second, err := store.Load(ctx, w.ID)
	require.NoError(t, err)

	first.AddRow()
	require.NoError(t, store.Save(ctx, first))

	require.NoError(t, second.DeleteRow(0))
	assert.ErrorIs(t, store.Save(ctx, second), ErrVersionConflict)
	assert.Equal(t, int64(0), second.Version)

	got, err := store.Load(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
}

func TestRedisStoreSaveMissing(t *testing.T) {
	_, client := newRedis(t)
	store := NewRedisStore(client, time.Hour)
	w := New("ev1", "u1", rowsNamed("A"))
	assert.ErrorIs(t, store.Save(context.Background(), w), ErrNotFound)
}

func TestRedisStoreDelete(t *testing.T) {
	_, client := newRedis(t)
	store := NewRedisStore(client, time.Hour)
	ctx := context.Background()
	w := New("ev1", "u1", rowsNamed("A"))
	require.NoError(t, store.Create(ctx, w))
	require.NoError(t, store.Delete(ctx, w.ID))
	require.NoError(t, store.Delete(ctx, w.ID))
	_, err := store.Load(ctx, w.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisLocker(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewRedisLocker(client, 30*time.Second)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "commit:w1")
	require.NoError(t, err)
	_, err = locker.Acquire(ctx, "commit:w1")
	assert.ErrorIs(t, err, ErrCommitInFlight)

	other, err := locker.Acquire(ctx, "commit:w2")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	release, err = locker.Acquire(ctx, "commit:w1")
	require.NoError(t, err)

	// A release after expiry must not drop a lock taken by someone else.
	mr.FastForward(time.Minute)
	next, err := locker.Acquire(ctx, "commit:w1")
	require.NoError(t, err)
	require.NoError(t, release(ctx))
	_, err = locker.Acquire(ctx, "commit:w1")
	assert.ErrorIs(t, err, ErrCommitInFlight)
	require.NoError(t, next(ctx))
}
