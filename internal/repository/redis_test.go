package repository

import (
	"context"
	"testing"
	"time"

	"tablebook/internal/domain"
	"tablebook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return s, client
}

func TestRedisSlotStore(t *testing.T) {
	s, client := newTestRedis(t)
	store := NewRedisSlotStore(client, "tablebook:slots")
	ctx := context.Background()

	t.Run("LoadEmpty", func(t *testing.T) {
		record, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), record.Version)
		assert.Equal(t, 0, record.Len())
	})

	t.Run("CommitAndLoad", func(t *testing.T) {
		record, err := store.Load(ctx)
		require.NoError(t, err)
		record.Set(models.SlotKey{Table: 1, Date: "2099-01-01", Interval: 4}, "a@example.com")

		require.NoError(t, store.Commit(ctx, record))
		assert.Equal(t, int64(1), record.Version)

		loaded, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), loaded.Version)
		assert.Equal(t, record.Data, loaded.Data)

		raw, err := s.Get("tablebook:slots")
		require.NoError(t, err)
		assert.JSONEq(t, `{"version":1,"data":{"1":{"2099-01-01":{"4":"a@example.com"}}}}`, raw)
	})

	t.Run("StaleVersion", func(t *testing.T) {
		a, err := store.Load(ctx)
		require.NoError(t, err)
		b, err := store.Load(ctx)
		require.NoError(t, err)

		a.Set(models.SlotKey{Table: 2, Date: "2099-01-01", Interval: 4}, "a@example.com")
		require.NoError(t, store.Commit(ctx, a))

		b.Set(models.SlotKey{Table: 2, Date: "2099-01-01", Interval: 4}, "b@example.com")
		err = store.Commit(ctx, b)
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)
		assert.Equal(t, a.Version-1, b.Version)
	})

	t.Run("CorruptValue", func(t *testing.T) {
		require.NoError(t, s.Set("tablebook:broken", "{"))
		_, err := NewRedisSlotStore(client, "tablebook:broken").Load(ctx)
		assert.Error(t, err)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})

	t.Run("NilClient", func(t *testing.T) {
		nilStore := NewRedisSlotStore(nil, "k")
		_, err := nilStore.Load(ctx)
		assert.ErrorIs(t, err, errNilClient)
		assert.ErrorIs(t, nilStore.Commit(ctx, models.NewSlotRecord()), errNilClient)
	})
}

func TestRedisRateLimiter(t *testing.T) {
	s, client := newTestRedis(t)
	limiter := NewRedisRateLimiter(client)
	ctx := context.Background()

	key := "a@example.com"
	limit := 2
	window := time.Second

	allowed, err := limiter.CheckRateLimit(ctx, key, limit, window)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.CheckRateLimit(ctx, key, limit, window)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.CheckRateLimit(ctx, key, limit, window)
	require.NoError(t, err)
	assert.False(t, allowed)

	// other keys have their own budget
	allowed, err = limiter.CheckRateLimit(ctx, "b@example.com", limit, window)
	require.NoError(t, err)
	assert.True(t, allowed)

	s.FastForward(window + time.Millisecond)

	allowed, err = limiter.CheckRateLimit(ctx, key, limit, window)
	require.NoError(t, err)
	assert.True(t, allowed)

	_, err = NewRedisRateLimiter(nil).CheckRateLimit(ctx, key, limit, window)
	assert.Error(t, err)
}

func TestPingAndClose(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	assert.NoError(t, Ping(ctx, client))
	assert.NoError(t, Close(client))
	assert.Error(t, Ping(ctx, client))
	assert.NoError(t, Close(nil))
}
