package repository

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"tablebook/internal/config"
	"tablebook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStores(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()

	t.Run("SQLite", func(t *testing.T) {
		cfg := &config.Config{Storage: config.StorageConfig{
			Driver:     config.DriverSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "slots.db"),
		}}
		stores, err := OpenStores(ctx, cfg, nil, &logger)
		require.NoError(t, err)
		defer stores.Close()

		require.NotNil(t, stores.SQLite)
		assert.NoError(t, stores.Slots.Ping(ctx))
	})

	t.Run("Redis", func(t *testing.T) {
		_, client := newTestRedis(t)
		cfg := &config.Config{
			Storage: config.StorageConfig{Driver: config.DriverRedis},
			Redis:   config.RedisConfig{Key: "tablebook:slots"},
		}
		stores, err := OpenStores(ctx, cfg, client, &logger)
		require.NoError(t, err)
		defer stores.Close()

		assert.Nil(t, stores.SQLite)
		record := models.NewSlotRecord()
		record.Set(models.SlotKey{Table: 1, Date: "2099-01-01", Interval: 4}, "a@example.com")
		require.NoError(t, stores.Slots.Commit(ctx, record))

		loaded, err := NewRedisSlotStore(client, "tablebook:slots").Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, loaded.Len())
	})

	t.Run("RedisWithoutClient", func(t *testing.T) {
		cfg := &config.Config{Storage: config.StorageConfig{Driver: config.DriverRedis}}
		_, err := OpenStores(ctx, cfg, nil, &logger)
		assert.ErrorIs(t, err, errNilClient)
	})

	t.Run("Memory", func(t *testing.T) {
		cfg := &config.Config{Storage: config.StorageConfig{Driver: config.DriverMemory}}
		stores, err := OpenStores(ctx, cfg, nil, &logger)
		require.NoError(t, err)
		assert.NoError(t, stores.Close())
		assert.IsType(t, &MemorySlotStore{}, stores.Slots)
	})

	t.Run("Unknown", func(t *testing.T) {
		cfg := &config.Config{Storage: config.StorageConfig{Driver: "cassandra"}}
		_, err := OpenStores(ctx, cfg, nil, &logger)
		assert.Error(t, err)
	})
}
