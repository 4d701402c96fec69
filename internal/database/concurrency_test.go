package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"tablebook/internal/domain"
	"tablebook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentCommit(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	key := models.SlotKey{Table: 1, Date: "2099-01-01", Interval: 40}

	const numGoroutines = 10

	// Every writer works from the same snapshot version.
	records := make([]*models.SlotRecord, numGoroutines)
	for i := range records {
		records[i], err = db.Load(ctx)
		require.NoError(t, err)
		records[i].Set(key, fmt.Sprintf("user%d@example.com", i))
	}

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(r *models.SlotRecord) {
			defer wg.Done()
			results <- db.Commit(ctx, r)
		}(records[i])
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
			continue
		}
		assert.True(t, errors.Is(err, domain.ErrConcurrentModification), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, successCount, "only one commit should win")

	loaded, err := db.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Equal(t, 1, loaded.Len())
}
