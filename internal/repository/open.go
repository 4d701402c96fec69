package repository

import (
	"context"
	"errors"
	"fmt"

	"tablebook/internal/config"
	"tablebook/internal/database"
	"tablebook/internal/database/mongo"
	"tablebook/internal/database/postgres"
	"tablebook/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Stores is the opened slot store plus the handles other components reuse.
type Stores struct {
	Slots domain.SlotStore
	// SQLite is set for the sqlite driver only.
	SQLite  *database.DB
	closers []func() error
}

func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// OpenStores opens the slot store selected by cfg.Storage.Driver. The redis
// driver reuses redisClient, which must then be non-nil.
func OpenStores(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) (*Stores, error) {
	stores := &Stores{}

	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		db, err := database.NewDB(cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		stores.Slots = db
		stores.SQLite = db
		stores.closers = append(stores.closers, db.Close)

	case config.DriverRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("storage driver redis: %w", errNilClient)
		}
		stores.Slots = NewRedisSlotStore(redisClient, cfg.Redis.Key)

	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.Storage.Postgres.DSN, cfg.Storage.Postgres.MaxConnections)
		if err != nil {
			return nil, err
		}
		stores.Slots = store
		stores.closers = append(stores.closers, func() error {
			store.Close()
			return nil
		})

	case config.DriverMongo:
		m := cfg.Storage.Mongo
		store, err := mongo.Open(ctx, m.URI, m.Database, m.Collection)
		if err != nil {
			return nil, err
		}
		stores.Slots = store
		stores.closers = append(stores.closers, func() error {
			return store.Close(context.Background())
		})

	case config.DriverMemory:
		stores.Slots = NewMemorySlotStore()

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	logger.Info().Str("driver", cfg.Storage.Driver).Msg("Slot store opened")
	return stores, nil
}
