package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tablebook/internal/config"
	"tablebook/internal/domain"
	"tablebook/internal/models"

	"github.com/redis/go-redis/v9"
)

var errNilClient = errors.New("redis client is nil")

// NewRedisClient builds a Redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisSlotStore keeps the whole record as one JSON value and relies on
// WATCH/MULTI for the version check.
type RedisSlotStore struct {
	client *redis.Client
	key    string
}

func NewRedisSlotStore(client *redis.Client, key string) *RedisSlotStore {
	return &RedisSlotStore{client: client, key: key}
}

func (s *RedisSlotStore) Load(ctx context.Context) (*models.SlotRecord, error) {
	if s.client == nil {
		return nil, errNilClient
	}
	return readRecord(ctx, s.client, s.key)
}

func (s *RedisSlotStore) Commit(ctx context.Context, record *models.SlotRecord) error {
	if s.client == nil {
		return errNilClient
	}

	next := record.Clone()
	next.Version++
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal slot record: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readRecord(ctx, tx, s.key)
		if err != nil {
			return err
		}
		if current.Version != record.Version {
			return domain.ErrConcurrentModification
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, data, 0)
			return nil
		})
		return err
	}, s.key)

	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrConcurrentModification
	}
	if err != nil {
		return err
	}
	record.Version = next.Version
	return nil
}

func (s *RedisSlotStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return errNilClient
	}
	return Ping(ctx, s.client)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readRecord(ctx context.Context, c getter, key string) (*models.SlotRecord, error) {
	val, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.NewSlotRecord(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot record from redis: %w", err)
	}

	record := models.NewSlotRecord()
	if err := json.Unmarshal(val, record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slot record: %w", err)
	}
	if record.Data == nil {
		record.Data = make(map[int]map[string]map[models.Interval]string)
	}
	return record, nil
}

// RedisRateLimiter counts requests per key in fixed windows.
type RedisRateLimiter struct {
	client *redis.Client
}

func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

func (r *RedisRateLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	redisKey := "rate_limit:" + key
	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count <= int64(limit), nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
