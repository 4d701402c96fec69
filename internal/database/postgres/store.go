// Package postgres keeps the reservation record as a single JSONB row.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tablebook/internal/domain"
	"tablebook/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS slot_record (
	id SMALLINT PRIMARY KEY CHECK (id = 1),
	version BIGINT NOT NULL DEFAULT 0,
	data JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

INSERT INTO slot_record (id) VALUES (1) ON CONFLICT (id) DO NOTHING;
`

type Store struct{ pool *pgxpool.Pool }

// Open connects to databaseURL and applies the schema.
func Open(ctx context.Context, databaseURL string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.MaxConnIdleTime = 1 * time.Minute
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *Store) Load(ctx context.Context) (*models.SlotRecord, error) {
	var (
		version int64
		raw     []byte
	)
	row := s.pool.QueryRow(ctx, `SELECT version, data FROM slot_record WHERE id = 1`)
	if err := row.Scan(&version, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.NewSlotRecord(), nil
		}
		return nil, fmt.Errorf("db: %w", err)
	}

	record := models.NewSlotRecord()
	if err := json.Unmarshal(raw, &record.Data); err != nil {
		return nil, fmt.Errorf("decode slot data: %w", err)
	}
	record.Version = version
	return record, nil
}

func (s *Store) Commit(ctx context.Context, record *models.SlotRecord) error {
	raw, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("encode slot data: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE slot_record
		SET data = $1, version = version + 1, updated_at = now()
		WHERE id = 1 AND version = $2
	`, raw, record.Version)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentModification
	}
	record.Version++
	return nil
}
