package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB is the SQLite slot store. Writes go through a single connection that
// takes the write lock up front, so commits are serialized by the driver.
// Reads use a separate deferred pool and see the last committed snapshot
// without waiting for the writer.
type DB struct {
	*sql.DB
	reader *sql.DB
	logger *zerolog.Logger
}

const readerConns = 4

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_busy_timeout=5000&_txlock=immediate&_journal_mode=WAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	// a second handle on :memory: would be a different database
	reader := sqlDB
	if path != ":memory:" {
		reader, err = sql.Open("sqlite3", path+"?_busy_timeout=5000&_txlock=deferred")
		if err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to open read handle: %w", err)
		}
		reader.SetMaxOpenConns(readerConns)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: sqlDB, reader: reader, logger: logger}, nil
}

// Close closes the read pool and the writer.
func (db *DB) Close() error {
	var readErr error
	if db.reader != db.DB {
		readErr = db.reader.Close()
	}
	return errors.Join(readErr, db.DB.Close())
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS slot_record (
            id INTEGER PRIMARY KEY CHECK (id = 1),
            version INTEGER NOT NULL DEFAULT 0,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`INSERT OR IGNORE INTO slot_record (id, version) VALUES (1, 0)`,

		`CREATE TABLE IF NOT EXISTS slots (
            table_number INTEGER NOT NULL,
            date TEXT NOT NULL,
            slot_interval INTEGER NOT NULL,
            holder TEXT NOT NULL,
            PRIMARY KEY (table_number, date, slot_interval)
        )`,

		`CREATE TABLE IF NOT EXISTS calendar_sync_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            holder TEXT NOT NULL,
            table_number INTEGER NOT NULL,
            start_at DATETIME NOT NULL,
            end_at DATETIME NOT NULL,
            status TEXT NOT NULL,
            last_error TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE INDEX IF NOT EXISTS idx_slots_holder ON slots(holder)`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_sync_status ON calendar_sync_log(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}
