package database

import (
	"context"
	"fmt"
	"time"

	"tablebook/internal/models"
)

func (db *DB) RecordCalendarSync(ctx context.Context, entry *models.CalendarSync) error {
	query := `INSERT INTO calendar_sync_log (holder, table_number, start_at, end_at, status, last_error, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		entry.Holder,
		entry.TableNumber,
		entry.Start.UTC(),
		entry.End.UTC(),
		entry.Status,
		entry.LastError,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to record calendar sync: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	entry.CreatedAt = now
	return nil
}

// CalendarSyncs lists logged pushes, newest first. An empty status lists all.
func (db *DB) CalendarSyncs(ctx context.Context, status string, limit int) ([]models.CalendarSync, error) {
	query := `SELECT id, holder, table_number, start_at, end_at, status, last_error, created_at
              FROM calendar_sync_log
              WHERE (? = '' OR status = ?)
              ORDER BY id DESC LIMIT ?`
	rows, err := db.reader.QueryContext(ctx, query, status, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar syncs: %w", err)
	}
	defer rows.Close()

	var entries []models.CalendarSync
	for rows.Next() {
		var e models.CalendarSync
		if err := rows.Scan(&e.ID, &e.Holder, &e.TableNumber, &e.Start, &e.End, &e.Status, &e.LastError, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan calendar sync: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
