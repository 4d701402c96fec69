package database

import (
	"context"
	"fmt"
	"time"

	"tablebook/internal/domain"
	"tablebook/internal/models"
)

// Load reads the reservation record and its version in one read transaction.
// It does not take the write lock.
func (db *DB) Load(ctx context.Context) (*models.SlotRecord, error) {
	tx, err := db.reader.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	record := models.NewSlotRecord()
	if err := tx.QueryRowContext(ctx, `SELECT version FROM slot_record WHERE id = 1`).Scan(&record.Version); err != nil {
		return nil, fmt.Errorf("failed to read slot version: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT table_number, date, slot_interval, holder FROM slots`)
	if err != nil {
		return nil, fmt.Errorf("failed to read slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			k      models.SlotKey
			holder string
		)
		if err := rows.Scan(&k.Table, &k.Date, &k.Interval, &holder); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		record.Set(k, holder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate slots: %w", err)
	}

	return record, tx.Commit()
}

// Commit replaces the stored record when its version still matches.
func (db *DB) Commit(ctx context.Context, record *models.SlotRecord) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`UPDATE slot_record SET version = version + 1, updated_at = ? WHERE id = 1 AND version = ?`,
		time.Now(), record.Version)
	if err != nil {
		return fmt.Errorf("failed to bump slot version: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConcurrentModification
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM slots`); err != nil {
		return fmt.Errorf("failed to clear slots: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO slots (table_number, date, slot_interval, holder) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare slot insert: %w", err)
	}
	defer stmt.Close()

	for _, k := range record.Keys() {
		holder, _ := record.Holder(k)
		if _, err := stmt.ExecContext(ctx, k.Table, k.Date, int(k.Interval), holder); err != nil {
			return fmt.Errorf("failed to insert slot %d/%s/%d: %w", k.Table, k.Date, k.Interval, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit slots: %w", err)
	}
	record.Version++
	return nil
}
