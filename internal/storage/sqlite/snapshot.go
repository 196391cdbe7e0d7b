package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/steveyegge/minutes/internal/types"
)

// ReplaceSnapshot clears userID's cached tracker items and writes entries in their
// place, in one transaction. Readers see either the old snapshot or the new one.
func (s *SQLiteStorage) ReplaceSnapshot(ctx context.Context, userID string, entries []types.CacheEntry) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	for i, e := range entries {
		if e.ExternalID == "" {
			return fmt.Errorf("entry %d: external id is required", i)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tracker_snapshot WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tracker_snapshot (user_id, position, external_id, title)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, userID, i, e.ExternalID, e.Title); err != nil {
			return fmt.Errorf("failed to insert snapshot entry %s: %w", e.ExternalID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot_meta (user_id, entry_count, synced_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			entry_count = excluded.entry_count,
			synced_at = excluded.synced_at
	`, userID, len(entries), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("failed to update snapshot metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetSnapshot returns userID's cached tracker items in sync order.
// A user that never synced has an empty snapshot.
func (s *SQLiteStorage) GetSnapshot(ctx context.Context, userID string) ([]types.CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, title
		FROM tracker_snapshot
		WHERE user_id = ?
		ORDER BY position
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []types.CacheEntry{}
	for rows.Next() {
		var e types.CacheEntry
		if err := rows.Scan(&e.ExternalID, &e.Title); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshot: %w", err)
	}
	return entries, nil
}

// SnapshotInfo returns when userID last synced and how many entries were written.
// Returns (nil, nil) if the user never synced.
func (s *SQLiteStorage) SnapshotInfo(ctx context.Context, userID string) (*types.SnapshotInfo, error) {
	var info types.SnapshotInfo
	var syncedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, entry_count, synced_at
		FROM snapshot_meta
		WHERE user_id = ?
	`, userID).Scan(&info.UserID, &info.EntryCount, &syncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot metadata: %w", err)
	}

	if info.SyncedAt, err = parseTime(syncedAt); err != nil {
		return nil, err
	}
	return &info, nil
}
