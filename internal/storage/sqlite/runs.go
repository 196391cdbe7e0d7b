package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/steveyegge/minutes/internal/types"
)

// RecordRun stores a run record. CreatedAt is set to now when zero.
func (s *SQLiteStorage) RecordRun(ctx context.Context, run *types.Run) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dedup_runs (
			id, user_id, kind, input_count, output_count, duplicate_count,
			oracle_calls, failed_open, failure_reason, details, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.UserID, string(run.Kind), run.InputCount, run.OutputCount, run.DuplicateCount,
		run.OracleCalls, run.FailedOpen, run.FailureReason, string(run.Details), formatTime(run.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `id, user_id, kind, input_count, output_count, duplicate_count,
	oracle_calls, failed_open, failure_reason, details, created_at`

// GetRun retrieves a run by id. Returns (nil, nil) if not found.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*types.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM dedup_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns userID's most recent runs first. limit <= 0 means no limit.
func (s *SQLiteStorage) ListRuns(ctx context.Context, userID string, limit int) ([]*types.Run, error) {
	query := `SELECT ` + runColumns + ` FROM dedup_runs WHERE user_id = ? ORDER BY created_at DESC, id`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*types.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*types.Run, error) {
	var run types.Run
	var kind, details, createdAt string
	err := row.Scan(
		&run.ID, &run.UserID, &kind, &run.InputCount, &run.OutputCount, &run.DuplicateCount,
		&run.OracleCalls, &run.FailedOpen, &run.FailureReason, &details, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	run.Kind = types.RunKind(kind)
	if details != "" {
		run.Details = []byte(details)
	}
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &run, nil
}
