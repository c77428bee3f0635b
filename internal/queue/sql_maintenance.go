package queue

import (
	"context"
	"fmt"
	"time"
)

// Stats returns counts of jobs by state.
func (s *SQLStore) Stats(ctx context.Context) (map[State]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT state, COUNT(1) FROM stage_jobs GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int)
	for rows.Next() {
		var (
			state string
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[State(state)] = count
	}
	return stats, rows.Err()
}

// PurgeWorkflow removes every job of workflowID when all of them are
// terminal and none was updated at or after the cutoff. It removes nothing
// otherwise.
func (s *SQLStore) PurgeWorkflow(ctx context.Context, workflowID string, before time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	var removed int64
	err := retryOnBusy(ctx, func() error {
		removed = 0
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		cutoff := formatTime(before)
		var live int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM stage_jobs
			 WHERE workflow_id = ? AND (state NOT IN (?, ?) OR updated_at >= ?)`,
			workflowID, string(StateCompleted), string(StateFailed), cutoff,
		).Scan(&live); err != nil {
			return err
		}
		if live > 0 {
			return nil
		}
		res, err := tx.ExecContext(ctx,
			"DELETE FROM stage_jobs WHERE workflow_id = ? AND state IN (?, ?) AND updated_at < ?",
			workflowID, string(StateCompleted), string(StateFailed), cutoff,
		)
		if err != nil {
			return err
		}
		if removed, err = res.RowsAffected(); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("purge workflow %s: %w", workflowID, err)
	}
	return removed, nil
}
