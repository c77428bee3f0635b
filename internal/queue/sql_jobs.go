package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// claimRaceAttempts bounds how often Claim retries after another worker
// took the candidate row first.
const claimRaceAttempts = 8

func (s *SQLStore) Enqueue(ctx context.Context, req EnqueueRequest) (*Job, error) {
	ctx = ensureContext(ctx)
	if err := req.validate(); err != nil {
		return nil, err
	}
	job := req.newJob(nowUTC())
	_, err := s.execWithRetry(ctx,
		`INSERT INTO stage_jobs (job_id, workflow_id, stage, attempt, state, progress, payload, not_before, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		job.ID, job.WorkflowID, job.Stage, job.Attempt, string(job.State), job.Payload,
		formatTime(job.NotBefore), formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
	)
	if err != nil {
		if s.dialect.isDuplicate(err) {
			return nil, ErrDuplicateJobID
		}
		return nil, fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	s.Notify(job.Stage)
	return job.clone(), nil
}

func (s *SQLStore) Claim(ctx context.Context, stage, workerID string) (*Job, error) {
	ctx = ensureContext(ctx)
	for attempt := 0; attempt < claimRaceAttempts; attempt++ {
		var (
			job  *Job
			lost bool
		)
		err := retryOnBusy(ctx, func() error {
			var txErr error
			job, lost, txErr = s.claimOnce(ctx, stage, workerID)
			return txErr
		})
		if err != nil {
			return nil, fmt.Errorf("claim %s job: %w", stage, err)
		}
		if !lost {
			return job, nil
		}
	}
	return nil, nil
}

// claimOnce selects the oldest eligible job and swaps it to active. lost is
// true when another claimer won the row between the select and the update.
func (s *SQLStore) claimOnce(ctx context.Context, stage, workerID string) (*Job, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	now := nowUTC()
	var jobID string
	err = tx.QueryRowContext(ctx,
		`SELECT job_id FROM stage_jobs
		 WHERE stage = ? AND state = ? AND not_before <= ?
		 ORDER BY created_at ASC, seq ASC
		 LIMIT 1`+s.dialect.claimLock,
		stage, string(StateWaiting), formatTime(now),
	).Scan(&jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	stamp := formatTime(now)
	res, err := tx.ExecContext(ctx,
		`UPDATE stage_jobs SET state = ?, claimed_by = ?, updated_at = ?, heartbeat_at = ?
		 WHERE job_id = ? AND state = ?`,
		string(StateActive), nullableString(workerID), stamp, stamp, jobID, string(StateWaiting),
	)
	if err != nil {
		return nil, false, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, false, err
	} else if affected == 0 {
		return nil, true, nil
	}

	job, err := scanJob(tx.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM stage_jobs WHERE job_id = ?", jobID))
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return job, false, nil
}

func (s *SQLStore) ReportProgress(ctx context.Context, jobID string, progress int) error {
	p := clampProgress(progress)
	_, err := s.execWithRetry(ctx,
		`UPDATE stage_jobs
		 SET progress = CASE WHEN progress < ? THEN ? ELSE progress END, heartbeat_at = ?
		 WHERE job_id = ? AND state = ?`,
		p, p, formatTime(nowUTC()), jobID, string(StateActive),
	)
	if err != nil {
		return fmt.Errorf("report progress %s: %w", jobID, err)
	}
	return nil
}

func (s *SQLStore) Heartbeat(ctx context.Context, jobID string) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE stage_jobs SET heartbeat_at = ? WHERE job_id = ? AND state = ?`,
		formatTime(nowUTC()), jobID, string(StateActive),
	)
	if err != nil {
		return fmt.Errorf("heartbeat %s: %w", jobID, err)
	}
	return nil
}

func (s *SQLStore) Complete(ctx context.Context, jobID string, result []byte) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE stage_jobs SET state = ?, progress = 100, result = ?, updated_at = ?
		 WHERE job_id = ? AND state = ?`,
		string(StateCompleted), result, formatTime(nowUTC()), jobID, string(StateActive),
	)
	if err != nil {
		return fmt.Errorf("complete %s: %w", jobID, err)
	}
	return s.checkTransition(ctx, res, jobID, StateCompleted)
}

func (s *SQLStore) Fail(ctx context.Context, jobID string, reason string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE stage_jobs SET state = ?, failure_reason = ?, updated_at = ?
		 WHERE job_id = ? AND state = ?`,
		string(StateFailed), reason, formatTime(nowUTC()), jobID, string(StateActive),
	)
	if err != nil {
		return fmt.Errorf("fail %s: %w", jobID, err)
	}
	return s.checkTransition(ctx, res, jobID, StateFailed)
}

// checkTransition explains a terminal update that matched no active row.
func (s *SQLStore) checkTransition(ctx context.Context, res sql.Result, jobID string, to State) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrJobNotFound
	}
	return invalidTransition(jobID, job.State, to)
}

func (s *SQLStore) Get(ctx context.Context, jobID string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM stage_jobs WHERE job_id = ?", jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

func (s *SQLStore) ListByState(ctx context.Context, states ...State) ([]*Job, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + jobColumns + " FROM stage_jobs"
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		query += " WHERE state IN (" + makePlaceholders(len(states)) + ")"
		for _, state := range states {
			args = append(args, string(state))
		}
	}
	query += " ORDER BY created_at ASC, seq ASC"
	return s.queryJobs(ctx, query, args...)
}

func (s *SQLStore) ListByWorkflow(ctx context.Context, workflowID string) ([]*Job, error) {
	ctx = ensureContext(ctx)
	return s.queryJobs(ctx,
		"SELECT "+jobColumns+" FROM stage_jobs WHERE workflow_id = ? ORDER BY created_at ASC, seq ASC",
		workflowID,
	)
}

func (s *SQLStore) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, fmt.Errorf("scan jobs: %w", err)
	}
	return jobs, nil
}
