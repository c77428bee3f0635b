package queue

import (
	"database/sql"
	"strings"
	"time"
)

const jobColumns = "job_id, workflow_id, stage, attempt, state, progress, payload, result, failure_reason, claimed_by, not_before, created_at, updated_at, heartbeat_at"

// timeLayout is fixed width so text comparison in SQL orders like time.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(timeLayout, value); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC()
	}
	return time.Time{}
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job          Job
		state        string
		payload      []byte
		result       []byte
		failure      sql.NullString
		claimedBy    sql.NullString
		notBefore    string
		created      string
		updated      string
		heartbeatRaw sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.WorkflowID,
		&job.Stage,
		&job.Attempt,
		&state,
		&job.Progress,
		&payload,
		&result,
		&failure,
		&claimedBy,
		&notBefore,
		&created,
		&updated,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}
	job.State = State(state)
	job.Payload = cloneBytes(payload)
	job.Result = cloneBytes(result)
	job.FailureReason = failure.String
	job.ClaimedBy = claimedBy.String
	job.NotBefore = parseTimeString(notBefore)
	job.CreatedAt = parseTimeString(created)
	job.UpdatedAt = parseTimeString(updated)
	if heartbeatRaw.Valid && heartbeatRaw.String != "" {
		hb := parseTimeString(heartbeatRaw.String)
		job.HeartbeatAt = &hb
	}
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func nullableString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
