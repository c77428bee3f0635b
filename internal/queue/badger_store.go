package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const (
	badgerSeqKey          = "stage_jobs_seq"
	badgerSeqBandwidth    = 64
	badgerConflictRetries = 64
	badgerConflictBackoff = 2 * time.Millisecond
	badgerMaxBackoff      = 50 * time.Millisecond
)

// BadgerStore keeps jobs in an embedded Badger database via badgerhold.
type BadgerStore struct {
	*notifier

	store *badgerhold.Store
	seq   *badger.Sequence
	dir   string
}

// badgerJob is the stored record. Fields queried by badgerhold are indexed.
type badgerJob struct {
	JobID         string `badgerhold:"key"`
	Seq           uint64
	WorkflowID    string `badgerhold:"index"`
	Stage         string `badgerhold:"index"`
	Attempt       int
	State         string `badgerhold:"index"`
	Progress      int
	Payload       []byte
	Result        []byte
	FailureReason string
	ClaimedBy     string
	NotBefore     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	HeartbeatAt   *time.Time
}

func toBadgerJob(job *Job, seq uint64) badgerJob {
	return badgerJob{
		JobID:         job.ID,
		Seq:           seq,
		WorkflowID:    job.WorkflowID,
		Stage:         job.Stage,
		Attempt:       job.Attempt,
		State:         string(job.State),
		Progress:      job.Progress,
		Payload:       cloneBytes(job.Payload),
		Result:        cloneBytes(job.Result),
		FailureReason: job.FailureReason,
		ClaimedBy:     job.ClaimedBy,
		NotBefore:     job.NotBefore,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
		HeartbeatAt:   job.HeartbeatAt,
	}
}

func (r badgerJob) toJob() *Job {
	job := &Job{
		ID:            r.JobID,
		WorkflowID:    r.WorkflowID,
		Stage:         r.Stage,
		Attempt:       r.Attempt,
		State:         State(r.State),
		Progress:      r.Progress,
		Payload:       cloneBytes(r.Payload),
		Result:        cloneBytes(r.Result),
		FailureReason: r.FailureReason,
		ClaimedBy:     r.ClaimedBy,
		NotBefore:     r.NotBefore.UTC(),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	if r.HeartbeatAt != nil {
		hb := r.HeartbeatAt.UTC()
		job.HeartbeatAt = &hb
	}
	return job
}

func sortBadgerJobs(records []badgerJob) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].Seq < records[j].Seq
	})
}

// OpenBadger opens or creates a Badger queue in dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("open badger queue: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create badger directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	seq, err := store.Badger().GetSequence([]byte(badgerSeqKey), badgerSeqBandwidth)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("badger sequence: %w", err)
	}
	return &BadgerStore{notifier: newNotifier(), store: store, seq: seq, dir: dir}, nil
}

// Close releases the sequence lease and closes the database.
func (b *BadgerStore) Close() error {
	if b == nil || b.store == nil {
		return nil
	}
	var errs []error
	if b.seq != nil {
		errs = append(errs, b.seq.Release())
	}
	errs = append(errs, b.store.Close())
	return errors.Join(errs...)
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (b *BadgerStore) update(ctx context.Context, fn func(tx *badger.Txn) error) error {
	ctx = ensureContext(ctx)
	var err error
	for attempt := 0; attempt < badgerConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = b.store.Badger().Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		delay := badgerConflictBackoff * time.Duration(attempt+1)
		if delay > badgerMaxBackoff {
			delay = badgerMaxBackoff
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (b *BadgerStore) Enqueue(ctx context.Context, req EnqueueRequest) (*Job, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	seq, err := b.seq.Next()
	if err != nil {
		return nil, fmt.Errorf("next sequence: %w", err)
	}
	job := req.newJob(nowUTC())
	record := toBadgerJob(job, seq)
	err = b.update(ctx, func(tx *badger.Txn) error {
		return b.store.TxInsert(tx, record.JobID, record)
	})
	if errors.Is(err, badgerhold.ErrKeyExists) {
		return nil, ErrDuplicateJobID
	}
	if err != nil {
		return nil, fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	b.Notify(job.Stage)
	return job, nil
}

func (b *BadgerStore) Claim(ctx context.Context, stage, workerID string) (*Job, error) {
	var claimed *Job
	err := b.update(ctx, func(tx *badger.Txn) error {
		claimed = nil
		var candidates []badgerJob
		query := badgerhold.Where("Stage").Eq(stage).And("State").Eq(string(StateWaiting))
		if err := b.store.TxFind(tx, &candidates, query); err != nil {
			return err
		}
		sortBadgerJobs(candidates)
		now := nowUTC()
		for _, record := range candidates {
			if record.NotBefore.After(now) {
				continue
			}
			record.State = string(StateActive)
			record.ClaimedBy = workerID
			record.UpdatedAt = now
			hb := now
			record.HeartbeatAt = &hb
			if err := b.store.TxUpdate(tx, record.JobID, record); err != nil {
				return err
			}
			claimed = record.toJob()
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim %s job: %w", stage, err)
	}
	return claimed, nil
}

// mutate loads a record inside a transaction and hands it to fn. fn returns
// false to skip the write.
func (b *BadgerStore) mutate(ctx context.Context, jobID string, fn func(*badgerJob) (bool, error)) error {
	return b.update(ctx, func(tx *badger.Txn) error {
		var record badgerJob
		if err := b.store.TxGet(tx, jobID, &record); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				_, fnErr := fn(nil)
				return fnErr
			}
			return err
		}
		write, err := fn(&record)
		if err != nil || !write {
			return err
		}
		return b.store.TxUpdate(tx, record.JobID, record)
	})
}

func (b *BadgerStore) ReportProgress(ctx context.Context, jobID string, progress int) error {
	p := clampProgress(progress)
	return b.mutate(ctx, jobID, func(record *badgerJob) (bool, error) {
		if record == nil || record.State != string(StateActive) {
			return false, nil
		}
		if p > record.Progress {
			record.Progress = p
		}
		now := nowUTC()
		record.HeartbeatAt = &now
		return true, nil
	})
}

func (b *BadgerStore) Heartbeat(ctx context.Context, jobID string) error {
	return b.mutate(ctx, jobID, func(record *badgerJob) (bool, error) {
		if record == nil || record.State != string(StateActive) {
			return false, nil
		}
		now := nowUTC()
		record.HeartbeatAt = &now
		return true, nil
	})
}

func (b *BadgerStore) Complete(ctx context.Context, jobID string, result []byte) error {
	return b.finish(ctx, jobID, StateCompleted, func(record *badgerJob) {
		record.Progress = 100
		record.Result = cloneBytes(result)
	})
}

func (b *BadgerStore) Fail(ctx context.Context, jobID string, reason string) error {
	return b.finish(ctx, jobID, StateFailed, func(record *badgerJob) {
		record.FailureReason = reason
	})
}

func (b *BadgerStore) finish(ctx context.Context, jobID string, to State, apply func(*badgerJob)) error {
	return b.mutate(ctx, jobID, func(record *badgerJob) (bool, error) {
		if record == nil {
			return false, ErrJobNotFound
		}
		if record.State != string(StateActive) {
			return false, invalidTransition(jobID, State(record.State), to)
		}
		apply(record)
		record.State = string(to)
		record.UpdatedAt = nowUTC()
		return true, nil
	})
}

func (b *BadgerStore) Get(ctx context.Context, jobID string) (*Job, error) {
	if err := ensureContext(ctx).Err(); err != nil {
		return nil, err
	}
	var record badgerJob
	if err := b.store.Get(jobID, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return record.toJob(), nil
}

func (b *BadgerStore) ListByState(ctx context.Context, states ...State) ([]*Job, error) {
	var query *badgerhold.Query
	if len(states) > 0 {
		values := make([]any, 0, len(states))
		for _, state := range states {
			values = append(values, string(state))
		}
		query = badgerhold.Where("State").In(values...)
	}
	return b.find(ctx, query)
}

func (b *BadgerStore) ListByWorkflow(ctx context.Context, workflowID string) ([]*Job, error) {
	return b.find(ctx, badgerhold.Where("WorkflowID").Eq(workflowID))
}

func (b *BadgerStore) find(ctx context.Context, query *badgerhold.Query) ([]*Job, error) {
	if err := ensureContext(ctx).Err(); err != nil {
		return nil, err
	}
	var records []badgerJob
	if err := b.store.Find(&records, query); err != nil {
		return nil, fmt.Errorf("find jobs: %w", err)
	}
	sortBadgerJobs(records)
	jobs := make([]*Job, 0, len(records))
	for _, record := range records {
		jobs = append(jobs, record.toJob())
	}
	return jobs, nil
}

func (b *BadgerStore) Stats(ctx context.Context) (map[State]int, error) {
	stats := make(map[State]int)
	for _, state := range allStates {
		count, err := b.store.Count(&badgerJob{}, badgerhold.Where("State").Eq(string(state)))
		if err != nil {
			return nil, fmt.Errorf("count %s jobs: %w", state, err)
		}
		if count > 0 {
			stats[state] = int(count)
		}
	}
	return stats, nil
}

func (b *BadgerStore) PurgeWorkflow(ctx context.Context, workflowID string, before time.Time) (int64, error) {
	var removed int64
	err := b.update(ctx, func(tx *badger.Txn) error {
		removed = 0
		var records []badgerJob
		if err := b.store.TxFind(tx, &records, badgerhold.Where("WorkflowID").Eq(workflowID)); err != nil {
			return err
		}
		for _, record := range records {
			if !State(record.State).IsTerminal() || !record.UpdatedAt.Before(before) {
				return nil
			}
		}
		for _, record := range records {
			if err := b.store.TxDelete(tx, record.JobID, badgerJob{}); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge workflow %s: %w", workflowID, err)
	}
	return removed, nil
}
