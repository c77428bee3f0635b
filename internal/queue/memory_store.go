package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps jobs in process memory. Contents vanish on Close.
type MemoryStore struct {
	*notifier

	mu   sync.Mutex
	jobs map[string]*Job
	seq  map[string]int64
	next int64
}

// NewMemory returns an empty in-memory queue.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		notifier: newNotifier(),
		jobs:     make(map[string]*Job),
		seq:      make(map[string]int64),
	}
}

// Close releases the stored jobs.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = make(map[string]*Job)
	m.seq = make(map[string]int64)
	return nil
}

func (m *MemoryStore) Enqueue(ctx context.Context, req EnqueueRequest) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if _, exists := m.jobs[req.JobID]; exists {
		m.mu.Unlock()
		return nil, ErrDuplicateJobID
	}
	job := req.newJob(nowUTC())
	m.jobs[job.ID] = job
	m.next++
	m.seq[job.ID] = m.next
	out := job.clone()
	m.mu.Unlock()

	m.Notify(job.Stage)
	return out, nil
}

func (m *MemoryStore) Claim(ctx context.Context, stage, workerID string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := nowUTC()
	var pick *Job
	for _, job := range m.jobs {
		if job.Stage != stage || !job.Eligible(now) {
			continue
		}
		if pick == nil || m.before(job, pick) {
			pick = job
		}
	}
	if pick == nil {
		return nil, nil
	}
	pick.State = StateActive
	pick.ClaimedBy = workerID
	pick.UpdatedAt = now
	hb := now
	pick.HeartbeatAt = &hb
	return pick.clone(), nil
}

func (m *MemoryStore) ReportProgress(ctx context.Context, jobID string, progress int) error {
	return m.mutateActive(ctx, jobID, func(job *Job, now time.Time) {
		if p := clampProgress(progress); p > job.Progress {
			job.Progress = p
		}
		hb := now
		job.HeartbeatAt = &hb
	})
}

func (m *MemoryStore) Heartbeat(ctx context.Context, jobID string) error {
	return m.mutateActive(ctx, jobID, func(job *Job, now time.Time) {
		hb := now
		job.HeartbeatAt = &hb
	})
}

func (m *MemoryStore) Complete(ctx context.Context, jobID string, result []byte) error {
	return m.transition(ctx, jobID, StateCompleted, func(job *Job) {
		job.Progress = 100
		job.Result = cloneBytes(result)
	})
}

func (m *MemoryStore) Fail(ctx context.Context, jobID string, reason string) error {
	return m.transition(ctx, jobID, StateFailed, func(job *Job) {
		job.FailureReason = reason
	})
}

func (m *MemoryStore) transition(ctx context.Context, jobID string, to State, apply func(*Job)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.State != StateActive {
		return invalidTransition(jobID, job.State, to)
	}
	apply(job)
	job.State = to
	job.UpdatedAt = nowUTC()
	return nil
}

// mutateActive applies fn to an active job. Unknown and inactive jobs are
// ignored so late progress reports never touch finished work.
func (m *MemoryStore) mutateActive(ctx context.Context, jobID string, fn func(*Job, time.Time)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.State != StateActive {
		return nil
	}
	fn(job, nowUTC())
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, jobID string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[jobID].clone(), nil
}

func (m *MemoryStore) ListByState(ctx context.Context, states ...State) ([]*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := make(map[State]struct{}, len(states))
	for _, state := range states {
		wanted[state] = struct{}{}
	}
	return m.collect(func(job *Job) bool {
		if len(wanted) == 0 {
			return true
		}
		_, ok := wanted[job.State]
		return ok
	}), nil
}

func (m *MemoryStore) ListByWorkflow(ctx context.Context, workflowID string) ([]*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.collect(func(job *Job) bool { return job.WorkflowID == workflowID }), nil
}

func (m *MemoryStore) Stats(ctx context.Context) (map[State]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := make(map[State]int)
	for _, job := range m.jobs {
		stats[job.State]++
	}
	return stats, nil
}

func (m *MemoryStore) PurgeWorkflow(ctx context.Context, workflowID string, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, job := range m.jobs {
		if job.WorkflowID != workflowID {
			continue
		}
		if !job.State.IsTerminal() || !job.UpdatedAt.Before(before) {
			return 0, nil
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		delete(m.jobs, id)
		delete(m.seq, id)
	}
	return int64(len(ids)), nil
}

func (m *MemoryStore) collect(match func(*Job) bool) []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Job
	for _, job := range m.jobs {
		if match(job) {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.before(out[i], out[j]) })
	for i, job := range out {
		out[i] = job.clone()
	}
	return out
}

// before orders jobs by creation time, then insertion order.
func (m *MemoryStore) before(a, b *Job) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return m.seq[a.ID] < m.seq[b.ID]
}
