package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dubflow/internal/config"
)

// Queue is the contract every backend implements.
type Queue interface {
	// Enqueue stores a waiting job. A reused identifier yields ErrDuplicateJobID
	// and leaves the existing job untouched.
	Enqueue(ctx context.Context, req EnqueueRequest) (*Job, error)
	// Claim atomically moves the oldest eligible waiting job for stage to
	// active. It returns nil, nil when nothing is eligible.
	Claim(ctx context.Context, stage, workerID string) (*Job, error)
	// ReportProgress records progress for an active job. Values are clamped
	// to 0-100 and never lower the stored value.
	ReportProgress(ctx context.Context, jobID string, progress int) error
	// Heartbeat marks an active job as alive.
	Heartbeat(ctx context.Context, jobID string) error
	// Complete transitions an active job to completed with its result.
	Complete(ctx context.Context, jobID string, result []byte) error
	// Fail transitions an active job to failed with a reason.
	Fail(ctx context.Context, jobID string, reason string) error
	// Get returns the job or nil, nil when absent.
	Get(ctx context.Context, jobID string) (*Job, error)
	// ListByState returns jobs in the given states, oldest first. No states
	// means all jobs.
	ListByState(ctx context.Context, states ...State) ([]*Job, error)
	// ListByWorkflow returns every job belonging to a workflow, oldest first.
	ListByWorkflow(ctx context.Context, workflowID string) ([]*Job, error)
	// Stats counts jobs per state.
	Stats(ctx context.Context) (map[State]int, error)
	// PurgeWorkflow removes every job of a workflow, but only when all of
	// them are terminal and were last updated before the cutoff.
	PurgeWorkflow(ctx context.Context, workflowID string, before time.Time) (int64, error)
	// Wakeups returns a channel signalled when a job for stage is enqueued.
	Wakeups(stage string) <-chan struct{}
	Close() error
}

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Open constructs the backend selected by configuration.
func Open(cfg *config.Config) (Queue, error) {
	if cfg == nil {
		return nil, fmt.Errorf("open queue: config is nil")
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.Queue.Backend))
	switch backend {
	case "", BackendSQLite:
		return OpenSQLite(cfg.QueuePath())
	case BackendMySQL:
		return OpenMySQL(cfg.Queue.DSN)
	case BackendBadger:
		return OpenBadger(cfg.QueuePath())
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Queue.Backend)
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
