package api

import (
	"context"

	"dubflow/internal/queue"
)

// QueueReader abstracts queue persistence interactions needed for API queries.
type QueueReader interface {
	ListByState(ctx context.Context, states ...queue.State) ([]*queue.Job, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*queue.Job, error)
	Stats(ctx context.Context) (map[queue.State]int, error)
	Get(ctx context.Context, jobID string) (*queue.Job, error)
}

// QueueService exposes queue operations returning API DTOs.
type QueueService struct {
	store QueueReader
}

// NewQueueService constructs a QueueService around the provided reader.
func NewQueueService(store QueueReader) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{store: store}
}

// List returns jobs filtered by state, or every job when no state is given.
func (s *QueueService) List(ctx context.Context, states ...queue.State) ([]JobView, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	if len(states) == 0 {
		states = queue.AllStates()
	}
	jobs, err := s.store.ListByState(ctx, states...)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Workflow returns every job recorded for a workflow, retries included.
func (s *QueueService) Workflow(ctx context.Context, workflowID string) ([]JobView, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	jobs, err := s.store.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Stats returns queue summary counts keyed by state string.
func (s *QueueService) Stats(ctx context.Context) (QueueStatsResponse, error) {
	if s == nil || s.store == nil {
		return QueueStatsResponse{Counts: MergeQueueStats(nil)}, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return QueueStatsResponse{}, err
	}
	return QueueStatsResponse{Counts: MergeQueueStats(stats), Total: queue.Summarize(stats).Total}, nil
}

// Describe fetches a single job.
func (s *QueueService) Describe(ctx context.Context, jobID string) (*JobView, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	job, err := s.store.Get(ctx, jobID)
	if err != nil || job == nil {
		return nil, err
	}
	view := FromJob(job)
	return &view, nil
}
