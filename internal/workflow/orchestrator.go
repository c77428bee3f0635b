package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"dubflow/internal/logging"
	"dubflow/internal/mixing"
	"dubflow/internal/queue"
	"dubflow/internal/services"
	"dubflow/internal/speech"
	"dubflow/internal/stage"
)

// DefaultMaxInputBytes bounds submitted subtitle text when no limit is set.
const DefaultMaxInputBytes = 1 << 20

// Workflow is the immutable submission record. It travels as the payload
// of the extract job and lives exactly as long as that job.
type Workflow struct {
	ID          string    `json:"workflow_id"`
	Input       string    `json:"input"`
	Voice       string    `json:"voice,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Orchestrator decomposes workflows into stage jobs and answers status
// queries from queue state.
type Orchestrator struct {
	queue    queue.Queue
	logger   *slog.Logger
	maxInput int
}

// OrchestratorOption configures optional Orchestrator behavior.
type OrchestratorOption func(*Orchestrator)

// WithMaxInputBytes caps the size of submitted input.
func WithMaxInputBytes(limit int) OrchestratorOption {
	return func(o *Orchestrator) {
		if limit > 0 {
			o.maxInput = limit
		}
	}
}

// NewOrchestrator constructs an orchestrator over q.
func NewOrchestrator(q queue.Queue, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &Orchestrator{
		queue:    q,
		logger:   logging.NewComponentLogger(logger, "orchestrator"),
		maxInput: DefaultMaxInputBytes,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SubmitOption configures a single submission.
type SubmitOption func(*Workflow)

// WithVoice selects the synthesis voice for the workflow.
func WithVoice(voice string) SubmitOption {
	return func(w *Workflow) {
		w.Voice = strings.ToLower(strings.TrimSpace(voice))
	}
}

// Submit validates input, enqueues the extract job and returns the new
// workflow id without waiting for any stage.
func (o *Orchestrator) Submit(ctx context.Context, input string, opts ...SubmitOption) (string, error) {
	wf := Workflow{
		ID:          uuid.NewString(),
		Input:       input,
		SubmittedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&wf)
	}
	if err := o.validate(wf); err != nil {
		return "", err
	}

	payload, err := json.Marshal(wf)
	if err != nil {
		return "", fmt.Errorf("encode workflow: %w", err)
	}
	first := stage.First()
	_, err = o.queue.Enqueue(ctx, queue.EnqueueRequest{
		JobID:      JobID(wf.ID, first, 1),
		WorkflowID: wf.ID,
		Stage:      first,
		Attempt:    1,
		Payload:    payload,
	})
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", first, err)
	}

	o.logger.Info("workflow submitted",
		logging.String(logging.FieldWorkflowID, wf.ID),
		logging.String(logging.FieldEventType, "workflow_submitted"),
		logging.Int("input_bytes", len(input)),
		logging.String("voice", wf.Voice),
	)
	return wf.ID, nil
}

func (o *Orchestrator) validate(wf Workflow) error {
	if strings.TrimSpace(wf.Input) == "" {
		return fmt.Errorf("%w: subtitle content is empty", ErrInvalidInput)
	}
	if len(wf.Input) > o.maxInput {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrInvalidInput, len(wf.Input), o.maxInput)
	}
	if wf.Voice != "" {
		if _, err := speech.LookupVoice(wf.Voice); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	return nil
}

// Advance is invoked after job completed with result. It enqueues the next
// stage with result as payload. A duplicate id means the stage was already
// chained and is not an error.
func (o *Orchestrator) Advance(ctx context.Context, job *queue.Job, result []byte) error {
	if job == nil {
		return nil
	}
	next, ok := stage.Next(job.Stage)
	logger := o.logger.With(logging.String(logging.FieldWorkflowID, job.WorkflowID))
	if !ok {
		logger.Info("workflow completed",
			logging.String(logging.FieldEventType, "workflow_completed"),
			logging.String(logging.FieldJobID, job.ID),
		)
		return nil
	}

	nextID := JobID(job.WorkflowID, next, 1)
	_, err := o.queue.Enqueue(ctx, queue.EnqueueRequest{
		JobID:      nextID,
		WorkflowID: job.WorkflowID,
		Stage:      next,
		Attempt:    1,
		Payload:    result,
	})
	if errors.Is(err, queue.ErrDuplicateJobID) {
		logger.Debug("stage already chained", logging.String(logging.FieldJobID, nextID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("chain %s: %w", next, err)
	}
	logger.Debug("stage chained",
		logging.String(logging.FieldEventType, "stage_chained"),
		logging.String("from", job.ID),
		logging.String(logging.FieldJobID, nextID),
	)
	return nil
}

// Reconcile re-chains completed stages whose successor was never enqueued,
// for example because the queue rejected the Advance enqueue. It returns
// the number of stages chained.
func (o *Orchestrator) Reconcile(ctx context.Context) (int, error) {
	completed, err := o.queue.ListByState(ctx, queue.StateCompleted)
	if err != nil {
		return 0, err
	}
	chained := 0
	for _, job := range completed {
		next, ok := stage.Next(job.Stage)
		if !ok {
			continue
		}
		jobs, err := o.queue.ListByWorkflow(ctx, job.WorkflowID)
		if err != nil {
			return chained, err
		}
		if latest := latestByStage(jobs)[next]; latest != nil {
			continue
		}
		if latest := latestByStage(jobs)[job.Stage]; latest == nil || latest.ID != job.ID {
			continue
		}
		if err := o.Advance(ctx, job, job.Result); err != nil {
			return chained, err
		}
		chained++
	}
	if chained > 0 {
		o.logger.Warn("re-chained stalled workflows",
			logging.Int("count", chained),
			logging.String(logging.FieldEventType, "workflow_rechained"),
			logging.String(logging.FieldErrorHint, "check earlier queue errors"),
		)
	}
	return chained, nil
}

// GetStatus aggregates per-stage state for workflowID.
func (o *Orchestrator) GetStatus(ctx context.Context, workflowID string) (*WorkflowStatus, error) {
	jobs, err := o.queue.ListByWorkflow(ctx, strings.TrimSpace(workflowID))
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", workflowID, err)
	}
	latest := latestByStage(jobs)
	if latest[stage.First()] == nil {
		return nil, ErrUnknownWorkflow
	}
	status := buildStatus(workflowID, latest)
	status.SubmittedAt = submittedAt(jobs)
	return status, nil
}

// Purge removes whole workflows whose overall status is terminal and whose
// jobs were all last updated before the cutoff. Workflows still processing
// keep every job, completed stages included. It returns the number of jobs
// removed.
func (o *Orchestrator) Purge(ctx context.Context, before time.Time) (int64, error) {
	terminal, err := o.queue.ListByState(ctx, queue.StateCompleted, queue.StateFailed)
	if err != nil {
		return 0, fmt.Errorf("list terminal jobs: %w", err)
	}
	seen := make(map[string]struct{}, len(terminal))
	var removed int64
	for _, job := range terminal {
		if _, ok := seen[job.WorkflowID]; ok {
			continue
		}
		seen[job.WorkflowID] = struct{}{}
		if !job.UpdatedAt.Before(before) {
			continue
		}
		status, err := o.GetStatus(ctx, job.WorkflowID)
		if errors.Is(err, ErrUnknownWorkflow) {
			continue
		}
		if err != nil {
			return removed, err
		}
		if !status.Terminal() {
			continue
		}
		n, err := o.queue.PurgeWorkflow(ctx, job.WorkflowID, before)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	if removed > 0 {
		o.logger.Info("purged finished workflows",
			logging.Int64("jobs", removed),
			logging.String(logging.FieldEventType, "workflows_purged"),
		)
	}
	return removed, nil
}

// MixResult is the final workflow result.
type MixResult = mixing.Result

// GetResult returns the mix result once the workflow completed and nil, nil
// while it is still processing.
func (o *Orchestrator) GetResult(ctx context.Context, workflowID string) (*MixResult, error) {
	jobs, err := o.queue.ListByWorkflow(ctx, strings.TrimSpace(workflowID))
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", workflowID, err)
	}
	latest := latestByStage(jobs)
	if latest[stage.First()] == nil {
		return nil, ErrUnknownWorkflow
	}
	status := buildStatus(workflowID, latest)
	switch status.Overall {
	case OverallFailed:
		return nil, fmt.Errorf("%w: %s stage: %s", ErrWorkflowFailed, status.FailedStage, status.FailureReason)
	case OverallCompleted:
		var result MixResult
		if err := json.Unmarshal(latest[stage.Last()].Result, &result); err != nil {
			return nil, fmt.Errorf("decode %s result: %w", stage.Last(), err)
		}
		return &result, nil
	default:
		return nil, nil
	}
}

// Retry re-enqueues the failed stage under the next attempt id. The payload
// is the predecessor's result, or the original submission for the first
// stage. It returns the new job id.
func (o *Orchestrator) Retry(ctx context.Context, workflowID string) (string, error) {
	jobs, err := o.queue.ListByWorkflow(ctx, strings.TrimSpace(workflowID))
	if err != nil {
		return "", fmt.Errorf("load workflow %s: %w", workflowID, err)
	}
	latest := latestByStage(jobs)
	if latest[stage.First()] == nil {
		return "", ErrUnknownWorkflow
	}
	status := buildStatus(workflowID, latest)
	if status.Overall != OverallFailed {
		return "", fmt.Errorf("%w: workflow is %s", ErrNotRetryable, status.Overall)
	}

	failed := latest[status.FailedStage]
	payload := failed.Payload
	if prev, ok := stage.Previous(failed.Stage); ok {
		upstream := latest[prev]
		if upstream == nil || upstream.State != queue.StateCompleted {
			return "", fmt.Errorf("%w: %s has no completed predecessor", ErrNotRetryable, failed.Stage)
		}
		payload = upstream.Result
	}

	attempt := failed.Attempt + 1
	jobID := JobID(workflowID, failed.Stage, attempt)
	_, err = o.queue.Enqueue(ctx, queue.EnqueueRequest{
		JobID:      jobID,
		WorkflowID: workflowID,
		Stage:      failed.Stage,
		Attempt:    attempt,
		Payload:    payload,
	})
	if err != nil && !errors.Is(err, queue.ErrDuplicateJobID) {
		return "", fmt.Errorf("enqueue retry: %w", err)
	}
	o.logger.Info("stage retry requested",
		logging.String(logging.FieldWorkflowID, workflowID),
		logging.String(logging.FieldStage, failed.Stage),
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldEventType, "stage_retry"),
		logging.Int("attempt", attempt),
	)
	return jobID, nil
}

// Workflow returns the submission record stored with the first stage.
func (o *Orchestrator) Workflow(ctx context.Context, workflowID string) (*Workflow, error) {
	jobs, err := o.queue.ListByWorkflow(ctx, strings.TrimSpace(workflowID))
	if err != nil {
		return nil, err
	}
	first := latestByStage(jobs)[stage.First()]
	if first == nil {
		return nil, ErrUnknownWorkflow
	}
	var wf Workflow
	if err := json.Unmarshal(first.Payload, &wf); err != nil {
		return nil, services.Wrap(services.ErrValidation, stage.First(), "decode workflow", "", err)
	}
	return &wf, nil
}

// latestByStage keeps the highest attempt per stage.
func latestByStage(jobs []*queue.Job) map[string]*queue.Job {
	latest := make(map[string]*queue.Job, len(jobs))
	for _, job := range jobs {
		if current, ok := latest[job.Stage]; !ok || job.Attempt > current.Attempt {
			latest[job.Stage] = job
		}
	}
	return latest
}
