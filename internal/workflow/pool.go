package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dubflow/internal/logging"
	"dubflow/internal/notifications"
	"dubflow/internal/queue"
	"dubflow/internal/services"
	"dubflow/internal/stage"
)

// shutdownFailTimeout bounds the queue bookkeeping that follows a transform,
// including for jobs interrupted by shutdown.
const shutdownFailTimeout = 5 * time.Second

// PoolStatus is a snapshot of one stage pool.
type PoolStatus struct {
	Stage     string   `json:"stage"`
	Workers   int      `json:"workers"`
	Busy      []string `json:"busy,omitempty"`
	Processed int64    `json:"processed"`
	Failed    int64    `json:"failed"`
}

// Pool runs a fixed number of workers for one stage. Each worker claims a
// job, runs the stage transform and records the outcome.
type Pool struct {
	stage     string
	size      int
	queue     queue.Queue
	orch      *Orchestrator
	transform stage.Transform
	heartbeat *HeartbeatMonitor
	logger    *slog.Logger
	sampler   *logging.ProgressSampler
	timings   timings
	workerTag string
	notifier  notifications.Service
	onError   func(error)

	mu        sync.Mutex
	busy      map[string]string
	processed int64
	failed    int64
}

func newPool(name string, size int, q queue.Queue, orch *Orchestrator, transform stage.Transform, hb *HeartbeatMonitor, logger *slog.Logger, t timings, workerTag string, notifier notifications.Service, onError func(error)) *Pool {
	if size < 1 {
		size = 1
	}
	if onError == nil {
		onError = func(error) {}
	}
	if notifier == nil {
		notifier = notifications.Noop()
	}
	return &Pool{
		stage:     name,
		size:      size,
		queue:     q,
		orch:      orch,
		transform: transform,
		heartbeat: hb,
		logger:    logger.With(logging.String(logging.FieldStage, name)),
		sampler:   logging.NewProgressSampler(25),
		timings:   t,
		workerTag: workerTag,
		notifier:  notifier,
		onError:   onError,
		busy:      make(map[string]string),
	}
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// has returned.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(p.size)
	for i := 1; i <= p.size; i++ {
		workerID := fmt.Sprintf("%s-%s-%d", p.stage, p.workerTag, i)
		go func() {
			defer wg.Done()
			p.work(ctx, workerID)
		}()
	}
	wg.Wait()
}

// Status returns the pool snapshot.
func (p *Pool) Status() PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	status := PoolStatus{Stage: p.stage, Workers: p.size, Processed: p.processed, Failed: p.failed}
	for _, jobID := range p.busy {
		status.Busy = append(status.Busy, jobID)
	}
	return status
}

func (p *Pool) work(ctx context.Context, workerID string) {
	logger := p.logger.With(logging.String(logging.FieldWorker, workerID))
	logger.Debug("worker started")
	defer logger.Debug("worker stopped")

	wait := p.timings.poll
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := p.queue.Claim(ctx, p.stage, workerID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.onError(err)
			logging.ErrorWithContext(logger, "failed to claim job", "queue_claim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			p.idle(ctx, wait)
			wait = p.timings.nextBackoff(wait)
			continue
		}
		if job == nil {
			if p.idle(ctx, wait) {
				wait = p.timings.poll
			} else {
				wait = p.timings.nextBackoff(wait)
			}
			continue
		}
		wait = p.timings.poll
		p.process(ctx, workerID, job)
	}
}

// idle waits for a wakeup, the backoff delay or cancellation. It reports
// whether a wakeup arrived.
func (p *Pool) idle(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-p.queue.Wakeups(p.stage):
		return true
	case <-timer.C:
		return false
	}
}

func (p *Pool) process(ctx context.Context, workerID string, job *queue.Job) {
	jobCtx := services.WithWorkflowID(ctx, job.WorkflowID)
	jobCtx = services.WithJobID(jobCtx, job.ID)
	jobCtx = services.WithStage(jobCtx, job.Stage)
	jobCtx = services.WithWorker(jobCtx, workerID)
	logger := logging.WithContext(jobCtx, p.logger)

	p.markBusy(workerID, job.ID)
	defer p.markIdle(workerID)

	start := time.Now()
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("attempt", job.Attempt),
		logging.Int("payload_bytes", len(job.Payload)),
	)

	result, err := p.execute(jobCtx, logger, job)
	if err != nil && ctx.Err() != nil {
		p.interrupted(logger, job)
		return
	}

	// Outcomes are recorded even when shutdown begins after the transform
	// returned.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(jobCtx), shutdownFailTimeout)
	defer cancel()
	if err != nil {
		p.fail(persistCtx, logger, job, err, time.Since(start))
		return
	}

	if err := p.queue.Complete(persistCtx, job.ID, result); err != nil {
		if errors.Is(err, queue.ErrInvalidTransition) {
			logging.WarnWithContext(logger, "job no longer active; result discarded", "stage_result_discarded",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the reaper failed this job; use retry"),
			)
			return
		}
		p.onError(err)
		logging.ErrorWithContext(logger, "failed to persist stage result", "stage_complete_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return
	}
	p.mu.Lock()
	p.processed++
	p.mu.Unlock()
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(start)),
		logging.Int("result_bytes", len(result)),
	)

	if err := p.orch.Advance(persistCtx, job, result); err != nil {
		p.onError(err)
		logging.ErrorWithContext(logger, "failed to chain next stage", "stage_chain_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the reaper re-chains completed stages on its next run"),
		)
		return
	}
	if job.Stage == stage.Last() {
		if err := p.notifier.NotifyWorkflowCompleted(persistCtx, job.WorkflowID); err != nil {
			logger.Warn("completion notification failed", logging.Error(err))
		}
	}
}

func (p *Pool) execute(ctx context.Context, logger *slog.Logger, job *queue.Job) ([]byte, error) {
	runCtx, cancel := context.WithCancel(ctx)

	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go p.heartbeat.StartLoop(runCtx, &hbWG, job.ID)
	defer hbWG.Wait()
	defer cancel()

	progress := func(percent int) {
		if err := p.queue.ReportProgress(runCtx, job.ID, percent); err != nil && runCtx.Err() == nil {
			logger.Debug("progress update failed", logging.Error(err))
		}
		if p.sampler.ShouldLog(job.ID, percent) {
			logger.Debug("stage progress", logging.Int(logging.FieldProgressPercent, percent))
		}
	}
	defer p.sampler.Forget(job.ID)

	return stage.Execute(runCtx, p.transform, job.Payload, progress)
}

func (p *Pool) fail(ctx context.Context, logger *slog.Logger, job *queue.Job, cause error, elapsed time.Duration) {
	p.mu.Lock()
	p.failed++
	p.mu.Unlock()

	code := services.FailureCode(cause)
	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.Error(cause),
		logging.String(logging.FieldErrorCode, code),
		logging.Duration("stage_duration", elapsed),
		logging.String(logging.FieldErrorHint, failureHint(code)),
		logging.String(logging.FieldImpact, "downstream stages blocked until retried"),
	)
	if err := p.queue.Fail(ctx, job.ID, cause.Error()); err != nil {
		if errors.Is(err, queue.ErrInvalidTransition) {
			logger.Debug("job no longer active; failure already recorded", logging.Error(err))
			return
		}
		p.onError(err)
		logging.ErrorWithContext(logger, "failed to persist stage failure", "stage_fail_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return
	}
	if err := p.notifier.NotifyWorkflowFailed(ctx, job.WorkflowID, job.Stage, cause.Error()); err != nil {
		logger.Warn("failure notification failed", logging.Error(err))
	}
}

func (p *Pool) interrupted(logger *slog.Logger, job *queue.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownFailTimeout)
	defer cancel()
	if err := p.queue.Fail(ctx, job.ID, "interrupted by shutdown"); err != nil && !errors.Is(err, queue.ErrInvalidTransition) {
		logger.Warn("failed to record interrupted job", logging.Error(err))
		return
	}
	logger.Info("stage interrupted by shutdown", logging.String(logging.FieldEventType, "stage_interrupted"))
}

func (p *Pool) markBusy(workerID, jobID string) {
	p.mu.Lock()
	p.busy[workerID] = jobID
	p.mu.Unlock()
}

func (p *Pool) markIdle(workerID string) {
	p.mu.Lock()
	delete(p.busy, workerID)
	p.mu.Unlock()
}

func failureHint(code string) string {
	switch code {
	case "validation":
		return "fix the submitted subtitles and submit again"
	case "configuration":
		return "check dubflow configuration and retry"
	case "transient", "timeout":
		return "retry the workflow"
	default:
		return "inspect the failure reason, then retry"
	}
}
