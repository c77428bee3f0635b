package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"dubflow/internal/logging"
	"dubflow/internal/queue"
)

// HeartbeatMonitor keeps active jobs alive and reclaims jobs whose workers
// stopped reporting.
type HeartbeatMonitor struct {
	queue             queue.Queue
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(q queue.Queue, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HeartbeatMonitor{
		queue:             q,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// ReclaimStale fails active jobs that have not been seen within the
// heartbeat timeout. Failed jobs block their workflow until retried.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context) (int, error) {
	if h.heartbeatTimeout <= 0 {
		return 0, nil
	}
	active, err := h.queue.ListByState(ctx, queue.StateActive)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-h.heartbeatTimeout)
	reclaimed := 0
	for _, job := range active {
		if job.LastSeen().After(cutoff) {
			continue
		}
		reason := "worker stopped responding (no heartbeat since " + job.LastSeen().UTC().Format(time.RFC3339) + ")"
		if err := h.queue.Fail(ctx, job.ID, reason); err != nil {
			if errors.Is(err, queue.ErrInvalidTransition) {
				continue
			}
			return reclaimed, err
		}
		reclaimed++
		logging.WarnWithContext(h.logger, "reclaimed stale job", "heartbeat_reclaimed",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldWorkflowID, job.WorkflowID),
			logging.String(logging.FieldStage, job.Stage),
			logging.String(logging.FieldWorker, job.ClaimedBy),
			logging.String(logging.FieldErrorHint, "retry the workflow once the worker issue is resolved"),
		)
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale jobs", logging.Int("count", reclaimed))
	}
	return reclaimed, nil
}

// StartLoop refreshes the heartbeat for jobID until ctx is cancelled.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID string) {
	defer wg.Done()
	if h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.queue.Heartbeat(ctx, jobID); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("heartbeat update cancelled")
				} else {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
			}
		}
	}
}
