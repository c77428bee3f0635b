package workflow

import (
	"context"
	"errors"

	"dubflow/internal/logging"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.pools) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(len(m.pools))
	m.mu.Unlock()

	if m.scheduler != nil {
		if err := m.scheduler.Start(runCtx); err != nil {
			m.logger.Warn("scheduler unavailable; stale jobs will not be reaped",
				logging.Error(err),
				logging.String(logging.FieldEventType, "scheduler_start_failed"),
				logging.String(logging.FieldErrorHint, "check workflow.reaper_schedule and queue.retention_schedule"),
			)
		}
	}

	for _, pool := range m.pools {
		go func() {
			defer m.wg.Done()
			pool.Run(runCtx)
		}()
	}

	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_manager_started"),
		logging.Int("pools", len(m.pools)),
	)
	return nil
}

// Stop terminates background processing and waits for in-flight jobs.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if m.scheduler != nil {
		m.scheduler.Stop()
	}
	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_manager_stopped"))
}
