package workflow

import (
	"context"

	"dubflow/internal/logging"
	"dubflow/internal/queue"
	"dubflow/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool                `json:"running"`
	LastError   string              `json:"last_error,omitempty"`
	QueueStats  queue.HealthSummary `json:"queue"`
	StageHealth []stage.Health      `json:"stages"`
	Pools       []PoolStatus        `json:"pools"`
	Schedule    *ScheduleStatus     `json:"schedule,omitempty"`
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	m.mu.RUnlock()

	stats, err := m.queue.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}

	summary := StatusSummary{
		Running:     running,
		QueueStats:  queue.Summarize(stats),
		StageHealth: m.table.Health(ctx),
		Pools:       make([]PoolStatus, 0, len(m.pools)),
	}
	for _, pool := range m.pools {
		summary.Pools = append(summary.Pools, pool.Status())
	}
	if m.scheduler != nil {
		schedule := m.scheduler.Status()
		summary.Schedule = &schedule
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
