package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"dubflow/internal/config"
	"dubflow/internal/logging"
	"dubflow/internal/notifications"
	"dubflow/internal/queue"
	"dubflow/internal/stage"
)

// timings groups the polling cadence shared by every pool.
type timings struct {
	poll       time.Duration
	maxBackoff time.Duration
}

func (t timings) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > t.maxBackoff {
		return t.maxBackoff
	}
	return next
}

// Manager owns the stage pools, the heartbeat monitor and the scheduler.
type Manager struct {
	cfg       *config.Config
	queue     queue.Queue
	orch      *Orchestrator
	table     *stage.Table
	logger    *slog.Logger
	timings   timings
	heartbeat *HeartbeatMonitor
	scheduler *Scheduler
	notifier  notifications.Service

	pools []*Pool

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	poll              time.Duration
	maxBackoff        time.Duration
	heartbeatInterval time.Duration
	disableScheduler  bool
	notifier          notifications.Service
}

// WithPolling overrides the idle poll interval and backoff cap.
func WithPolling(poll, maxBackoff time.Duration) ManagerOption {
	return func(o *managerOptions) {
		o.poll = poll
		o.maxBackoff = maxBackoff
	}
}

// WithHeartbeatInterval overrides the active job heartbeat cadence.
func WithHeartbeatInterval(interval time.Duration) ManagerOption {
	return func(o *managerOptions) {
		o.heartbeatInterval = interval
	}
}

// WithoutScheduler disables the cron driven reaper and retention jobs.
func WithoutScheduler() ManagerOption {
	return func(o *managerOptions) {
		o.disableScheduler = true
	}
}

// WithNotifier sends workflow completion and failure alerts through svc.
func WithNotifier(svc notifications.Service) ManagerOption {
	return func(o *managerOptions) {
		o.notifier = svc
	}
}

// NewManager constructs a workflow manager for the transforms in table.
func NewManager(cfg *config.Config, q queue.Queue, orch *Orchestrator, table *stage.Table, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	options := managerOptions{
		poll:              cfg.Workflow.PollInterval(),
		maxBackoff:        cfg.Workflow.IdleBackoffCap(),
		heartbeatInterval: cfg.Workflow.Heartbeat(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.maxBackoff < options.poll {
		options.maxBackoff = options.poll
	}
	if options.notifier == nil {
		options.notifier = notifications.Noop()
	}

	m := &Manager{
		cfg:      cfg,
		queue:    q,
		orch:     orch,
		table:    table,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		timings:  timings{poll: options.poll, maxBackoff: options.maxBackoff},
		notifier: options.notifier,
	}
	m.heartbeat = NewHeartbeatMonitor(q, m.logger, options.heartbeatInterval, cfg.Workflow.Timeout())
	if !options.disableScheduler {
		m.scheduler = NewScheduler(cfg, orch, m.heartbeat, m.logger)
	}
	m.configurePools(logger)
	return m
}

// configurePools builds one pool per stage in pipeline order and hands each
// transform its stage logger.
func (m *Manager) configurePools(base *slog.Logger) {
	workerTag := uuid.NewString()[:8]
	for _, name := range stage.Order() {
		transform, err := m.table.Lookup(name)
		if err != nil {
			m.logger.Warn("stage has no transform; pool not started",
				logging.String(logging.FieldStage, name),
				logging.Error(err),
			)
			continue
		}
		stageLogger := logging.ForStage(base, m.cfg, name)
		if aware, ok := transform.(stage.LoggerAware); ok {
			aware.SetLogger(stageLogger)
		}
		m.pools = append(m.pools, newPool(
			name,
			m.concurrency(name),
			m.queue,
			m.orch,
			transform,
			m.heartbeat,
			logging.NewComponentLogger(stageLogger, "workflow-"+name+"-pool"),
			m.timings,
			workerTag,
			m.notifier,
			m.setLastError,
		))
	}
}

func (m *Manager) concurrency(name string) int {
	c := m.cfg.Workflow.Concurrency
	switch name {
	case stage.Extract:
		return c.Extract
	case stage.Generate:
		return c.Generate
	case stage.Mix:
		return c.Mix
	default:
		return 1
	}
}

// Orchestrator exposes the orchestrator the pools chain through.
func (m *Manager) Orchestrator() *Orchestrator {
	return m.orch
}
