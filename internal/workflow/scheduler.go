package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dubflow/internal/config"
	"dubflow/internal/logging"
)

// maintenanceTimeout bounds a single reaper or retention run.
const maintenanceTimeout = 2 * time.Minute

// ScheduledTask describes one cron entry.
type ScheduledTask struct {
	Name     string     `json:"name"`
	Schedule string     `json:"schedule"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	Result   string     `json:"last_result,omitempty"`
}

// ScheduleStatus lists the registered maintenance tasks.
type ScheduleStatus struct {
	Tasks []ScheduledTask `json:"tasks"`
}

type taskEntry struct {
	name     string
	schedule string
	id       cron.EntryID
	lastRun  *time.Time
	result   string
}

// Scheduler runs periodic maintenance: the stale job reaper and retention.
type Scheduler struct {
	cfg       *config.Config
	orch      *Orchestrator
	heartbeat *HeartbeatMonitor
	logger    *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	tasks   []*taskEntry
	running bool
}

// NewScheduler constructs a scheduler. Nothing runs until Start.
func NewScheduler(cfg *config.Config, orch *Orchestrator, hb *HeartbeatMonitor, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "workflow-scheduler")
	return &Scheduler{
		cfg:       cfg,
		orch:      orch,
		heartbeat: hb,
		logger:    logger,
		cron:      cron.New(cron.WithLogger(cronLogger{logger: logger})),
	}
}

// Start registers the maintenance tasks and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.ctx = ctx

	if len(s.tasks) == 0 {
		if err := s.register("reaper", s.cfg.Workflow.ReaperSchedule, s.reap); err != nil {
			return err
		}
		if err := s.register("retention", s.cfg.Queue.RetentionSchedule, s.retain); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started",
		logging.String("reaper_schedule", s.cfg.Workflow.ReaperSchedule),
		logging.String("retention_schedule", s.cfg.Queue.RetentionSchedule),
	)
	return nil
}

func (s *Scheduler) register(name, schedule string, run func(context.Context) (string, error)) error {
	entry := &taskEntry{name: name, schedule: schedule}
	id, err := s.cron.AddFunc(schedule, func() { s.runTask(entry, run) })
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, schedule, err)
	}
	entry.id = id
	s.tasks = append(s.tasks, entry)
	return nil
}

// Stop halts the cron runner and waits for a running task to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runTask(entry *taskEntry, run func(context.Context) (string, error)) {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil || parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, maintenanceTimeout)
	defer cancel()

	result, err := run(ctx)
	if err != nil {
		result = "error: " + err.Error()
		logging.WarnWithContext(s.logger, "maintenance task failed", "maintenance_failed",
			logging.String("task", entry.name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}
	now := time.Now().UTC()
	s.mu.Lock()
	entry.lastRun = &now
	entry.result = result
	s.mu.Unlock()
}

// Status reports schedules and the outcome of the last runs.
func (s *Scheduler) Status() ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := ScheduleStatus{Tasks: make([]ScheduledTask, 0, len(s.tasks))}
	for _, entry := range s.tasks {
		task := ScheduledTask{Name: entry.name, Schedule: entry.schedule, Result: entry.result}
		if entry.lastRun != nil {
			last := *entry.lastRun
			task.LastRun = &last
		}
		if next := s.cron.Entry(entry.id).Next; !next.IsZero() {
			task.NextRun = &next
		}
		status.Tasks = append(status.Tasks, task)
	}
	return status
}

func (s *Scheduler) reap(ctx context.Context) (string, error) {
	return Reap(ctx, s.heartbeat, s.orch)
}

func (s *Scheduler) retain(ctx context.Context) (string, error) {
	return Retain(ctx, s.cfg, s.orch, s.logger)
}

// Reap fails jobs whose workers stopped heartbeating and re-chains completed
// stages whose successor is missing.
func Reap(ctx context.Context, hb *HeartbeatMonitor, orch *Orchestrator) (string, error) {
	reclaimed, err := hb.ReclaimStale(ctx)
	if err != nil {
		return "", fmt.Errorf("reclaim stale jobs: %w", err)
	}
	chained, err := orch.Reconcile(ctx)
	if err != nil {
		return "", fmt.Errorf("reconcile workflows: %w", err)
	}
	return fmt.Sprintf("reclaimed %d, re-chained %d", reclaimed, chained), nil
}

// Retain purges finished workflows and artifacts older than queue retention
// and prunes log files older than log retention.
func Retain(ctx context.Context, cfg *config.Config, orch *Orchestrator, logger *slog.Logger) (string, error) {
	retention := cfg.Queue.Retention()
	var purged int64
	if retention > 0 {
		var err error
		purged, err = orch.Purge(ctx, time.Now().Add(-retention))
		if err != nil {
			return "", fmt.Errorf("purge finished workflows: %w", err)
		}
	}
	artifacts := logging.PruneOldFiles(logger, retention,
		logging.RetentionTarget{Dir: cfg.Paths.ArtifactDir, Pattern: "tts_*.wav"},
		logging.RetentionTarget{Dir: cfg.Paths.ArtifactDir, Pattern: "mix_*.wav"},
	)
	logs := logging.PruneOldFiles(logger, time.Duration(cfg.Logging.RetentionDays)*24*time.Hour,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "*.log", Exclude: []string{cfg.LogPath()}},
	)
	if purged > 0 || artifacts > 0 || logs > 0 {
		logger.Info("retention pass removed data",
			logging.String(logging.FieldEventType, "retention_pruned"),
			logging.Int64("jobs", purged),
			logging.Int("artifacts", artifacts),
			logging.Int("logs", logs),
		)
	}
	return fmt.Sprintf("purged %d jobs, %d artifacts, %d logs", purged, artifacts, logs), nil
}

// cronLogger routes cron's own diagnostics through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{logging.Error(err)}, keysAndValues...)
	l.logger.Warn("cron: "+msg, args...)
}
