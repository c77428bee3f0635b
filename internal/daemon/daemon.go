package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"dubflow/internal/api"
	"dubflow/internal/config"
	"dubflow/internal/logging"
	"dubflow/internal/preflight"
	"dubflow/internal/queue"
	"dubflow/internal/workflow"
)

const defaultShutdownTimeout = 10 * time.Second

// Daemon owns the worker pools and the API server and enforces
// single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	queue   queue.Queue
	manager *workflow.Manager
	server  *api.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	checks  []preflight.Result
}

// Status represents daemon runtime information.
type Status struct {
	Running   bool
	PID       int
	Workflow  workflow.StatusSummary
	Checks    []preflight.Result
	QueuePath string
	LockPath  string
	APIAddr   string
}

// New constructs a daemon with initialized dependencies. Server options are
// passed through to the API server.
func New(cfg *config.Config, q queue.Queue, logger *slog.Logger, mgr *workflow.Manager, opts ...api.ServerOption) (*Daemon, error) {
	if cfg == nil || q == nil || mgr == nil {
		return nil, errors.New("daemon requires config, queue, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		queue:    q,
		manager:  mgr,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	opts = append([]api.ServerOption{api.WithHealth(d.Health)}, opts...)
	d.server = api.NewServer(cfg, mgr.Orchestrator(), q, logger, opts...)
	return d, nil
}

// Start acquires the daemon lock, runs preflight checks, and launches the
// workflow manager followed by the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another dubflowd instance holds %s", d.lockPath)
	}

	d.runPreflight(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.manager.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.server.Start(runCtx); err != nil {
		d.manager.Stop()
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}

	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	d.running.Store(true)
	d.logger.Info("dubflow daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.server.Addr()),
		logging.String("queue_backend", d.cfg.Queue.Backend),
	)
	return nil
}

// Stop shuts down in reverse start order: the API stops accepting work, the
// pools drain, and the lock is released.
func (d *Daemon) Stop() {
	if !d.running.Swap(false) {
		return
	}

	d.server.Stop(d.shutdownTimeout())
	d.manager.Stop()

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.mu.Unlock()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("dubflow daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes the queue.
func (d *Daemon) Close() error {
	d.Stop()
	return d.queue.Close()
}

// Addr returns the API listener address while running.
func (d *Daemon) Addr() string {
	return d.server.Addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	checks := append([]preflight.Result(nil), d.checks...)
	d.mu.Unlock()
	return Status{
		Running:   d.running.Load(),
		PID:       os.Getpid(),
		Workflow:  d.manager.Status(ctx),
		Checks:    checks,
		QueuePath: d.cfg.QueuePath(),
		LockPath:  d.lockPath,
		APIAddr:   d.server.Addr(),
	}
}

// Health renders Status for the API health endpoint.
func (d *Daemon) Health(ctx context.Context) api.HealthView {
	status := d.Status(ctx)
	view := api.FromStatusSummary(status.Workflow)
	view.Running = status.Running
	view.PID = status.PID
	view.Backend = d.cfg.Queue.Backend
	view.Checks = api.FromChecks(status.Checks)
	return view
}

func (d *Daemon) runPreflight(ctx context.Context) {
	results := preflight.RunAll(ctx, d.cfg)
	for _, r := range preflight.Failed(results) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "fix the path or backend before submitting work"),
			logging.String(logging.FieldImpact, "stages may fail until resolved"),
		)
	}
	d.mu.Lock()
	d.checks = results
	d.mu.Unlock()
}

func (d *Daemon) shutdownTimeout() time.Duration {
	if d.cfg.API.ShutdownTimeout > 0 {
		return time.Duration(d.cfg.API.ShutdownTimeout) * time.Second
	}
	return defaultShutdownTimeout
}
