package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"dubflow/internal/config"
	"dubflow/internal/daemon"
	"dubflow/internal/logging"
	"dubflow/internal/mixing"
	"dubflow/internal/notifications"
	"dubflow/internal/queue"
	"dubflow/internal/speech"
	"dubflow/internal/stage"
	"dubflow/internal/subtitles"
	"dubflow/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel  string
	LogFormat string
	Bind      string
	// Ephemeral swaps the configured backend for the in-memory queue.
	Ephemeral bool
}

// Run starts the dubflow daemon and blocks until SIGINT, SIGTERM or ctx
// cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	applyOverrides(cfg, opts)

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logConfigSnapshot(logger, cfg)
	logging.PruneOldFiles(logger, time.Duration(cfg.Logging.RetentionDays)*24*time.Hour,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "*.log", Exclude: []string{cfg.LogPath()}},
	)

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err), logging.String("backend", cfg.Queue.Backend))
		return err
	}

	table, err := BuildTable(cfg, logger)
	if err != nil {
		_ = store.Close()
		return err
	}
	orch := workflow.NewOrchestrator(store, logger, workflow.WithMaxInputBytes(int(cfg.API.MaxSubmitBytes)))
	manager := workflow.NewManager(cfg, store, orch, table, logger,
		workflow.WithNotifier(notifications.NewService(cfg)),
	)

	d, err := daemon.New(cfg, store, logger, manager)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the lock file, api.bind and queue backend"),
			logging.String(logging.FieldImpact, "no workflows will be processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("dubflow daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// BuildTable registers the extract, generate and mix transforms.
func BuildTable(cfg *config.Config, logger *slog.Logger) (*stage.Table, error) {
	synth := speech.NewSynthesizer(cfg, logger)
	table, err := stage.NewTable(
		subtitles.NewExtractor(logger),
		speech.NewGenerator(synth, cfg.Speech.DefaultVoice, logger),
		mixing.NewMixer(cfg, logger),
	)
	if err != nil {
		return nil, fmt.Errorf("register stages: %w", err)
	}
	return table, nil
}

// PIDPath returns the pid file written while the daemon runs.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, "dubflowd.pid")
}

// ReadPID returns the pid recorded by a running daemon.
func ReadPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(PIDPath(cfg))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file: %w", err)
	}
	return pid, nil
}

func applyOverrides(cfg *config.Config, opts Options) {
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if format := strings.TrimSpace(opts.LogFormat); format != "" {
		cfg.Logging.Format = format
	}
	if bind := strings.TrimSpace(opts.Bind); bind != "" {
		cfg.API.Bind = bind
	}
	if opts.Ephemeral {
		cfg.Queue.Backend = queue.BackendMemory
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("queue_backend", cfg.Queue.Backend),
		logging.String("state_dir", cfg.Paths.StateDir),
		logging.String("artifact_dir", cfg.Paths.ArtifactDir),
		logging.String("api_bind", cfg.API.Bind),
		logging.Bool("api_auth", strings.TrimSpace(cfg.API.Token) != ""),
		logging.Int("extract_workers", cfg.Workflow.Concurrency.Extract),
		logging.Int("generate_workers", cfg.Workflow.Concurrency.Generate),
		logging.Int("mix_workers", cfg.Workflow.Concurrency.Mix),
		logging.String("default_voice", cfg.Speech.DefaultVoice),
	)
}
