package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir    string `toml:"state_dir" validate:"required"`
	ArtifactDir string `toml:"artifact_dir" validate:"required"`
	LogDir      string `toml:"log_dir" validate:"required"`
}

// API contains HTTP front-end configuration.
type API struct {
	Bind                string `toml:"bind" validate:"required,hostname_port"`
	Token               string `toml:"token"`
	SubmitRatePerMinute int    `toml:"submit_rate_per_minute" validate:"gte=0"`
	SubmitBurst         int    `toml:"submit_burst" validate:"gte=1"`
	MaxSubmitBytes      int64  `toml:"max_submit_bytes" validate:"gt=0"`
	ShutdownTimeout     int    `toml:"shutdown_timeout" validate:"gte=1"`
}

// Queue selects and tunes the work queue backend.
type Queue struct {
	Backend           string `toml:"backend" validate:"oneof=sqlite mysql badger memory"`
	DSN               string `toml:"dsn"`
	RetentionHours    int    `toml:"retention_hours" validate:"gte=0"`
	RetentionSchedule string `toml:"retention_schedule" validate:"required"`
}

// StageConcurrency holds the worker count for each stage pool.
type StageConcurrency struct {
	Extract  int `toml:"extract" validate:"gte=1,lte=64"`
	Generate int `toml:"generate" validate:"gte=1,lte=64"`
	Mix      int `toml:"mix" validate:"gte=1,lte=64"`
}

// Workflow contains configuration for worker pools, heartbeats, and the reaper.
type Workflow struct {
	QueuePollInterval int              `toml:"queue_poll_interval" validate:"gte=1"`
	MaxIdleBackoff    int              `toml:"max_idle_backoff" validate:"gte=1"`
	HeartbeatInterval int              `toml:"heartbeat_interval" validate:"gte=1"`
	JobTimeout        int              `toml:"job_timeout" validate:"gte=0"`
	ReaperSchedule    string           `toml:"reaper_schedule" validate:"required"`
	Concurrency       StageConcurrency `toml:"concurrency"`
}

// Speech contains configuration for the synthesis stage.
type Speech struct {
	DefaultVoice      string  `toml:"default_voice" validate:"oneof=default male female"`
	RequestsPerSecond float64 `toml:"requests_per_second" validate:"gt=0"`
	Burst             int     `toml:"burst" validate:"gte=1"`
}

// Mixing contains configuration for the mix stage.
type Mixing struct {
	Gain float64 `toml:"gain" validate:"gt=0,lte=4"`
}

// Notifications configures ntfy push notifications for finished workflows.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic" validate:"omitempty,url"`
	RequestTimeout int    `toml:"request_timeout" validate:"gte=1"`
	NotifySuccess  bool   `toml:"notify_success"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format" validate:"oneof=auto console json"`
	Level          string            `toml:"level" validate:"oneof=debug info warn error"`
	RetentionDays  int               `toml:"retention_days" validate:"gte=0"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Config encapsulates all configuration values for dubflow.
//
// Configuration sections by subsystem:
//   - Paths: state, artifact, and log directories
//   - API: HTTP bind address, auth token, submission limits
//   - Queue: work queue backend and retention of finished jobs
//   - Workflow: worker pool sizes, polling, heartbeats, reaper
//   - Speech: synthesis voice and backend throttling
//   - Mixing: output gain
//   - Notifications: ntfy topic for completion and failure alerts
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Queue         Queue         `toml:"queue"`
	Workflow      Workflow      `toml:"workflow"`
	Speech        Speech        `toml:"speech"`
	Mixing        Mixing        `toml:"mixing"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. Values from a .env
// file next to the config (or in the working directory) are loaded into the
// environment first, then environment overrides are applied. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if err := loadDotEnv(resolvedPath); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dubflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// loadDotEnv reads .env files without overriding variables that are already set.
func loadDotEnv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	}
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		if info, err := os.Stat(abs); err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("load env file %s: %w", abs, err)
		}
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.ArtifactDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueuePath returns the on-disk location of the embedded queue store for the
// configured backend. The MySQL and memory backends have no local path.
func (c *Config) QueuePath() string {
	switch c.Queue.Backend {
	case "sqlite":
		return filepath.Join(c.Paths.StateDir, "queue.db")
	case "badger":
		return filepath.Join(c.Paths.StateDir, "queue.badger")
	default:
		return ""
	}
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "dubflowd.lock")
}

// LogPath returns the daemon JSON log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "dubflowd.log")
}

// PollInterval returns the base idle wait for worker pools.
func (w Workflow) PollInterval() time.Duration {
	return time.Duration(w.QueuePollInterval) * time.Second
}

// IdleBackoffCap returns the longest idle wait a worker backs off to.
func (w Workflow) IdleBackoffCap() time.Duration {
	return time.Duration(w.MaxIdleBackoff) * time.Second
}

// Heartbeat returns the active job heartbeat cadence.
func (w Workflow) Heartbeat() time.Duration {
	return time.Duration(w.HeartbeatInterval) * time.Second
}

// Timeout returns how long an active job may go without a heartbeat before the
// reaper fails it. Zero disables reaping.
func (w Workflow) Timeout() time.Duration {
	return time.Duration(w.JobTimeout) * time.Second
}

// Retention returns how long terminal jobs are kept. Zero keeps them forever.
func (q Queue) Retention() time.Duration {
	return time.Duration(q.RetentionHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
