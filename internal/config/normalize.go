package config

import (
	"fmt"
	"os"
	"strings"
)

const envPrefix = "DUBFLOW_"

// applyEnv overlays DUBFLOW_* environment variables onto file values.
func (c *Config) applyEnv() {
	if value, ok := lookupEnv("API_TOKEN"); ok {
		c.API.Token = value
	}
	if value, ok := lookupEnv("API_BIND"); ok {
		c.API.Bind = value
	}
	if value, ok := lookupEnv("QUEUE_BACKEND"); ok {
		c.Queue.Backend = value
	}
	if value, ok := lookupEnv("QUEUE_DSN"); ok {
		c.Queue.DSN = value
	}
	if value, ok := lookupEnv("NTFY_TOPIC"); ok {
		c.Notifications.NtfyTopic = value
	}
	if value, ok := lookupEnv("LOG_LEVEL"); ok {
		c.Logging.Level = value
	}
	if value, ok := lookupEnv("LOG_FORMAT"); ok {
		c.Logging.Format = value
	}
}

func lookupEnv(name string) (string, bool) {
	value, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeQueue()
	c.normalizeSpeech()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if strings.TrimSpace(c.Paths.ArtifactDir) == "" {
		c.Paths.ArtifactDir = defaultArtifactDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.ArtifactDir, err = expandPath(c.Paths.ArtifactDir); err != nil {
		return fmt.Errorf("paths.artifact_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
}

func (c *Config) normalizeQueue() {
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	if c.Queue.Backend == "" {
		c.Queue.Backend = defaultQueueBackend
	}
	c.Queue.DSN = strings.TrimSpace(c.Queue.DSN)
	c.Queue.RetentionSchedule = strings.TrimSpace(c.Queue.RetentionSchedule)
	if c.Queue.RetentionSchedule == "" {
		c.Queue.RetentionSchedule = defaultRetentionSchedule
	}
	c.Workflow.ReaperSchedule = strings.TrimSpace(c.Workflow.ReaperSchedule)
	if c.Workflow.ReaperSchedule == "" {
		c.Workflow.ReaperSchedule = defaultReaperSchedule
	}
}

func (c *Config) normalizeSpeech() {
	c.Speech.DefaultVoice = strings.ToLower(strings.TrimSpace(c.Speech.DefaultVoice))
	if c.Speech.DefaultVoice == "" {
		c.Speech.DefaultVoice = defaultVoice
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	switch c.Logging.Level {
	case "":
		c.Logging.Level = defaultLogLevel
	case "warning":
		c.Logging.Level = "warn"
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if len(c.Logging.StageOverrides) > 0 {
		overrides := make(map[string]string, len(c.Logging.StageOverrides))
		for stage, level := range c.Logging.StageOverrides {
			key := strings.ToLower(strings.TrimSpace(stage))
			if key == "" {
				continue
			}
			overrides[key] = strings.ToLower(strings.TrimSpace(level))
		}
		c.Logging.StageOverrides = overrides
	}
}
