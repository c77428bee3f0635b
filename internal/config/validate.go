package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// stageNames mirrors the pipeline stage identifiers accepted in
// logging.stage_overrides.
var stageNames = map[string]struct{}{"extract": {}, "generate": {}, "mix": {}}

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("toml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		return describeValidationError(err)
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.Backend == "mysql" && c.Queue.DSN == "" {
		return errors.New("queue.dsn must be set when queue.backend is mysql (or set DUBFLOW_QUEUE_DSN)")
	}
	if _, err := cron.ParseStandard(c.Queue.RetentionSchedule); err != nil {
		return fmt.Errorf("queue.retention_schedule: %w", err)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MaxIdleBackoff < c.Workflow.QueuePollInterval {
		return errors.New("workflow.max_idle_backoff must be at least workflow.queue_poll_interval")
	}
	if c.Workflow.JobTimeout > 0 && c.Workflow.JobTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.job_timeout must exceed workflow.heartbeat_interval")
	}
	if _, err := cron.ParseStandard(c.Workflow.ReaperSchedule); err != nil {
		return fmt.Errorf("workflow.reaper_schedule: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	for stage, level := range c.Logging.StageOverrides {
		if _, ok := stageNames[stage]; !ok {
			return fmt.Errorf("logging.stage_overrides: unknown stage %q", stage)
		}
		switch level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.stage_overrides.%s: unsupported level %q", stage, level)
		}
	}
	return nil
}

func describeValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate config: %w", err)
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		messages = append(messages, fmt.Sprintf("%s: got %v, must satisfy %s", field, fe.Value(), rule))
	}
	return errors.New("invalid config: " + strings.Join(messages, "; "))
}
