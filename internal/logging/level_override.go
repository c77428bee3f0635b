package logging

import (
	"context"
	"log/slog"
	"strings"

	"dubflow/internal/config"
)

// stageLevelHandler raises the minimum level for one stage's logger. The
// wrapped handler's own level still applies, so an override can quiet a
// chatty stage but never make it louder than the daemon level.
type stageLevelHandler struct {
	next  slog.Handler
	floor slog.Level
}

func (h stageLevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.floor && h.next.Enabled(ctx, level)
}

func (h stageLevelHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.floor {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h stageLevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return stageLevelHandler{next: h.next.WithAttrs(attrs), floor: h.floor}
}

func (h stageLevelHandler) WithGroup(name string) slog.Handler {
	return stageLevelHandler{next: h.next.WithGroup(name), floor: h.floor}
}

// WithLevelOverride returns logger with its minimum level set to level.
// Applying it to an already overridden logger replaces the earlier floor.
func WithLevelOverride(logger *slog.Logger, level slog.Level) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	next := logger.Handler()
	if existing, ok := next.(stageLevelHandler); ok {
		next = existing.next
	}
	return slog.New(stageLevelHandler{next: next, floor: level})
}

// ForStage applies logging.stage_overrides for stage, returning logger
// unchanged when the stage has no override.
func ForStage(logger *slog.Logger, cfg *config.Config, stage string) *slog.Logger {
	if cfg == nil || len(cfg.Logging.StageOverrides) == 0 {
		return logger
	}
	level, ok := cfg.Logging.StageOverrides[strings.ToLower(strings.TrimSpace(stage))]
	if !ok {
		return logger
	}
	return WithLevelOverride(logger, parseLevel(level))
}
