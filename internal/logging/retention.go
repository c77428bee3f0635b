package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names a directory, an optional glob for the files to
// consider and paths that must survive, such as the active daemon log.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// PruneOldFiles deletes target files last modified more than maxAge ago and
// returns how many were removed. A non-positive maxAge disables pruning.
func PruneOldFiles(logger *slog.Logger, maxAge time.Duration, targets ...RetentionTarget) int {
	if maxAge <= 0 {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, target := range targets {
		removed += target.prune(logger, cutoff)
	}
	return removed
}

func (t RetentionTarget) prune(logger *slog.Logger, cutoff time.Time) int {
	dir := strings.TrimSpace(t.Dir)
	if dir == "" {
		return 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	keep := t.excluded()
	pattern := strings.TrimSpace(t.Pattern)

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if pattern != "" {
			if ok, err := filepath.Match(pattern, entry.Name()); err != nil || !ok {
				continue
			}
		}
		path := absPath(filepath.Join(dir, entry.Name()))
		if _, skip := keep[path]; skip {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "retention remove failed; file remains", "retention_remove_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check log directory permissions"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed++
		logger.Debug("log file pruned", String("path", path), String(FieldEventType, "file_pruned"))
	}
	return removed
}

func (t RetentionTarget) excluded() map[string]struct{} {
	keep := make(map[string]struct{}, len(t.Exclude))
	for _, path := range t.Exclude {
		if path = strings.TrimSpace(path); path != "" {
			keep[absPath(path)] = struct{}{}
		}
	}
	return keep
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
