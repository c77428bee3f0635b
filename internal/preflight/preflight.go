package preflight

import (
	"context"

	"dubflow/internal/config"
)

// MinFreeBytes is the free space below which the artifact directory check
// fails. Synthesized audio is uncompressed PCM and grows quickly.
const MinFreeBytes = 512 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Artifact directory", cfg.Paths.ArtifactDir),
		CheckFreeSpace("Artifact disk space", cfg.Paths.ArtifactDir, MinFreeBytes),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	results = append(results, CheckQueueBackend(ctx, cfg))
	return results
}

// Failed filters results down to failed checks.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
