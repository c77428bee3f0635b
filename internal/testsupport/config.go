package testsupport

import (
	"path/filepath"
	"testing"

	"dubflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.ArtifactDir = filepath.Join(base, "artifacts")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Speech.RequestsPerSecond = 1000
	cfgVal.Speech.Burst = 100

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithBackend selects the queue backend.
func WithBackend(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.Backend = name
	}
}

// WithConcurrency overrides per-stage worker counts.
func WithConcurrency(extract, generate, mix int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Concurrency = config.StageConcurrency{Extract: extract, Generate: generate, Mix: mix}
	}
}

// WithAPIToken enables bearer authentication.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
