package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dubflow/internal/config"
	"dubflow/internal/daemon"
	"dubflow/internal/daemonrun"
	"dubflow/internal/queue"
	"dubflow/internal/testsupport"
	"dubflow/internal/workflow"
)

const sampleSRT = "1\n00:00:01,000 --> 00:00:03,500\nHello there\n\n" +
	"2\n00:00:04,000 --> 00:00:06,250\nGeneral\nKenobi\n"

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	apiAddr    string
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithBackend(queue.BackendMemory))
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	q := testsupport.MustOpenQueue(t, cfg)
	table, err := daemonrun.BuildTable(cfg, nil)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	orch := workflow.NewOrchestrator(q, nil)
	mgr := workflow.NewManager(cfg, q, orch, table, nil,
		workflow.WithPolling(10*time.Millisecond, 50*time.Millisecond),
		workflow.WithHeartbeatInterval(20*time.Millisecond),
		workflow.WithoutScheduler(),
	)
	d, err := daemon.New(cfg, q, nil, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon Start: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
		cancel()
	})

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		apiAddr:    d.Addr(),
		configPath: configPath,
		baseDir:    base,
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLI(t, nil, append([]string{"--api", e.apiAddr, "--config", e.configPath}, args...))
}

func runCLI(t *testing.T, stdin io.Reader, args []string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nstate_dir = %q\nartifact_dir = %q\nlog_dir = %q\n\n[queue]\nbackend = %q\n",
		cfg.Paths.StateDir,
		cfg.Paths.ArtifactDir,
		cfg.Paths.LogDir,
		cfg.Queue.Backend,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}
