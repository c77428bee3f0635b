package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"dubflow/internal/api"
	"dubflow/internal/testsupport"
)

func TestSubmitWaitPrintsResult(t *testing.T) {
	env := setupCLITestEnv(t)
	path := testsupport.WriteSubtitles(t, env.baseDir, "sample.srt", sampleSRT)

	out, err := env.run(t, "submit", "--wait", "--voice", "male", path)
	if err != nil {
		t.Fatalf("submit --wait: %v\n%s", err, out)
	}
	for _, want := range []string{"submitted", "completed", "Hello there General Kenobi", "Mixed audio", "General Kenobi"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	id := strings.Fields(strings.SplitN(out, "\n", 2)[0])[1]
	out, err = env.run(t, "status", "--json", id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var view api.WorkflowView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode status json: %v\n%s", err, out)
	}
	if view.Status != "completed" || len(view.Stages) != 3 {
		t.Fatalf("unexpected status %+v", view)
	}

	out, err = env.run(t, "status", id)
	if err != nil {
		t.Fatalf("status table: %v", err)
	}
	if !strings.Contains(out, "Extract") || !strings.Contains(out, "Completed") {
		t.Fatalf("expected title-cased stage rows:\n%s", out)
	}

	if _, err := env.run(t, "retry", id); err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("expected retry of a completed workflow to conflict, got %v", err)
	}
}

func TestSubmitFromStdin(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := runCLI(t, strings.NewReader(sampleSRT), []string{"--api", env.apiAddr, "--config", env.configPath, "submit", "-"})
	if err != nil {
		t.Fatalf("submit -: %v", err)
	}
	if !strings.HasPrefix(out, "Workflow ") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestSubmitStrictRejectsMalformedFile(t *testing.T) {
	env := setupCLITestEnv(t)
	path := testsupport.WriteSubtitles(t, env.baseDir, "bad.srt", "just some words\n")

	if _, err := env.run(t, "submit", "--strict", path); err == nil {
		t.Fatal("expected strict validation failure")
	}
	out, err := env.run(t, "queue", "stats")
	if err != nil {
		t.Fatalf("queue stats: %v", err)
	}
	if !strings.Contains(out, "Queue is empty") {
		t.Fatalf("expected nothing submitted, got:\n%s", out)
	}
}

func TestFailedWorkflowWaitReturnsError(t *testing.T) {
	env := setupCLITestEnv(t)
	path := testsupport.WriteSubtitles(t, env.baseDir, "bad.srt", "just some words\n")

	_, err := env.run(t, "submit", "--wait", path)
	if err == nil || !strings.Contains(err.Error(), "failed at extract") {
		t.Fatalf("expected extract failure, got %v", err)
	}

	out, err := env.run(t, "queue", "list", "--state", "failed")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if !strings.Contains(out, "Extract") || !strings.Contains(out, "Failed") {
		t.Fatalf("expected failed extract job:\n%s", out)
	}
}

func TestQueueCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	path := testsupport.WriteSubtitles(t, env.baseDir, "sample.srt", sampleSRT)
	if _, err := env.run(t, "submit", "--wait", path); err != nil {
		t.Fatalf("submit: %v", err)
	}

	out, err := env.run(t, "queue", "stats")
	if err != nil {
		t.Fatalf("queue stats: %v", err)
	}
	if !strings.Contains(out, "Completed") || !strings.Contains(out, "Total") {
		t.Fatalf("unexpected stats output:\n%s", out)
	}

	out, err = env.run(t, "queue", "list", "--json")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	var jobs []api.JobView
	if err := json.Unmarshal([]byte(out), &jobs); err != nil {
		t.Fatalf("decode jobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}

	if _, err := env.run(t, "queue", "list", "--state", "bogus"); err == nil {
		t.Fatal("expected unknown state to be rejected")
	}

	out, err = env.run(t, "queue", "purge", "--older-than", "0s")
	if err != nil {
		t.Fatalf("queue purge: %v", err)
	}
	if !strings.Contains(out, "Removed 3 job(s)") {
		t.Fatalf("unexpected purge output %q", out)
	}
}

func TestVoicesAndEstimate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "voices")
	if err != nil {
		t.Fatalf("voices: %v", err)
	}
	for _, want := range []string{"default", "male", "female"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected voice %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, strings.NewReader("Hello there General Kenobi\n"),
		[]string{"--api", env.apiAddr, "--config", env.configPath, "estimate", "-"})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if strings.TrimSpace(out) != "4 words, about 2s of speech" {
		t.Fatalf("unexpected estimate output %q", out)
	}
}

func TestDaemonStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "daemon", "status")
	if err != nil {
		t.Fatalf("daemon status: %v", err)
	}
	for _, want := range []string{"System Status", "running (pid", "memory", "Queue Status", "Generate"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestUnreachableDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := runCLI(t, nil, []string{"--api", "127.0.0.1:1", "--config", env.configPath, "voices"})
	if err == nil || !strings.Contains(err.Error(), "daemon") {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	target := filepath.Join(dir, "dubflow", "config.toml")

	out, err := runCLI(t, nil, []string{"config", "init", "--path", target})
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("expected target path in output %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}
	if _, err := runCLI(t, nil, []string{"config", "init", "--path", target}); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}

	out, err = runCLI(t, nil, []string{"--config", target, "config", "validate"})
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, "sqlite") {
		t.Fatalf("unexpected validate output:\n%s", out)
	}
}

func TestTestNotifyCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(dir, "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, err := runCLI(t, nil, []string{"--config", configPath, "test-notify"})
	if err != nil {
		t.Fatalf("test-notify without topic: %v", err)
	}
	if !strings.Contains(out, "Notifications disabled") {
		t.Fatalf("unexpected output %q", out)
	}

	var (
		mu     sync.Mutex
		titles []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		titles = append(titles, r.Header.Get("Title"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	extra := fmt.Sprintf("\n[notifications]\nntfy_topic = %q\n", srv.URL)
	f, err := os.OpenFile(configPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	if _, err := f.WriteString(extra); err != nil {
		t.Fatalf("append config: %v", err)
	}
	_ = f.Close()

	out, err = runCLI(t, nil, []string{"--config", configPath, "test-notify"})
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	if !strings.Contains(out, "Test notification sent") {
		t.Fatalf("unexpected output %q", out)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(titles) != 1 || titles[0] != "dubflow - Test" {
		t.Fatalf("unexpected ntfy requests %v", titles)
	}
}

func TestLogsCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	logPath := env.cfg.LogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		t.Fatalf("mkdir log dir: %v", err)
	}
	content := "first workflow_id=wf-1\nsecond workflow_id=wf-2\nthird workflow_id=wf-1\n"
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, err := env.run(t, "logs", "-n", "2")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "second workflow_id=wf-2\nthird workflow_id=wf-1\n" {
		t.Fatalf("unexpected logs output %q", out)
	}

	out, err = env.run(t, "logs", "--workflow", "wf-1")
	if err != nil {
		t.Fatalf("logs --workflow: %v", err)
	}
	if strings.Count(out, "\n") != 2 || strings.Contains(out, "wf-2") {
		t.Fatalf("unexpected filtered output %q", out)
	}
}
