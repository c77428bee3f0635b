package daemonrun

import (
	"os"
	"testing"

	"dubflow/internal/queue"
	"dubflow/internal/stage"
	"dubflow/internal/testsupport"
)

func TestBuildTableRegistersEveryStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	table, err := BuildTable(cfg, nil)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	if !table.Complete() {
		t.Fatal("expected a transform for every stage")
	}
	for _, name := range stage.Order() {
		tr, err := table.Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		if tr.Name() != name {
			t.Fatalf("Lookup(%q) returned %q", name, tr.Name())
		}
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBackend(queue.BackendSQLite))
	applyOverrides(cfg, Options{LogLevel: "debug", Bind: "127.0.0.1:9999", Ephemeral: true})

	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if cfg.API.Bind != "127.0.0.1:9999" {
		t.Fatalf("bind = %q", cfg.API.Bind)
	}
	if cfg.Queue.Backend != queue.BackendMemory {
		t.Fatalf("backend = %q, want memory", cfg.Queue.Backend)
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := writePIDFile(PIDPath(cfg)); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := ReadPID(cfg)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("pid = %d, want %d", pid, os.Getpid())
	}
}
