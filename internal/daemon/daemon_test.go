package daemon_test

import (
	"context"
	"testing"
	"time"

	"dubflow/internal/api"
	"dubflow/internal/config"
	"dubflow/internal/daemon"
	"dubflow/internal/mixing"
	"dubflow/internal/queue"
	"dubflow/internal/speech"
	"dubflow/internal/stage"
	"dubflow/internal/subtitles"
	"dubflow/internal/testsupport"
	"dubflow/internal/workflow"
)

const srt = "1\n00:00:00,000 --> 00:00:02,000\nHello\n"

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	q := testsupport.MustOpenQueue(t, cfg)
	synth := speech.NewSynthesizer(cfg, nil)
	table, err := stage.NewTable(
		subtitles.NewExtractor(nil),
		speech.NewGenerator(synth, cfg.Speech.DefaultVoice, nil),
		mixing.NewMixer(cfg, nil),
	)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
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
	t.Cleanup(d.Stop)
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBackend(queue.BackendMemory))
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.APIAddr == "" {
		t.Fatal("expected API listener address")
	}
	if status.LockPath != cfg.LockPath() {
		t.Fatalf("lock path = %q, want %q", status.LockPath, cfg.LockPath())
	}
	if len(status.Checks) == 0 {
		t.Fatal("expected preflight results to be recorded")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
	if status.APIAddr != "" {
		t.Fatalf("expected listener to be released, got %q", status.APIAddr)
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBackend(queue.BackendMemory))
	first := newDaemon(t, cfg)
	second := newDaemon(t, cfg)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected second instance to be rejected by the lock")
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release failed: %v", err)
	}
}

func TestDaemonServesWorkflowsOverAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithBackend(queue.BackendSQLite),
		testsupport.WithAPIToken("token"),
		testsupport.WithConcurrency(1, 3, 2),
	)
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	client, err := api.NewClient(d.Addr(), "token")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	id, err := client.Submit(ctx, srt, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	final, err := client.Watch(ctx, id, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if final.Status != "completed" {
		t.Fatalf("workflow status = %q (%s), want completed", final.Status, final.FailureReason)
	}

	health, err := client.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !health.Running || health.PID == 0 {
		t.Fatalf("unexpected health %+v", health)
	}
	if health.Backend != queue.BackendSQLite {
		t.Fatalf("backend = %q", health.Backend)
	}
	if health.QueueStats["completed"] != 3 {
		t.Fatalf("completed jobs = %d, want 3", health.QueueStats["completed"])
	}
	if len(health.Pools) != 3 || len(health.StageHealth) != 3 {
		t.Fatalf("expected three pools and stage health entries, got %+v", health)
	}
	workers := map[string]int{}
	for _, pool := range health.Pools {
		workers[pool.Stage] = pool.Workers
	}
	if workers["extract"] != 1 || workers["generate"] != 3 || workers["mix"] != 2 {
		t.Fatalf("unexpected pool sizes %v", workers)
	}
}
