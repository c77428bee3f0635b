package workflow_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dubflow/internal/config"
	"dubflow/internal/mixing"
	"dubflow/internal/queue"
	"dubflow/internal/speech"
	"dubflow/internal/stage"
	"dubflow/internal/subtitles"
	"dubflow/internal/testsupport"
	"dubflow/internal/workflow"
)

const oneBlockSRT = "1\n00:00:00,000 --> 00:00:02,000\nHello\n"

const helloWorldSRT = "1\n00:00:01,000 --> 00:00:03,000\nHello World\n"

const twoBlockSRT = "1\r\n00:00:01,000 --> 00:00:03,500\r\nHello there\r\n\r\n" +
	"2\r\n00:00:04,000 --> 00:00:06,250\r\nGeneral\r\nKenobi\r\n"

type harness struct {
	cfg   *config.Config
	queue queue.Queue
	orch  *workflow.Orchestrator
	mgr   *workflow.Manager
}

type stubTransform struct {
	name  string
	calls atomic.Int32
	run   func(ctx context.Context, call int, payload []byte, progress stage.ProgressFunc) ([]byte, error)
}

func (s *stubTransform) Name() string { return s.name }

func (s *stubTransform) Run(ctx context.Context, payload []byte, progress stage.ProgressFunc) ([]byte, error) {
	call := int(s.calls.Add(1))
	if s.run == nil {
		return payload, nil
	}
	return s.run(ctx, call, payload, progress)
}

func (s *stubTransform) HealthCheck(context.Context) stage.Health { return stage.Healthy(s.name) }

func realTransforms(cfg *config.Config) []stage.Transform {
	synth := speech.NewSynthesizer(cfg, nil)
	return []stage.Transform{
		subtitles.NewExtractor(nil),
		speech.NewGenerator(synth, cfg.Speech.DefaultVoice, nil),
		mixing.NewMixer(cfg, nil),
	}
}

// newHarness builds a queue, orchestrator and running manager. Overrides
// replace the real transform registered under the same name.
func newHarness(t *testing.T, backend string, overrides ...stage.Transform) *harness {
	t.Helper()
	return newHarnessWithOptions(t, backend, nil, overrides...)
}

func newHarnessWithOptions(t *testing.T, backend string, opts []workflow.ManagerOption, overrides ...stage.Transform) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithBackend(backend))
	q := testsupport.MustOpenQueue(t, cfg)

	byName := make(map[string]stage.Transform)
	for _, tr := range realTransforms(cfg) {
		byName[tr.Name()] = tr
	}
	for _, tr := range overrides {
		byName[tr.Name()] = tr
	}
	transforms := make([]stage.Transform, 0, len(byName))
	for _, name := range stage.Order() {
		transforms = append(transforms, byName[name])
	}
	table, err := stage.NewTable(transforms...)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}

	orch := workflow.NewOrchestrator(q, nil)
	opts = append([]workflow.ManagerOption{
		workflow.WithPolling(10*time.Millisecond, 50*time.Millisecond),
		workflow.WithHeartbeatInterval(20*time.Millisecond),
		workflow.WithoutScheduler(),
	}, opts...)
	mgr := workflow.NewManager(cfg, q, orch, table, nil, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	if err := mgr.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		mgr.Stop()
		cancel()
	})
	return &harness{cfg: cfg, queue: q, orch: orch, mgr: mgr}
}

func (h *harness) waitTerminal(t *testing.T, workflowID string) *workflow.WorkflowStatus {
	t.Helper()
	return h.waitFor(t, workflowID, func(s *workflow.WorkflowStatus) bool { return s.Terminal() })
}

func (h *harness) waitFor(t *testing.T, workflowID string, done func(*workflow.WorkflowStatus) bool) *workflow.WorkflowStatus {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for {
		status, err := h.orch.GetStatus(context.Background(), workflowID)
		if err != nil {
			t.Fatalf("GetStatus failed: %v", err)
		}
		if done(status) {
			return status
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for workflow %s; last status %+v", workflowID, status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
}

func (r *recordingNotifier) NotifyWorkflowCompleted(_ context.Context, workflowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, workflowID)
	return nil
}

func (r *recordingNotifier) NotifyWorkflowFailed(_ context.Context, workflowID, stageName, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, workflowID+"@"+stageName+": "+reason)
	return nil
}

func (r *recordingNotifier) TestNotification(context.Context) error { return nil }

func (r *recordingNotifier) snapshot() (completed, failed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.completed...), append([]string(nil), r.failed...)
}

func stageState(status *workflow.WorkflowStatus, name string) workflow.StageStatus {
	for _, s := range status.Stages {
		if s.Stage == name {
			return s
		}
	}
	return workflow.StageStatus{}
}
