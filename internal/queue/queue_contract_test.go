package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"dubflow/internal/queue"
	"dubflow/internal/testsupport"
)

var embeddedBackends = []string{queue.BackendSQLite, queue.BackendBadger, queue.BackendMemory}

func forEachBackend(t *testing.T, fn func(t *testing.T, q queue.Queue)) {
	t.Helper()
	for _, backend := range embeddedBackends {
		t.Run(backend, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, testsupport.WithBackend(backend))
			fn(t, testsupport.MustOpenQueue(t, cfg))
		})
	}
}

func mustEnqueue(t *testing.T, q queue.Queue, id, stage string) *queue.Job {
	t.Helper()
	job, err := q.Enqueue(context.Background(), queue.EnqueueRequest{
		JobID:      id,
		WorkflowID: "wf-" + id,
		Stage:      stage,
		Payload:    []byte(`{"input":"` + id + `"}`),
	})
	if err != nil {
		t.Fatalf("Enqueue %s: %v", id, err)
	}
	return job
}

func mustClaim(t *testing.T, q queue.Queue, stage string) *queue.Job {
	t.Helper()
	job, err := q.Claim(context.Background(), stage, "worker-test")
	if err != nil {
		t.Fatalf("Claim %s: %v", stage, err)
	}
	if job == nil {
		t.Fatalf("Claim %s returned no job", stage)
	}
	return job
}

func TestEnqueueStoresWaitingJob(t *testing.T) {
	forEachBackend(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		created := mustEnqueue(t, q, "a:extract", "extract")
		if created.State != queue.StateWaiting || created.Attempt != 1 {
			t.Fatalf("unexpected created job: %#v", created)
		}

		got, err := q.Get(ctx, "a:extract")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got == nil {
			t.Fatal("expected job to exist")
		}
		if got.Stage != "extract" || got.WorkflowID != "wf-a:extract" || string(got.Payload) != `{"input":"a:extract"}` {
			t.Fatalf("unexpected stored job: %#v", got)
		}
		if got.CreatedAt.IsZero() || got.NotBefore.IsZero() {
			t.Fatalf("expected timestamps to be set: %#v", got)
		}
	})
}

func TestEnqueueRejectsDuplicateID(t *testing.T) {
	forEachBackend(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		mustEnqueue(t, q, "dup", "extract")
		_, err := q.Enqueue(ctx, queue.EnqueueRequest{JobID: "dup", Stage: "extract", Payload: []byte("other")})
		if !errors.Is(err, queue.ErrDuplicateJobID) {
			t.Fatalf("expected ErrDuplicateJobID, got %v", err)
		}
		got, err := q.Get(ctx, "dup")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got.Payload) != `{"input":"dup"}` {
			t.Fatalf("duplicate enqueue overwrote payload: %q", got.Payload)
		}
	})
}

func TestEnqueueRequiresIDAndStage(t *testing.T) {
	forEachBackend(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		if _, err := q.Enqueue(ctx, queue.EnqueueRequest{Stage: "extract"}); err == nil {
			t.Fatal("expected error for missing job id")
		}
		if _, err := q.Enqueue(ctx, queue.EnqueueRequest{JobID: "x"}); err == nil {
			t.Fatal("expected error for missing stage")
		}
	})
}

func TestGetMissingReturnsNil(t *testing.T) {
	forEachBackend(t, func(t *testing.T, q queue.Queue) {
		job, err := q.Get(context.Background(), "missing")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if job != nil {
			t.Fatalf("expected nil job, got %#v", job)
		}
	})
}

func TestClaimOldestEligibleForStage(t *testing.T) {
	forEachBackend(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		mustEnqueue(t, q, "first", "extract")
		mustEnqueue(t, q, "other-stage", "mix")
		mustEnqueue(t, q, "second", "extract")

		job := mustClaim(t, q, "extract")
		if job.ID != "first" {
			t.Fatalf("expected oldest job first, got %s", job.ID)
		}
		if job.State != queue.StateActive || job.ClaimedBy != "worker-test" || job.HeartbeatAt == nil {
			t.Fatalf("unexpected claimed job: %#v", job)
		}

		next := mustClaim(t, q, "extract")
		if next.ID != "second" {
			t.Fatalf("expected second job, got %s", next.ID)
		}
		none, err := q.Claim(ctx, "extract", "worker-test")
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if none != nil {
			t.Fatalf("expected no eligible job, got %#v", none)
		}
	})
}

func TestClaimSkipsFutureNotBefore(t *testing.T) {
	forEachBackend(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		_, err := q.Enqueue(ctx, queue.EnqueueRequest{
			JobID:     "later",
			Stage:     "generate",
			NotBefore: time.Now().Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		job, err := q.Claim(ctx, "generate", "w")
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if job != nil {
			t.Fatalf("expected delayed job to stay waiting, got %#v", job)
		}
	})
}

func TestClaimIsExclusiveUnderConcurrency(t *testing.T) {
	forEachBackend(t, func(t *testing.T, q queue.Queue) {
		const jobs = 20
		const workers = 8
		for i := 0; i < jobs; i++ {
			mustEnqueue(t, q, fmt.Sprintf("job-%02d", i), "extract")
		}

		var (
			mu      sync.Mutex
			claimed = make(map[string]int)
			wg      sync.WaitGroup
		)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(worker int) {
				defer wg.Done()
				for {
					job, err := q.Claim(context.Background(), "extract", fmt.Sprintf("w%d", worker))
					if err != nil {
						t.Errorf("Claim: %v", err)
						return
					}
					if job == nil {
						return
					}
					mu.Lock()
					claimed[job.ID]++
					mu.Unlock()
				}
			}(w)
		}
		wg.Wait()

		if len(claimed) != jobs {
			t.Fatalf("expected %d distinct claims, got %d", jobs, len(claimed))
		}
		for id, count := range claimed {
			if count != 1 {
				t.Fatalf("job %s claimed %d times", id, count)
			}
		}
	})
}

func TestProgressIsClampedAndMonotonic(t *testing.T) {
	forEachBackend(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		mustEnqueue(t, q, "p", "generate")

		// Progress before claim is ignored.
		if err := q.ReportProgress(ctx, "p", 40); err != nil {
			t.Fatalf("ReportProgress: %v", err)
		}
		mustClaim(t, q, "generate")

		steps := []struct {
			report int
			want   int
		}{
			{report: 30, want: 30},
			{report: 10, want: 30},
			{report: 250, want: 100},
			{report: -5, want: 100},
		}
		for _, step := range steps {
			if err := q.ReportProgress(ctx, "p", step.report); err != nil {
				t.Fatalf("ReportProgress(%d): %v", step.report, err)
			}
			got, err := q.Get(ctx, "p")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Progress != step.want {
				t.Fatalf("after report %d expected %d, got %d", step.report, step.want, got.Progress)
			}
		}
	})
}

func TestCompleteAndFailRequireActive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		mustEnqueue(t, q, "c", "mix")

		if err := q.Complete(ctx, "c", []byte("early")); !errors.Is(err, queue.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition for waiting job, got %v", err)
		}
		mustClaim(t, q, "mix")
		if err := q.Complete(ctx, "c", []byte(`{"ok":true}`)); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		got, err := q.Get(ctx, "c")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.State != queue.StateCompleted || got.Progress != 100 || string(got.Result) != `{"ok":true}` {
			t.Fatalf("unexpected completed job: %#v", got)
		}
		if err := q.Fail(ctx, "c", "late"); !errors.Is(err, queue.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition for completed job, got %v", err)
		}
		if err := q.Complete(ctx, "c", []byte("again")); !errors.Is(err, queue.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition on second complete, got %v", err)
		}
	})
}

func TestFailRecordsReason(t *testing.T) {
	forEachBackend(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		mustEnqueue(t, q, "f", "extract")
		mustClaim(t, q, "extract")
		if err := q.Fail(ctx, "f", "invalid srt"); err != nil {
			t.Fatalf("Fail: %v", err)
		}
		got, err := q.Get(ctx, "f")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.State != queue.StateFailed || got.FailureReason != "invalid srt" || got.Result != nil {
			t.Fatalf("unexpected failed job: %#v", got)
		}
	})
}

func TestTransitionOnUnknownJob(t *testing.T) {
	forEachBackend(t, func(t *testing.T, q queue.Queue) {
		err := q.Complete(context.Background(), "ghost", nil)
		if !errors.Is(err, queue.ErrJobNotFound) {
			t.Fatalf("expected ErrJobNotFound, got %v", err)
		}
		if !errors.Is(err, queue.ErrInvalidTransition) {
			t.Fatalf("expected ErrJobNotFound to match ErrInvalidTransition, got %v", err)
		}
	})
}

func TestListStatsAndPurge(t *testing.T) {
	forEachBackend(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		for _, id := range []string{"w1", "w2", "w3"} {
			_, err := q.Enqueue(ctx, queue.EnqueueRequest{JobID: id, WorkflowID: "wf", Stage: "extract"})
			if err != nil {
				t.Fatalf("Enqueue %s: %v", id, err)
			}
		}
		mustClaim(t, q, "extract")
		if err := q.Complete(ctx, "w1", []byte("{}")); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		mustClaim(t, q, "extract")

		byWorkflow, err := q.ListByWorkflow(ctx, "wf")
		if err != nil {
			t.Fatalf("ListByWorkflow: %v", err)
		}
		if len(byWorkflow) != 3 || byWorkflow[0].ID != "w1" || byWorkflow[2].ID != "w3" {
			t.Fatalf("unexpected workflow listing: %d jobs", len(byWorkflow))
		}

		active, err := q.ListByState(ctx, queue.StateActive)
		if err != nil {
			t.Fatalf("ListByState: %v", err)
		}
		if len(active) != 1 || active[0].ID != "w2" {
			t.Fatalf("unexpected active listing: %#v", active)
		}

		stats, err := q.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		want := map[queue.State]int{queue.StateWaiting: 1, queue.StateActive: 1, queue.StateCompleted: 1}
		for state, count := range want {
			if stats[state] != count {
				t.Fatalf("stats[%s] = %d, want %d (all %v)", state, stats[state], count, stats)
			}
		}

		removed, err := q.PurgeWorkflow(ctx, "wf", time.Now().Add(time.Minute))
		if err != nil {
			t.Fatalf("PurgeWorkflow: %v", err)
		}
		if removed != 0 {
			t.Fatalf("workflow with live jobs must not be purged, removed %d", removed)
		}
		if job, _ := q.Get(ctx, "w1"); job == nil {
			t.Fatal("completed job of a live workflow must survive purge")
		}
	})
}

func TestPurgeWorkflowRemovesOnlyFinishedWorkflows(t *testing.T) {
	forEachBackend(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		enqueue := func(id, workflowID, stage string) {
			t.Helper()
			if _, err := q.Enqueue(ctx, queue.EnqueueRequest{JobID: id, WorkflowID: workflowID, Stage: stage}); err != nil {
				t.Fatalf("Enqueue %s: %v", id, err)
			}
		}
		finish := func(stage string) {
			t.Helper()
			job := mustClaim(t, q, stage)
			if err := q.Complete(ctx, job.ID, []byte("{}")); err != nil {
				t.Fatalf("Complete %s: %v", job.ID, err)
			}
		}

		// "done" ran both stages; "mid" finished extract and waits on generate.
		enqueue("done:extract", "done", "extract")
		finish("extract")
		enqueue("done:generate", "done", "generate")
		finish("generate")
		enqueue("mid:extract", "mid", "extract")
		finish("extract")
		enqueue("mid:generate", "mid", "generate")

		cutoff := time.Now().Add(time.Minute)
		removed, err := q.PurgeWorkflow(ctx, "mid", cutoff)
		if err != nil {
			t.Fatalf("PurgeWorkflow mid: %v", err)
		}
		if removed != 0 {
			t.Fatalf("mid-flight workflow purged %d jobs", removed)
		}
		for _, id := range []string{"mid:extract", "mid:generate"} {
			if job, _ := q.Get(ctx, id); job == nil {
				t.Fatalf("%s must survive purge of a mid-flight workflow", id)
			}
		}

		removed, err = q.PurgeWorkflow(ctx, "done", time.Now().Add(-time.Hour))
		if err != nil {
			t.Fatalf("PurgeWorkflow before cutoff: %v", err)
		}
		if removed != 0 {
			t.Fatalf("workflow newer than cutoff purged %d jobs", removed)
		}

		removed, err = q.PurgeWorkflow(ctx, "done", cutoff)
		if err != nil {
			t.Fatalf("PurgeWorkflow done: %v", err)
		}
		if removed != 2 {
			t.Fatalf("expected 2 purged jobs, got %d", removed)
		}
		jobs, err := q.ListByWorkflow(ctx, "done")
		if err != nil {
			t.Fatalf("ListByWorkflow: %v", err)
		}
		if len(jobs) != 0 {
			t.Fatalf("expected finished workflow to be gone, %d jobs left", len(jobs))
		}
	})
}

func TestWakeupsSignalOnEnqueue(t *testing.T) {
	forEachBackend(t, func(t *testing.T, q queue.Queue) {
		wake := q.Wakeups("generate")
		mustEnqueue(t, q, "wake", "generate")
		select {
		case <-wake:
		case <-time.After(time.Second):
			t.Fatal("expected wakeup after enqueue")
		}
	})
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBackend("redis"))
	if _, err := queue.Open(cfg); !errors.Is(err, queue.ErrUnsupportedBackend) {
		t.Fatalf("expected ErrUnsupportedBackend, got %v", err)
	}
}
