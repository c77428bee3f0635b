package testsupport

import (
	"testing"

	"dubflow/internal/config"
	"dubflow/internal/queue"
)

// MustOpenQueue opens the configured queue backend and registers cleanup.
func MustOpenQueue(t testing.TB, cfg *config.Config) queue.Queue {
	t.Helper()

	q, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = q.Close()
	})
	return q
}
