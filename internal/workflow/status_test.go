package workflow_test

import (
	"testing"

	"dubflow/internal/workflow"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name   string
		states []string
		want   string
	}{
		{"all pending", []string{"pending", "pending", "pending"}, workflow.OverallProcessing},
		{"first waiting", []string{"waiting", "pending", "pending"}, workflow.OverallProcessing},
		{"midway", []string{"completed", "active", "pending"}, workflow.OverallProcessing},
		{"extract failed", []string{"failed", "pending", "pending"}, workflow.OverallFailed},
		{"mix failed", []string{"completed", "completed", "failed"}, workflow.OverallFailed},
		{"failure wins over activity", []string{"completed", "failed", "active"}, workflow.OverallFailed},
		{"all completed", []string{"completed", "completed", "completed"}, workflow.OverallCompleted},
		{"empty", nil, workflow.OverallProcessing},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := workflow.Aggregate(tc.states); got != tc.want {
				t.Fatalf("Aggregate(%v) = %q, want %q", tc.states, got, tc.want)
			}
		})
	}
}

func TestWorkflowStatusTerminal(t *testing.T) {
	var nilStatus *workflow.WorkflowStatus
	if nilStatus.Terminal() {
		t.Fatal("nil status should not be terminal")
	}
	for overall, want := range map[string]bool{
		workflow.OverallProcessing: false,
		workflow.OverallCompleted:  true,
		workflow.OverallFailed:     true,
	} {
		status := &workflow.WorkflowStatus{Overall: overall}
		if status.Terminal() != want {
			t.Fatalf("Terminal() for %s = %v, want %v", overall, !want, want)
		}
	}
}
