package workflow

import (
	"time"

	"dubflow/internal/queue"
	"dubflow/internal/stage"
)

// Overall workflow states.
const (
	OverallProcessing = "processing"
	OverallCompleted  = "completed"
	OverallFailed     = "failed"
)

// StatePending stands in for a stage job that has not been enqueued yet.
const StatePending = "pending"

// StageStatus is one stage's view inside a WorkflowStatus.
type StageStatus struct {
	Stage         string     `json:"stage"`
	JobID         string     `json:"job_id,omitempty"`
	Attempt       int        `json:"attempt,omitempty"`
	State         string     `json:"state"`
	Progress      int        `json:"progress"`
	FailureReason string     `json:"failure_reason,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// WorkflowStatus is the aggregated view returned to clients.
type WorkflowStatus struct {
	WorkflowID    string        `json:"workflow_id"`
	Overall       string        `json:"status"`
	Progress      int           `json:"progress"`
	Stages        []StageStatus `json:"stages"`
	FailedStage   string        `json:"failed_stage,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	SubmittedAt   time.Time     `json:"submitted_at"`
}

// Terminal reports whether the workflow will not change without a Retry.
func (s *WorkflowStatus) Terminal() bool {
	return s != nil && (s.Overall == OverallCompleted || s.Overall == OverallFailed)
}

// Aggregate folds per-stage states into the overall workflow state: failed
// if any stage failed, completed if every stage completed, otherwise
// processing.
func Aggregate(states []string) string {
	if len(states) == 0 {
		return OverallProcessing
	}
	allCompleted := true
	for _, state := range states {
		if state == string(queue.StateFailed) {
			return OverallFailed
		}
		if state != string(queue.StateCompleted) {
			allCompleted = false
		}
	}
	if allCompleted {
		return OverallCompleted
	}
	return OverallProcessing
}

func buildStatus(workflowID string, latest map[string]*queue.Job) *WorkflowStatus {
	order := stage.Order()
	status := &WorkflowStatus{WorkflowID: workflowID, Stages: make([]StageStatus, 0, len(order))}
	states := make([]string, 0, len(order))
	progressSum := 0
	for _, name := range order {
		job := latest[name]
		entry := StageStatus{Stage: name, State: StatePending}
		if job != nil {
			updated := job.UpdatedAt
			entry = StageStatus{
				Stage:         name,
				JobID:         job.ID,
				Attempt:       job.Attempt,
				State:         string(job.State),
				Progress:      job.Progress,
				FailureReason: job.FailureReason,
				UpdatedAt:     &updated,
			}
			if job.State == queue.StateFailed && status.FailedStage == "" {
				status.FailedStage = name
				status.FailureReason = job.FailureReason
			}
		}
		progressSum += entry.Progress
		states = append(states, entry.State)
		status.Stages = append(status.Stages, entry)
	}
	status.Overall = Aggregate(states)
	status.Progress = progressSum / len(order)
	return status
}

// submittedAt is the creation time of the first attempt of the first stage.
// Retries create later attempts and must not move it.
func submittedAt(jobs []*queue.Job) time.Time {
	var earliest *queue.Job
	for _, job := range jobs {
		if job.Stage != stage.First() {
			continue
		}
		if earliest == nil || job.Attempt < earliest.Attempt {
			earliest = job
		}
	}
	if earliest == nil {
		return time.Time{}
	}
	return earliest.CreatedAt
}
