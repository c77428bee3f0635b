package api

import (
	"strings"
	"time"

	"dubflow/internal/preflight"
	"dubflow/internal/queue"
	"dubflow/internal/speech"
	"dubflow/internal/workflow"
)

// FromWorkflowStatus converts an aggregated status to its API representation.
func FromWorkflowStatus(status *workflow.WorkflowStatus) WorkflowView {
	if status == nil {
		return WorkflowView{}
	}
	view := WorkflowView{
		WorkflowID:    status.WorkflowID,
		Status:        status.Overall,
		Progress:      status.Progress,
		Stages:        make([]StageView, 0, len(status.Stages)),
		FailedStage:   status.FailedStage,
		FailureReason: status.FailureReason,
		SubmittedAt:   formatTime(status.SubmittedAt),
	}
	for _, s := range status.Stages {
		stage := StageView{
			Stage:         s.Stage,
			JobID:         s.JobID,
			Attempt:       s.Attempt,
			State:         s.State,
			Progress:      s.Progress,
			FailureReason: s.FailureReason,
		}
		if s.UpdatedAt != nil {
			stage.UpdatedAt = formatTime(*s.UpdatedAt)
		}
		view.Stages = append(view.Stages, stage)
	}
	return view
}

// FromMixResult converts the final workflow result.
func FromMixResult(result *workflow.MixResult) ResultView {
	if result == nil {
		return ResultView{}
	}
	view := ResultView{
		WorkflowID:        result.WorkflowID,
		Voice:             result.Voice,
		Text:              result.Text,
		TotalDuration:     result.TotalDuration,
		Entries:           make([]SubtitleEntry, 0, len(result.Entries)),
		AudioPath:         result.AudioPath,
		AudioDuration:     result.AudioDuration,
		EstimatedDuration: result.EstimatedDuration,
		MixedAudio:        result.MixedAudio,
		MixedBytes:        result.MixedBytes,
	}
	for _, e := range result.Entries {
		view.Entries = append(view.Entries, SubtitleEntry{
			ID:           e.ID,
			StartTime:    e.StartTime,
			EndTime:      e.EndTime,
			StartSeconds: e.StartSeconds,
			EndSeconds:   e.EndSeconds,
			Duration:     e.Duration,
			Text:         e.Text,
		})
	}
	return view
}

// FromJob converts a queue job to its API representation.
func FromJob(job *queue.Job) JobView {
	if job == nil {
		return JobView{}
	}
	view := JobView{
		ID:            job.ID,
		WorkflowID:    job.WorkflowID,
		Stage:         job.Stage,
		Attempt:       job.Attempt,
		State:         string(job.State),
		Progress:      job.Progress,
		FailureReason: job.FailureReason,
		ClaimedBy:     job.ClaimedBy,
		PayloadBytes:  len(job.Payload),
		ResultBytes:   len(job.Result),
		CreatedAt:     formatTime(job.CreatedAt),
		UpdatedAt:     formatTime(job.UpdatedAt),
	}
	if job.HeartbeatAt != nil {
		view.HeartbeatAt = formatTime(*job.HeartbeatAt)
	}
	return view
}

// FromJobs converts a job slice, preserving order.
func FromJobs(jobs []*queue.Job) []JobView {
	out := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// MergeQueueStats normalizes per-state counts so every state is present.
func MergeQueueStats(stats map[queue.State]int) map[string]int {
	merged := make(map[string]int, len(queue.AllStates()))
	for _, state := range queue.AllStates() {
		merged[string(state)] = stats[state]
	}
	return merged
}

// FromVoices converts the voice catalogue, flagging the configured default.
func FromVoices(voices []speech.Voice, defaultVoice string) []VoiceView {
	out := make([]VoiceView, 0, len(voices))
	for _, v := range voices {
		out = append(out, VoiceView{
			ID:       v.ID,
			Name:     v.Name,
			Language: v.Language,
			Default:  strings.EqualFold(v.ID, defaultVoice),
		})
	}
	return out
}

// FromStatusSummary converts manager diagnostics into a HealthView.
func FromStatusSummary(summary workflow.StatusSummary) HealthView {
	view := HealthView{
		Running:   summary.Running,
		LastError: summary.LastError,
		QueueStats: map[string]int{
			string(queue.StateWaiting):   summary.QueueStats.Waiting,
			string(queue.StateActive):    summary.QueueStats.Active,
			string(queue.StateCompleted): summary.QueueStats.Completed,
			string(queue.StateFailed):    summary.QueueStats.Failed,
		},
		StageHealth: make([]StageHealth, 0, len(summary.StageHealth)),
		Pools:       make([]PoolView, 0, len(summary.Pools)),
	}
	for _, h := range summary.StageHealth {
		view.StageHealth = append(view.StageHealth, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	for _, p := range summary.Pools {
		view.Pools = append(view.Pools, PoolView{
			Stage:     p.Stage,
			Workers:   p.Workers,
			Busy:      p.Busy,
			Processed: p.Processed,
			Failed:    p.Failed,
		})
	}
	if summary.Schedule != nil {
		for _, task := range summary.Schedule.Tasks {
			tv := TaskView{Name: task.Name, Schedule: task.Schedule, Result: task.Result}
			if task.NextRun != nil {
				tv.NextRun = formatTime(*task.NextRun)
			}
			if task.LastRun != nil {
				tv.LastRun = formatTime(*task.LastRun)
			}
			view.Schedule = append(view.Schedule, tv)
		}
	}
	return view
}

// FromChecks converts preflight results.
func FromChecks(results []preflight.Result) []CheckView {
	out := make([]CheckView, 0, len(results))
	for _, r := range results {
		out = append(out, CheckView{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
