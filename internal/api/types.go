package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SubmitRequest is the JSON submission body. Plain text bodies are accepted
// as the SRT content directly.
type SubmitRequest struct {
	SRT   string `json:"srt" validate:"required"`
	Voice string `json:"voice,omitempty" validate:"omitempty,oneof=default male female"`
}

// SubmitResponse acknowledges an accepted workflow.
type SubmitResponse struct {
	WorkflowID string `json:"workflowId"`
}

// StageView describes one stage inside a WorkflowView.
type StageView struct {
	Stage         string `json:"stage"`
	JobID         string `json:"jobId,omitempty"`
	Attempt       int    `json:"attempt,omitempty"`
	State         string `json:"state"`
	Progress      int    `json:"progress"`
	FailureReason string `json:"failureReason,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

// WorkflowView is the aggregated workflow status.
type WorkflowView struct {
	WorkflowID    string      `json:"workflowId"`
	Status        string      `json:"status"`
	Progress      int         `json:"progress"`
	Stages        []StageView `json:"stages"`
	FailedStage   string      `json:"failedStage,omitempty"`
	FailureReason string      `json:"failureReason,omitempty"`
	SubmittedAt   string      `json:"submittedAt,omitempty"`
}

// Terminal reports whether the workflow reached completed or failed.
func (v WorkflowView) Terminal() bool {
	return v.Status == "completed" || v.Status == "failed"
}

// SubtitleEntry is one parsed subtitle block.
type SubtitleEntry struct {
	ID           string  `json:"id"`
	StartTime    string  `json:"startTime"`
	EndTime      string  `json:"endTime"`
	StartSeconds float64 `json:"startSeconds"`
	EndSeconds   float64 `json:"endSeconds"`
	Duration     float64 `json:"duration"`
	Text         string  `json:"text"`
}

// ResultView is the final workflow output.
type ResultView struct {
	WorkflowID        string          `json:"workflowId"`
	Voice             string          `json:"voice,omitempty"`
	Text              string          `json:"text"`
	TotalDuration     float64         `json:"totalDuration"`
	Entries           []SubtitleEntry `json:"entries"`
	AudioPath         string          `json:"audioPath"`
	AudioDuration     float64         `json:"audioDuration"`
	EstimatedDuration int             `json:"estimatedDuration"`
	MixedAudio        string          `json:"mixedAudio"`
	MixedBytes        int64           `json:"mixedBytes"`
}

// PendingResponse is returned while a workflow is still processing.
type PendingResponse struct {
	Status string `json:"status"`
}

// RetryResponse names the job enqueued by a retry.
type RetryResponse struct {
	WorkflowID string `json:"workflowId"`
	JobID      string `json:"jobId"`
}

// JobView describes a queue job in a transport-friendly format.
type JobView struct {
	ID            string `json:"id"`
	WorkflowID    string `json:"workflowId"`
	Stage         string `json:"stage"`
	Attempt       int    `json:"attempt"`
	State         string `json:"state"`
	Progress      int    `json:"progress"`
	FailureReason string `json:"failureReason,omitempty"`
	ClaimedBy     string `json:"claimedBy,omitempty"`
	PayloadBytes  int    `json:"payloadBytes"`
	ResultBytes   int    `json:"resultBytes"`
	CreatedAt     string `json:"createdAt,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
	HeartbeatAt   string `json:"heartbeatAt,omitempty"`
}

// QueueListResponse wraps a collection of jobs.
type QueueListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// QueueStatsResponse provides normalized queue counts.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// PurgeResponse reports how many jobs of finished workflows were removed.
type PurgeResponse struct {
	Removed int64 `json:"removed"`
}

// VoiceView describes a synthesis voice.
type VoiceView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Default  bool   `json:"default"`
}

// VoicesResponse lists available voices.
type VoicesResponse struct {
	Voices []VoiceView `json:"voices"`
}

// EstimateRequest asks for a speech duration estimate.
type EstimateRequest struct {
	Text string `json:"text" validate:"required"`
}

// EstimateResponse carries the estimate in whole seconds.
type EstimateResponse struct {
	Seconds int `json:"seconds"`
	Words   int `json:"words"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// PoolView summarizes one stage worker pool.
type PoolView struct {
	Stage     string   `json:"stage"`
	Workers   int      `json:"workers"`
	Busy      []string `json:"busy,omitempty"`
	Processed int64    `json:"processed"`
	Failed    int64    `json:"failed"`
}

// TaskView describes a scheduled maintenance task.
type TaskView struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	NextRun  string `json:"nextRun,omitempty"`
	LastRun  string `json:"lastRun,omitempty"`
	Result   string `json:"lastResult,omitempty"`
}

// CheckView mirrors a preflight check result.
type CheckView struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// HealthView aggregates daemon runtime information.
type HealthView struct {
	Running     bool           `json:"running"`
	PID         int            `json:"pid,omitempty"`
	Backend     string         `json:"backend"`
	LastError   string         `json:"lastError,omitempty"`
	QueueStats  map[string]int `json:"queueStats"`
	StageHealth []StageHealth  `json:"stageHealth"`
	Pools       []PoolView     `json:"pools"`
	Schedule    []TaskView     `json:"schedule,omitempty"`
	Checks      []CheckView    `json:"checks,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// LogTailResponse carries daemon log lines and the offset to resume from.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
