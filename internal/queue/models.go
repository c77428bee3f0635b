package queue

import (
	"strings"
	"time"
)

// State represents the lifecycle of a stage job.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

var allStates = []State{StateWaiting, StateActive, StateCompleted, StateFailed}

// AllStates returns every job state in lifecycle order.
func AllStates() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// ParseState converts user input into a State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	for _, state := range allStates {
		if state == normalized {
			return state, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job is one schedulable unit of work for one stage of one workflow.
type Job struct {
	ID            string
	WorkflowID    string
	Stage         string
	Attempt       int
	State         State
	Progress      int
	Payload       []byte
	Result        []byte
	FailureReason string
	ClaimedBy     string
	NotBefore     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	HeartbeatAt   *time.Time
}

// Eligible reports whether a waiting job may be claimed at now.
func (j *Job) Eligible(now time.Time) bool {
	return j != nil && j.State == StateWaiting && !j.NotBefore.After(now)
}

// LastSeen returns the most recent sign of life for an active job.
func (j *Job) LastSeen() time.Time {
	if j.HeartbeatAt != nil && j.HeartbeatAt.After(j.UpdatedAt) {
		return *j.HeartbeatAt
	}
	return j.UpdatedAt
}

func (j *Job) clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Payload = cloneBytes(j.Payload)
	cp.Result = cloneBytes(j.Result)
	if j.HeartbeatAt != nil {
		hb := *j.HeartbeatAt
		cp.HeartbeatAt = &hb
	}
	return &cp
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// EnqueueRequest describes a new waiting job.
type EnqueueRequest struct {
	JobID      string
	WorkflowID string
	Stage      string
	Attempt    int
	Payload    []byte
	// NotBefore delays eligibility; the zero value means immediately.
	NotBefore time.Time
}

func (r EnqueueRequest) validate() error {
	if strings.TrimSpace(r.JobID) == "" {
		return errMissing("job id")
	}
	if strings.TrimSpace(r.Stage) == "" {
		return errMissing("stage")
	}
	return nil
}

func (r EnqueueRequest) newJob(now time.Time) *Job {
	notBefore := r.NotBefore
	if notBefore.IsZero() || notBefore.Before(now) {
		notBefore = now
	}
	attempt := r.Attempt
	if attempt < 1 {
		attempt = 1
	}
	return &Job{
		ID:         r.JobID,
		WorkflowID: r.WorkflowID,
		Stage:      r.Stage,
		Attempt:    attempt,
		State:      StateWaiting,
		Payload:    cloneBytes(r.Payload),
		NotBefore:  notBefore.UTC(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// HealthSummary aggregates queue counts for diagnostic output.
type HealthSummary struct {
	Total     int `json:"total"`
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Summarize folds per-state counts into a HealthSummary.
func Summarize(stats map[State]int) HealthSummary {
	var health HealthSummary
	for state, count := range stats {
		health.Total += count
		switch state {
		case StateWaiting:
			health.Waiting += count
		case StateActive:
			health.Active += count
		case StateCompleted:
			health.Completed += count
		case StateFailed:
			health.Failed += count
		}
	}
	return health
}

func clampProgress(progress int) int {
	switch {
	case progress < 0:
		return 0
	case progress > 100:
		return 100
	default:
		return progress
	}
}
