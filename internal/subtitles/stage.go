package subtitles

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"dubflow/internal/logging"
	"dubflow/internal/services"
	"dubflow/internal/stage"
)

// Request is the extract payload: the submitted workflow record.
type Request struct {
	WorkflowID string `json:"workflow_id"`
	Input      string `json:"input"`
	Voice      string `json:"voice,omitempty"`
}

// Result is the extract output consumed by the generate stage.
type Result struct {
	WorkflowID    string  `json:"workflow_id"`
	Voice         string  `json:"voice,omitempty"`
	Entries       []Entry `json:"entries"`
	Text          string  `json:"text"`
	TotalDuration float64 `json:"total_duration"`
}

// Extractor is the extract stage transform.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor constructs the extract transform.
func NewExtractor(logger *slog.Logger) *Extractor {
	e := &Extractor{}
	e.SetLogger(logger)
	return e
}

// SetLogger swaps the logger used for diagnostics.
func (e *Extractor) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	e.logger = logger.With(logging.String(logging.FieldComponent, "extract"))
}

func (e *Extractor) Name() string { return stage.Extract }

func (e *Extractor) Run(ctx context.Context, payload []byte, progress stage.ProgressFunc) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, services.Wrap(services.ErrValidation, stage.Extract, "decode payload", "Payload is not a workflow record", err)
	}
	if strings.TrimSpace(req.Input) == "" {
		return nil, services.Wrap(services.ErrValidation, stage.Extract, "parse", "Subtitle input is empty", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	progress(10)

	entries, err := Parse(req.Input)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stage.Extract, "parse", "Subtitle input is not valid SRT", err)
	}
	progress(80)

	result := Result{
		WorkflowID:    req.WorkflowID,
		Voice:         req.Voice,
		Entries:       entries,
		Text:          Text(entries),
		TotalDuration: TotalDuration(entries),
	}
	e.logger.Debug("subtitles parsed",
		logging.String(logging.FieldWorkflowID, req.WorkflowID),
		logging.Int("entries", len(entries)),
		logging.Float64("total_duration", result.TotalDuration),
	)
	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, stage.Extract, "encode result", "", err)
	}
	return encoded, nil
}

// HealthCheck reports ready; parsing has no external dependencies.
func (e *Extractor) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(stage.Extract)
}
