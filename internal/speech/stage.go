package speech

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"

	"dubflow/internal/logging"
	"dubflow/internal/services"
	"dubflow/internal/stage"
	"dubflow/internal/subtitles"
)

// Result is the generate output: the extract result plus the audio artifact.
type Result struct {
	subtitles.Result
	AudioPath         string  `json:"audio_path"`
	AudioDuration     float64 `json:"audio_duration"`
	EstimatedDuration int     `json:"estimated_duration"`
}

// Generator is the generate stage transform.
type Generator struct {
	synth        *Synthesizer
	defaultVoice string
	logger       *slog.Logger
}

// NewGenerator wraps a synthesizer as a stage transform.
func NewGenerator(synth *Synthesizer, defaultVoice string, logger *slog.Logger) *Generator {
	g := &Generator{synth: synth, defaultVoice: defaultVoice}
	g.SetLogger(logger)
	return g
}

// SetLogger swaps the logger used for diagnostics.
func (g *Generator) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	g.logger = logger.With(logging.String(logging.FieldComponent, "generate"))
}

func (g *Generator) Name() string { return stage.Generate }

func (g *Generator) Run(ctx context.Context, payload []byte, progress stage.ProgressFunc) ([]byte, error) {
	var in subtitles.Result
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, services.Wrap(services.ErrValidation, stage.Generate, "decode payload", "Payload is not an extract result", err)
	}
	voice := in.Voice
	if strings.TrimSpace(voice) == "" {
		voice = g.defaultVoice
	}
	progress(10)

	artifact, err := g.synth.Synthesize(ctx, Request{WorkflowID: in.WorkflowID, Text: in.Text, Voice: voice})
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownVoice):
			return nil, services.Wrap(services.ErrValidation, stage.Generate, "synthesize", "Requested voice is not available", err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, services.Wrap(services.ErrTimeout, stage.Generate, "synthesize", "Synthesis interrupted", err)
		default:
			return nil, services.Wrap(services.ErrExternalTool, stage.Generate, "synthesize", "Speech synthesis failed", err)
		}
	}
	progress(90)

	in.Voice = artifact.Voice
	out := Result{
		Result:            in,
		AudioPath:         artifact.Name,
		AudioDuration:     artifact.Duration,
		EstimatedDuration: EstimateDuration(in.Text),
	}
	g.logger.Info("audio generated",
		logging.String(logging.FieldWorkflowID, in.WorkflowID),
		logging.String("audio_path", artifact.Name),
		logging.Float64("audio_duration", artifact.Duration),
	)
	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, stage.Generate, "encode result", "", err)
	}
	return encoded, nil
}

// HealthCheck verifies the artifact directory is writable.
func (g *Generator) HealthCheck(context.Context) stage.Health {
	probe, err := os.CreateTemp(g.synth.dir, ".healthcheck-*")
	if err != nil {
		return stage.Unhealthy(stage.Generate, "artifact directory not writable: "+err.Error())
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return stage.Healthy(stage.Generate)
}
