package mixing

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"dubflow/internal/fileutil"
	"dubflow/internal/services"
	"dubflow/internal/speech"
	"dubflow/internal/stage"
)

// Result is the mix output and the workflow's final result.
type Result struct {
	speech.Result
	MixedAudio string `json:"mixed_audio"`
	MixedBytes int64  `json:"mixed_bytes"`
}

func (m *Mixer) Name() string { return stage.Mix }

func (m *Mixer) Run(ctx context.Context, payload []byte, progress stage.ProgressFunc) ([]byte, error) {
	var in speech.Result
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, services.Wrap(services.ErrValidation, stage.Mix, "decode payload", "Payload is not a generate result", err)
	}
	if in.AudioPath == "" {
		return nil, services.Wrap(services.ErrValidation, stage.Mix, "decode payload", "Generate result has no audio artifact", nil)
	}
	progress(5)

	out, err := m.Mix(ctx, in.WorkflowID, in.AudioPath, func(p int) {
		// Keep headroom below 100 for the completion transition.
		progress(5 + p*90/100)
	})
	if err != nil {
		switch {
		case errors.Is(err, fileutil.ErrUnsafeName), errors.Is(err, speech.ErrInvalidWAV):
			return nil, services.Wrap(services.ErrValidation, stage.Mix, "mix", "Speech artifact is unusable", err)
		case errors.Is(err, os.ErrNotExist):
			return nil, services.Wrap(services.ErrNotFound, stage.Mix, "mix", "Speech artifact is missing", err)
		default:
			return nil, services.Wrap(services.ErrExternalTool, stage.Mix, "mix", "Mixing failed", err)
		}
	}

	encoded, err := json.Marshal(Result{Result: in, MixedAudio: out.Name, MixedBytes: out.Bytes})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, stage.Mix, "encode result", "", err)
	}
	return encoded, nil
}

// HealthCheck reports whether the artifact directory exists.
func (m *Mixer) HealthCheck(context.Context) stage.Health {
	info, err := os.Stat(m.dir)
	if err != nil {
		return stage.Unhealthy(stage.Mix, "artifact directory unavailable: "+err.Error())
	}
	if !info.IsDir() {
		return stage.Unhealthy(stage.Mix, "artifact path is not a directory")
	}
	return stage.Healthy(stage.Mix)
}
