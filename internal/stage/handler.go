package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrTransformFailure marks every error produced while running a stage
	// transform, including recovered panics.
	ErrTransformFailure = errors.New("transform failure")
	// ErrUnknownStage is returned for names outside the pipeline.
	ErrUnknownStage = errors.New("unknown stage")
)

// ProgressFunc receives progress percentages (0-100) from a running transform.
type ProgressFunc func(percent int)

// Transform is the contract each stage implements. Run receives the job
// payload and returns the serialized result handed to the next stage.
type Transform interface {
	Name() string
	Run(ctx context.Context, payload []byte, progress ProgressFunc) ([]byte, error)
	HealthCheck(ctx context.Context) Health
}

// LoggerAware is implemented by transforms that accept a job-scoped logger.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

// Execute runs t and normalises its outcome: errors and panics come back
// wrapped in ErrTransformFailure. A nil progress func is allowed.
func Execute(ctx context.Context, t Transform, payload []byte, progress ProgressFunc) (result []byte, err error) {
	if t == nil {
		return nil, fmt.Errorf("%w: transform unavailable", ErrTransformFailure)
	}
	if progress == nil {
		progress = func(int) {}
	}
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %s panicked: %v", ErrTransformFailure, t.Name(), r)
		}
	}()
	result, err = t.Run(ctx, payload, progress)
	if err != nil {
		if errors.Is(err, ErrTransformFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrTransformFailure, err)
	}
	return result, nil
}
