package workflow

import (
	"errors"
	"fmt"

	"dubflow/internal/services"
)

var (
	// ErrUnknownWorkflow is returned when no extract job exists for an id.
	ErrUnknownWorkflow = fmt.Errorf("%w: unknown workflow", services.ErrNotFound)
	// ErrInvalidInput rejects submissions before anything is enqueued.
	ErrInvalidInput = fmt.Errorf("%w: invalid workflow input", services.ErrValidation)
	// ErrWorkflowFailed is returned by GetResult once a stage has failed.
	ErrWorkflowFailed = errors.New("workflow failed")
	// ErrNotRetryable is returned by Retry when no stage has failed.
	ErrNotRetryable = errors.New("workflow is not retryable")
)
