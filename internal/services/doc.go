// Package services defines shared utilities consumed by the stage transforms,
// worker pools, and the HTTP front-end.
//
// Key responsibilities:
//   - Context helpers that stamp workflow IDs, job IDs, stage names, worker
//     identifiers, and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failure reasons
//     classifiable after they have been flattened into queue state.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability) stays uniform across the pipeline.
package services
