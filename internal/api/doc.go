// Package api is dubflow's HTTP surface. It defines the wire-format types,
// converts workflow and queue models into them, serves the REST and
// websocket endpoints, and provides the client the CLI uses.
//
// # Key Types
//
// Server: routes /api/* requests to the workflow orchestrator and queue,
// with optional bearer authentication and a submission rate limiter.
// /api/logs long-polls the daemon log file through internal/logs.
//
// Client: typed HTTP client for the same endpoints, including Watch for the
// websocket status stream.
//
// WorkflowView, JobView, ResultView, HealthView: transport DTOs.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Queue states are exposed as lowercase
// strings and timestamps use RFC3339 with milliseconds. Errors map to status
// codes through their classification markers: validation is 400, not found
// is 404, a failed workflow is 409 and rejected submissions are 429.
package api
