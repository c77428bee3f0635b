// Package daemon coordinates the long-running dubflowd process.
//
// It wires configuration, the queue, the workflow manager, and the HTTP API
// into a single lifecycle with flock-based locking to prevent multiple
// instances sharing a state directory. Preflight checks run at start and are
// logged as warnings; their results are kept for the health endpoint.
//
// Keep orchestration logic here: stage transforms live in their own packages
// and the workflow package owns scheduling, while the daemon focuses on
// startup, shutdown ordering, and high level coordination.
package daemon
