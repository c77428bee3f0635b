// Package workflow turns one submitted subtitle file into the ordered
// extract, generate and mix stage jobs and drives them through the queue.
//
// The Orchestrator is the client-facing half: Submit enqueues the first
// stage and returns immediately, Advance chains the next stage when a
// stage completes, and GetStatus/GetResult derive workflow state from the
// queue on every call. Nothing is cached here; the queue is the only
// shared mutable state.
//
// Pools are the worker half. Each stage has its own pool of goroutines that
// claim jobs, run the stage transform, heartbeat while it runs and record
// the outcome. The Manager starts the pools alongside a cron scheduler that
// fails jobs whose heartbeats stopped and sweeps old jobs and artifacts.
// Pools report finished and failed workflows to the notifier passed with
// WithNotifier.
//
// Ordering is completion-triggered only: a stage job is enqueued by Advance
// after its predecessor completed, never ahead of time and never on a
// timer. A failed stage blocks the rest of the workflow until a caller
// explicitly asks for Retry.
package workflow
