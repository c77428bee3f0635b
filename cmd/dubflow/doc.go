// Command dubflow is the client for the dubflow daemon.
//
// It submits subtitle files, polls or watches workflow status, fetches
// results, retries failed stages, inspects the work queue, and manages the
// configuration file and the daemon process. Every workflow command talks to
// the daemon's HTTP API; `config` and `test-notify` work offline.
package main
