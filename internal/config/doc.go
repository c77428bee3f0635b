// Package config loads, normalizes, and validates dubflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads .env files, and honours DUBFLOW_*
// environment overrides such as DUBFLOW_API_TOKEN and DUBFLOW_QUEUE_DSN. The
// Config type centralizes every knob the daemon and CLI need, so queue
// backends, worker pool sizes, and the API surface are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
