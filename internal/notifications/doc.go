// Package notifications publishes workflow outcomes to ntfy.
//
// NewService returns a no-op Service when no topic is configured, so callers
// never need to check whether notifications are enabled. Failures are sent
// with high priority; completions can be silenced with
// notifications.notify_success = false.
package notifications
