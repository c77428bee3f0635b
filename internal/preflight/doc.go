// Package preflight provides readiness checks for the filesystem paths and
// queue backend dubflow depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs failures as warnings.
//   - The API health endpoint reports the same results alongside stage health.
package preflight
