// Package logs tails the daemon log file for the /api/logs endpoint and the
// `dubflow logs` command.
//
// Offsets always point just past the last complete line, so a follow loop
// that feeds each result's Offset into the next call never splits or repeats
// a line.
package logs
