// Package subtitles implements the extract stage: it parses submitted SRT
// text into timed entries and produces the plain text handed to speech
// synthesis.
package subtitles
