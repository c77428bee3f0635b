// Package speech implements the generate stage. It turns extracted subtitle
// text into an audio artifact under the configured artifact directory.
//
// The synthesizer renders silent PCM of the length a speaker would need for
// the text and is throttled like a metered synthesis backend would be.
package speech
