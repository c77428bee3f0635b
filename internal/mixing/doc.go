// Package mixing implements the mix stage: it combines the synthesized
// speech artifact into the final deliverable with the configured gain.
package mixing
