package speech

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnknownVoice is returned for voice identifiers outside Voices.
var ErrUnknownVoice = errors.New("unknown voice")

// DefaultVoice is used when a request names no voice.
const DefaultVoice = "default"

// wordsPerMinute is an average speaking rate.
const wordsPerMinute = 150

// Voice describes a selectable synthesis voice.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

var voices = []Voice{
	{ID: "default", Name: "Default Voice", Language: "en-US"},
	{ID: "male", Name: "Male Voice", Language: "en-US"},
	{ID: "female", Name: "Female Voice", Language: "en-US"},
}

// Voices lists the available voices.
func Voices() []Voice {
	out := make([]Voice, len(voices))
	copy(out, voices)
	return out
}

// LookupVoice resolves a voice id; blank resolves to DefaultVoice.
func LookupVoice(id string) (Voice, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		id = DefaultVoice
	}
	for _, voice := range voices {
		if voice.ID == id {
			return voice, nil
		}
	}
	return Voice{}, fmt.Errorf("%w: %q", ErrUnknownVoice, id)
}

// EstimateDuration returns the whole seconds needed to speak text. Words are
// counted by splitting on single spaces, so runs of spaces count as extra
// words.
func EstimateDuration(text string) int {
	words := len(strings.Split(text, " "))
	return int(math.Ceil(float64(words) / wordsPerMinute * 60))
}
