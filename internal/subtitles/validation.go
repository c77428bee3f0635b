package subtitles

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	cueIDPattern  = regexp.MustCompile(`^[+-]?\d+`)
	timingPattern = regexp.MustCompile(`\d{2}:\d{2}:\d{2},\d{3} --> \d{2}:\d{2}:\d{2},\d{3}`)
)

const minSRTLines = 4

// Validate is the strict structural check offered to clients before
// submission: at least four lines, a numeric first line and a timing
// second line. The extract stage itself only requires Parse to succeed.
func Validate(content string) error {
	lines := strings.Split(strings.TrimSpace(strings.ReplaceAll(content, "\r\n", "\n")), "\n")
	if len(lines) < minSRTLines {
		return fmt.Errorf("%w: expected at least %d lines, got %d", ErrInvalidSRT, minSRTLines, len(lines))
	}
	if !cueIDPattern.MatchString(strings.TrimSpace(lines[0])) {
		return fmt.Errorf("%w: first line %q is not a cue number", ErrInvalidSRT, lines[0])
	}
	if !timingPattern.MatchString(lines[1]) {
		return fmt.Errorf("%w: second line %q is not a timing line", ErrInvalidSRT, lines[1])
	}
	return nil
}
