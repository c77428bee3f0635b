package subtitles

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidSRT is returned when content cannot be read as SRT.
var ErrInvalidSRT = errors.New("invalid SRT format")

// Entry is one timed subtitle cue.
type Entry struct {
	ID           string  `json:"id"`
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Text         string  `json:"text"`
	Duration     float64 `json:"duration"`
}

var blockSeparator = regexp.MustCompile(`\n[ \t]*\n`)

// Parse splits SRT content into entries. Blocks with fewer than three lines
// are skipped; a block with a malformed timing line fails the whole parse.
func Parse(content string) ([]Entry, error) {
	normalized := strings.TrimSpace(strings.ReplaceAll(content, "\r\n", "\n"))
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty content", ErrInvalidSRT)
	}

	var entries []Entry
	for idx, block := range blockSeparator.Split(normalized, -1) {
		lines := splitLines(block)
		if len(lines) < 3 {
			continue
		}
		entry, err := parseBlock(lines)
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %w", ErrInvalidSRT, idx+1, err)
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no subtitle blocks found", ErrInvalidSRT)
	}
	return entries, nil
}

func parseBlock(lines []string) (Entry, error) {
	start, end, err := parseTiming(lines[1])
	if err != nil {
		return Entry{}, err
	}
	startSeconds, err := parseSRTTimestamp(start)
	if err != nil {
		return Entry{}, err
	}
	endSeconds, err := parseSRTTimestamp(end)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:           lines[0],
		StartTime:    start,
		EndTime:      end,
		StartSeconds: startSeconds,
		EndSeconds:   endSeconds,
		Text:         norm.NFC.String(strings.Join(lines[2:], " ")),
		Duration:     roundMillis(endSeconds - startSeconds),
	}, nil
}

// Text joins entry texts with single spaces.
func Text(entries []Entry) string {
	parts := make([]string, 0, len(entries))
	for _, entry := range entries {
		parts = append(parts, entry.Text)
	}
	return strings.Join(parts, " ")
}

// TotalDuration is the end time of the last entry, or 0 without entries.
func TotalDuration(entries []Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].EndSeconds
}

func splitLines(block string) []string {
	raw := strings.Split(block, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

func parseTiming(line string) (string, string, error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid timing line %q", line)
	}
	start := strings.TrimSpace(parts[0])
	// Positioning hints may follow the end timestamp.
	endFields := strings.Fields(parts[1])
	if start == "" || len(endFields) == 0 {
		return "", "", fmt.Errorf("invalid timing line %q", line)
	}
	return start, endFields[0], nil
}

func parseSRTTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	// Normalize period to comma (SRT standard uses comma for milliseconds)
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}

func roundMillis(seconds float64) float64 {
	return math.Round(seconds*1000) / 1000
}
