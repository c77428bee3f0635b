package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dubflow/internal/api"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

var titleCaser = cases.Title(language.English)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// stageLabel title-cases stage and state names for display.
func stageLabel(name string) string {
	return titleCaser.String(strings.ReplaceAll(name, "_", " "))
}

func workflowKind(status string) statusKind {
	switch status {
	case "completed":
		return statusOK
	case "failed":
		return statusError
	default:
		return statusInfo
	}
}

func buildStageRows(stages []api.StageView) [][]string {
	rows := make([][]string, 0, len(stages))
	for _, s := range stages {
		attempt := ""
		if s.Attempt > 0 {
			attempt = fmt.Sprintf("%d", s.Attempt)
		}
		rows = append(rows, []string{
			stageLabel(s.Stage),
			stageLabel(s.State),
			fmt.Sprintf("%d%%", s.Progress),
			attempt,
			formatDisplayTime(s.UpdatedAt),
			s.FailureReason,
		})
	}
	return rows
}

// watchLine renders one snapshot as a single progress line.
func watchLine(view api.WorkflowView) string {
	parts := make([]string, 0, len(view.Stages))
	for _, s := range view.Stages {
		part := s.Stage + "=" + s.State
		if s.State == "active" {
			part += fmt.Sprintf("(%d%%)", s.Progress)
		}
		parts = append(parts, part)
	}
	return fmt.Sprintf("[%3d%%] %-10s %s", view.Progress, view.Status, strings.Join(parts, " "))
}

func formatDisplayTime(value string) string {
	if value == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return parsed.Local().Format("2006-01-02 15:04:05")
}

func formatSeconds(seconds float64) string {
	return fmt.Sprintf("%.2fs", seconds)
}
