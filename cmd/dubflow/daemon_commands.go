package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dubflow/internal/api"
	"dubflow/internal/daemonctl"
)

const daemonBinary = "dubflowd"

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Control the dubflowd process",
	}

	var ephemeral bool
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Launch dubflowd in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), client, exe,
				daemonctl.LaunchOptions{ConfigPath: ctx.configPath(), Ephemeral: ephemeral},
				10*time.Second,
			)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	startCmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "Use the in-memory queue backend")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop dubflowd (in-flight jobs are marked failed and can be retried)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.Stop(cmd.Context(), ctx.configValue(), 15*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintf(stdout, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}

	var asJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon health, worker pools and queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				health, err := client.Health(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, health)
				}
				printHealth(cmd.OutOrStdout(), health)
				return nil
			})
		},
	}
	statusCmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	daemonCmd.AddCommand(startCmd, stopCmd, statusCmd)
	return daemonCmd
}

func printHealth(out io.Writer, health api.HealthView) {
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(out, line)
	}
	running := statusError
	detail := "stopped"
	if health.Running {
		running = statusOK
		detail = fmt.Sprintf("running (pid %d)", health.PID)
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", running, detail, colorize))
	fmt.Fprintln(out, renderStatusLine("Queue backend", statusInfo, health.Backend, colorize))
	if health.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusWarn, health.LastError, colorize))
	}
	for _, check := range health.Checks {
		kind := statusOK
		if !check.Passed {
			kind = statusWarn
		}
		fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Stages", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, h := range health.StageHealth {
		kind := statusOK
		message := "Ready"
		if !h.Ready {
			kind = statusError
			message = h.Detail
		}
		fmt.Fprintln(out, renderStatusLine(stageLabel(h.Name), kind, message, colorize))
	}
	if len(health.Pools) > 0 {
		rows := make([][]string, 0, len(health.Pools))
		for _, p := range health.Pools {
			rows = append(rows, []string{
				stageLabel(p.Stage),
				strconv.Itoa(p.Workers),
				strconv.Itoa(len(p.Busy)),
				strconv.FormatInt(p.Processed, 10),
				strconv.FormatInt(p.Failed, 10),
			})
		}
		fmt.Fprint(out, renderTable(
			[]string{"Pool", "Workers", "Busy", "Processed", "Failed"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
		))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Queue Status", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprint(out, renderTable([]string{"State", "Count"}, buildQueueStatsRows(health.QueueStats), []columnAlignment{alignLeft, alignRight}))

	if len(health.Schedule) > 0 {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Maintenance", colorize) {
			fmt.Fprintln(out, line)
		}
		rows := make([][]string, 0, len(health.Schedule))
		for _, task := range health.Schedule {
			rows = append(rows, []string{task.Name, task.Schedule, formatDisplayTime(task.LastRun), formatDisplayTime(task.NextRun), task.Result})
		}
		fmt.Fprint(out, renderTable(
			[]string{"Task", "Schedule", "Last run", "Next run", "Result"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
		))
	}
}

// daemonExecutable prefers a dubflowd binary installed beside this one.
func daemonExecutable() (string, error) {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), daemonBinary)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(daemonBinary)
	if err != nil {
		return "", fmt.Errorf("resolve %s executable: %w", daemonBinary, err)
	}
	return path, nil
}
