package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"dubflow/internal/api"
	"dubflow/internal/subtitles"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var voice string
	var wait bool
	var strict bool

	cmd := &cobra.Command{
		Use:   "submit <file|->",
		Short: "Submit an SRT file for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			if strict {
				if err := subtitles.Validate(content); err != nil {
					return err
				}
			}
			return ctx.withClient(func(client *api.Client) error {
				id, err := client.Submit(cmd.Context(), content, voice)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Workflow %s submitted\n", id)
				if !wait {
					return nil
				}
				final, err := client.Watch(cmd.Context(), id, func(view api.WorkflowView) {
					fmt.Fprintln(out, watchLine(view))
				})
				if err != nil {
					return err
				}
				return finishWatch(cmd, client, final)
			})
		},
	}
	cmd.Flags().StringVar(&voice, "voice", "", "Synthesis voice (default, male, female)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Watch the workflow until it completes or fails")
	cmd.Flags().BoolVar(&strict, "strict", false, "Reject files that fail the structural SRT check before submitting")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <workflow-id>",
		Short: "Show the aggregated status of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				view, err := client.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, view)
				}
				printWorkflow(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newResultCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "result <workflow-id>",
		Short: "Show the final result of a completed workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				result, err := client.Result(cmd.Context(), args[0])
				if errors.Is(err, api.ErrNotReady) {
					fmt.Fprintf(cmd.OutOrStdout(), "Workflow %s is still processing\n", args[0])
					return nil
				}
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				printResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <workflow-id>",
		Short: "Stream workflow progress until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				final, err := client.Watch(cmd.Context(), args[0], func(view api.WorkflowView) {
					fmt.Fprintln(out, watchLine(view))
				})
				if err != nil {
					return err
				}
				return finishWatch(cmd, client, final)
			})
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <workflow-id>",
		Short: "Re-run the failed stage of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Retry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Workflow %s retrying as job %s\n", resp.WorkflowID, resp.JobID)
				return nil
			})
		},
	}
}

// finishWatch prints the outcome of a watch and turns a failed workflow into
// a command error.
func finishWatch(cmd *cobra.Command, client *api.Client, final api.WorkflowView) error {
	out := cmd.OutOrStdout()
	switch final.Status {
	case "completed":
		result, err := client.Result(cmd.Context(), final.WorkflowID)
		if err != nil {
			return err
		}
		printResult(out, result)
		return nil
	case "failed":
		return fmt.Errorf("workflow %s failed at %s: %s", final.WorkflowID, final.FailedStage, final.FailureReason)
	default:
		fmt.Fprintf(out, "Watch ended while workflow %s was %s\n", final.WorkflowID, final.Status)
		return nil
	}
}

func printWorkflow(out io.Writer, view api.WorkflowView) {
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Workflow "+view.WorkflowID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Status", workflowKind(view.Status), fmt.Sprintf("%s (%d%%)", stageLabel(view.Status), view.Progress), colorize))
	if view.SubmittedAt != "" {
		fmt.Fprintln(out, renderStatusLine("Submitted", statusInfo, formatDisplayTime(view.SubmittedAt), colorize))
	}
	if view.FailedStage != "" {
		fmt.Fprintln(out, renderStatusLine("Failed stage", statusError, stageLabel(view.FailedStage)+": "+view.FailureReason, colorize))
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, renderTable(
		[]string{"Stage", "State", "Progress", "Attempt", "Updated", "Detail"},
		buildStageRows(view.Stages),
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	))
}

func printResult(out io.Writer, result api.ResultView) {
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Result "+result.WorkflowID, colorize) {
		fmt.Fprintln(out, line)
	}
	voice := result.Voice
	if voice == "" {
		voice = "default"
	}
	fmt.Fprintln(out, renderStatusLine("Voice", statusInfo, voice, colorize))
	fmt.Fprintln(out, renderStatusLine("Subtitle duration", statusInfo, formatSeconds(result.TotalDuration), colorize))
	fmt.Fprintln(out, renderStatusLine("Speech estimate", statusInfo, fmt.Sprintf("%ds", result.EstimatedDuration), colorize))
	fmt.Fprintln(out, renderStatusLine("Audio", statusOK, fmt.Sprintf("%s (%s)", result.AudioPath, formatSeconds(result.AudioDuration)), colorize))
	fmt.Fprintln(out, renderStatusLine("Mixed audio", statusOK, fmt.Sprintf("%s (%s)", result.MixedAudio, humanize.IBytes(uint64(max(result.MixedBytes, 0)))), colorize))
	fmt.Fprintln(out, renderStatusLine("Text", statusInfo, result.Text, colorize))
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(result.Entries))
	for _, e := range result.Entries {
		rows = append(rows, []string{e.ID, e.StartTime, e.EndTime, formatSeconds(e.Duration), e.Text})
	}
	fmt.Fprint(out, renderTable(
		[]string{"#", "Start", "End", "Duration", "Text"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	))
}

// readInput reads a file argument, with "-" meaning stdin.
func readInput(cmd *cobra.Command, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", arg, err)
	}
	return string(data), nil
}
