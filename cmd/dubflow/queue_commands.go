package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dubflow/internal/api"
	"dubflow/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueuePurgeCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStates []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range listStates {
				if _, ok := queue.ParseState(s); !ok {
					return fmt.Errorf("unknown state %q (want waiting, active, completed or failed)", s)
				}
			}
			return ctx.withClient(func(client *api.Client) error {
				jobs, err := client.Queue(cmd.Context(), listStates...)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, jobs)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Job", "Stage", "Attempt", "State", "Progress", "Updated", "Failure"},
					buildQueueListRows(jobs),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&listStates, "state", "s", nil, "Filter by state (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts per state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				stats, err := client.QueueStats(cmd.Context())
				if err != nil {
					return err
				}
				rows := buildQueueStatsRows(stats.Counts)
				if stats.Total == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				rows = append(rows, []string{"Total", strconv.Itoa(stats.Total)})
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueuePurgeCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove finished workflows",
		Long:  "Remove every job of completed or failed workflows last updated before --older-than. Workflows still processing are kept whole. Without the flag the daemon's queue.retention_hours applies.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("older-than") {
				olderThan = -1
			} else if olderThan < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}
			return ctx.withClient(func(client *api.Client) error {
				removed, err := client.Purge(cmd.Context(), olderThan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s)\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only purge workflows older than this (e.g. 24h, 0 for all finished)")
	return cmd
}

func buildQueueListRows(jobs []api.JobView) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			stageLabel(job.Stage),
			strconv.Itoa(job.Attempt),
			stageLabel(job.State),
			fmt.Sprintf("%d%%", job.Progress),
			formatDisplayTime(job.UpdatedAt),
			job.FailureReason,
		})
	}
	return rows
}

func buildQueueStatsRows(counts map[string]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, state := range queue.AllStates() {
		rows = append(rows, []string{stageLabel(string(state)), strconv.Itoa(counts[string(state)])})
	}
	return rows
}
