package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dubflow/internal/api"
)

// followWait is the long-poll window for each follow request.
const followWait = 5 * time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines      int
		follow     bool
		workflowID string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon log output",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				query := api.LogQuery{Offset: -1, Lines: lines, WorkflowID: workflowID}
				for {
					resp, err := client.Logs(cmd.Context(), query)
					if err != nil {
						return err
					}
					for _, line := range resp.Lines {
						fmt.Fprintln(out, line)
					}
					if !follow {
						return nil
					}
					query.Offset = resp.Offset
					query.Wait = followWait
				}
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVarP(&workflowID, "workflow", "w", "", "Only show lines mentioning this workflow ID")
	return cmd
}
