package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dubflow/internal/api"
)

func newVoicesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List synthesis voices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				voices, err := client.Voices(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, voices)
				}
				rows := make([][]string, 0, len(voices))
				for _, v := range voices {
					rows = append(rows, []string{v.ID, v.Name, v.Language, yesNo(v.Default)})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Language", "Default"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newEstimateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "estimate <file|->",
		Short: "Estimate how long a text takes to speak",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			text = strings.TrimRight(text, "\r\n")
			return ctx.withClient(func(client *api.Client) error {
				estimate, err := client.Estimate(cmd.Context(), text)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d words, about %ds of speech\n", estimate.Words, estimate.Seconds)
				return nil
			})
		},
	}
}
