// Command dubflowd runs the dubflow daemon: the work queue, the stage worker
// pools, the maintenance scheduler and the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dubflow/internal/config"
	"dubflow/internal/daemonrun"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:           "dubflowd",
		Short:         "Run the dubflow subtitle-to-speech daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.LogFormat, "log-format", "", "Override logging.format (auto, console, json)")
	cmd.Flags().StringVar(&opts.Bind, "bind", "", "Override api.bind")
	cmd.Flags().BoolVar(&opts.Ephemeral, "ephemeral", false, "Use the in-memory queue; nothing survives a restart")
	return cmd
}
