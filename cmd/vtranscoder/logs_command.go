package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"vtranscoder/internal/daemonrun"
	"vtranscoder/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the log of the latest run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.readConfig()
			if err != nil {
				return err
			}
			path := daemonrun.CurrentLogPath(cfg)
			if path == "" {
				return errors.New("no run log found; start vtranscoder first")
			}

			out := cmd.OutOrStdout()
			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	return cmd
}
