package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vtranscoder/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the transcoding engine in the foreground",
		Long: "Run the transcoding engine until interrupted or until `vtranscoder stop` is used.\n" +
			"The configuration is reread on every pass, so edits apply without a restart.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := ctx.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, path, opts)
		},
	}

	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.Development, "development", false, "Include source locations in log output")
	cmd.Flags().BoolVar(&opts.Quiet, "quiet", false, "Write logs only to the run log file")
	return cmd
}
