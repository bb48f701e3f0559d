// Command vtranscoderd runs the transcoding engine without the CLI, for
// service managers that expect a dedicated daemon binary.
package main

import (
	"log"

	"github.com/spf13/cobra"

	"vtranscoder/internal/config"
	"vtranscoder/internal/daemonrun"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		log.Fatalf("vtranscoderd: %v", err)
	}
}

func newCommand() *cobra.Command {
	var (
		configPath string
		opts       daemonrun.Options
	)
	cmd := &cobra.Command{
		Use:           "vtranscoderd",
		Short:         "vtranscoder engine daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, _, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, path, opts)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override the configured log level")
	return cmd
}
