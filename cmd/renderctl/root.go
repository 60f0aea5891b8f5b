package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "renderctl",
		Short:         "Operate the adrender pipeline from a shell",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "TOML configuration file (defaults to $ADRENDER_CONFIG)")

	rootCmd.AddCommand(newRenderCommand(ctx))
	rootCmd.AddCommand(newFormatsCommand(ctx))
	rootCmd.AddCommand(newProbeCommand(ctx))
	rootCmd.AddCommand(newThumbnailCommand(ctx))
	rootCmd.AddCommand(newGeometryCommand())
	rootCmd.AddCommand(newSweepCommand(ctx))
	rootCmd.AddCommand(newGDriveAuthCommand(ctx))

	return rootCmd
}
