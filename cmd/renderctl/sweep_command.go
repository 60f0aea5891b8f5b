package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"adrender/internal/workspace"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var (
		root   string
		maxAge time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove abandoned render workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if root == "" {
				root = cfg.Render.WorkspaceRoot
			}
			if maxAge <= 0 {
				maxAge = cfg.Render.StaleWorkspaceAge.Duration
			}

			res := workspace.CleanStale(root, maxAge, ctx.logger(cmd.ErrOrStderr()))
			out := cmd.OutOrStdout()
			for _, dir := range res.Removed {
				fmt.Fprintf(out, "removed %s\n", dir)
			}
			fmt.Fprintf(out, "%d removed, %d in use or recent, %d errors\n", len(res.Removed), len(res.Skipped), len(res.Errors))
			if len(res.Errors) > 0 {
				return res.Errors[0]
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "workspace root (defaults to the configured one)")
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "minimum age of a workspace to remove")
	return cmd
}
