package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"adrender/internal/app"
	"adrender/internal/batch"
	"adrender/internal/render"
	"adrender/internal/repositories"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var (
		modeFlag  string
		batchFlag string
	)

	cmd := &cobra.Command{
		Use:   "render [videoId...]",
		Short: "Render videos in the foreground and print the outcome",
		Long: `Render every configured format of the given videos, or of every video in
a batch, in this process. Progress goes to stderr; a summary table goes to stdout.

Example:
  renderctl render vid_1 vid_2 --mode all
  renderctl render --batch batch_42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := render.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			if len(args) == 0 && strings.TrimSpace(batchFlag) == "" {
				return fmt.Errorf("give at least one video id or --batch")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log := ctx.logger(cmd.ErrOrStderr())
			if _, err := ctx.engine(log); err != nil {
				return err
			}
			sp, err := ctx.storage(cmd.Context())
			if err != nil {
				return err
			}

			return ctx.withRepository(cmd.Context(), func(repo *repositories.VideoRepository) error {
				p := app.NewPipeline(cfg, app.PipelineDeps{Store: repo, Storage: sp, Log: log})
				defer p.Tracker.Close()

				plan, err := p.Orchestrator.Plan(cmd.Context(), batch.Request{EntityIDs: args, BatchID: batchFlag, Mode: mode})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "job %s: %d videos, mode %s\n", plan.JobID, len(plan.EntityIDs), plan.Mode)

				sum, err := p.Orchestrator.RunBatch(cmd.Context(), plan)
				if err != nil {
					return err
				}
				printSummary(cmd.OutOrStdout(), sum)
				if sum.Failed > 0 {
					return fmt.Errorf("%d of %d videos failed", sum.Failed, len(sum.Items))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&modeFlag, "mode", "missing", "all re-renders every format, missing only what is not completed")
	cmd.Flags().StringVar(&batchFlag, "batch", "", "render every video of this batch")
	return cmd
}

func printSummary(out io.Writer, sum *batch.Summary) {
	rows := make([][]string, 0, len(sum.Items))
	for _, it := range sum.Items {
		var ok, failed, skipped string
		if it.Result != nil {
			ok = strconv.Itoa(len(it.Result.Succeeded))
			failed = strconv.Itoa(len(it.Result.Failed))
			skipped = strconv.Itoa(len(it.Result.Skipped))
		}
		rows = append(rows, []string{it.ID, it.Status, ok, failed, skipped, it.Error})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Video", "Status", "Rendered", "Failed", "Skipped", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))
	if sum.DownloadURL != "" {
		fmt.Fprintf(out, "Manifest: %s\n", sum.DownloadURL)
	}
}
