package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"adrender/internal/models"
	"adrender/internal/repositories"
)

func newFormatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "formats <videoId>",
		Short: "Show the rendered format rows of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRepository(cmd.Context(), func(repo *repositories.VideoRepository) error {
				video, err := repo.GetVideo(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Video %s (%s)\n", video.ID, video.Status)
				printFormats(cmd.OutOrStdout(), video.Rendered)
				return nil
			})
		},
	}
}

func printFormats(out io.Writer, formats []models.RenderedFormat) {
	if len(formats) == 0 {
		fmt.Fprintln(out, "No formats rendered yet.")
		return
	}
	rows := make([][]string, 0, len(formats))
	for _, f := range formats {
		rows = append(rows, []string{f.Format, f.Status, f.URL, f.Error})
	}
	fmt.Fprintln(out, renderTable([]string{"Format", "Status", "URL", "Error"}, rows, nil))
}
