package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"adrender/internal/media"
	"adrender/internal/render"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "Print the streams and duration of a media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.engine(ctx.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			meta, err := engine.Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printProbe(cmd.OutOrStdout(), meta)
			return nil
		},
	}
}

func printProbe(out io.Writer, meta *media.Metadata) {
	fmt.Fprintf(out, "Container: %s\n", meta.Format.FormatName)
	fmt.Fprintf(out, "Duration: %.2fs\n", meta.DurationSeconds())
	if size := meta.Dimensions(); size.Width > 0 {
		fmt.Fprintf(out, "Video: %s\n", media.FormatLabel(size))
	}

	rows := make([][]string, 0, len(meta.Streams))
	for _, s := range meta.Streams {
		dims := ""
		if s.Width > 0 {
			dims = strconv.Itoa(s.Width) + "x" + strconv.Itoa(s.Height)
		}
		rows = append(rows, []string{strconv.Itoa(s.Index), s.CodecType, s.CodecName, dims, s.Duration})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Type", "Codec", "Size", "Duration"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight},
	))
}

func newThumbnailCommand(ctx *commandContext) *cobra.Command {
	var at float64

	cmd := &cobra.Command{
		Use:   "thumbnail <video> <output.jpg>",
		Short: "Extract one frame of a video as a JPEG",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.engine(ctx.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			if err := engine.Thumbnail(cmd.Context(), args[0], args[1], at); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[1])
			return nil
		},
	}
	cmd.Flags().Float64Var(&at, "at", render.ThumbnailAt, "timestamp in seconds")
	return cmd
}
