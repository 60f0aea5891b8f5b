package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"adrender/internal/geometry"
	"adrender/internal/media"
	"adrender/internal/models"
)

// newGeometryCommand needs no configuration; it explains what a render of
// one source size into several formats would crop.
func newGeometryCommand() *cobra.Command {
	var (
		logoSize string
		position string
		padding  int
	)

	cmd := &cobra.Command{
		Use:   "geometry <source WxH> <format...>",
		Short: "Show crop rectangles and logo offsets for target formats",
		Long: `Show the centered crop taken from a source frame for each target format, and
where a logo lands once the crop is scaled.

Example:
  renderctl geometry 1920x1080 1080x1920 1080x1080 --logo 200x80 --position bottom-right`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := media.ParseFormat(args[0])
			if err != nil {
				return err
			}
			var logo geometry.Size
			if logoSize != "" {
				if logo, err = media.ParseFormat(logoSize); err != nil {
					return err
				}
			}

			rows := make([][]string, 0, len(args)-1)
			for _, f := range args[1:] {
				target, err := media.ParseFormat(f)
				if err != nil {
					return err
				}
				crop, err := geometry.CropFor(source, target)
				if err != nil {
					return err
				}
				row := []string{
					media.FormatLabel(target),
					strconv.Itoa(crop.Width) + "x" + strconv.Itoa(crop.Height),
					strconv.Itoa(crop.X) + "," + strconv.Itoa(crop.Y),
					"",
				}
				if logo.Width > 0 {
					pt, known := geometry.LogoPositionFor(models.LogoPosition(position), logo, target, padding)
					row[3] = strconv.Itoa(pt.X) + "," + strconv.Itoa(pt.Y)
					if !known {
						row[3] += " (top-left fallback)"
					}
				}
				rows = append(rows, row)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Format", "Crop", "Offset", "Logo"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&logoSize, "logo", "", "logo size WxH")
	cmd.Flags().StringVar(&position, "position", string(models.LogoTopRight), "logo position")
	cmd.Flags().IntVar(&padding, "padding", 20, "logo padding in pixels")
	return cmd
}
