package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/endogpt/endokit/internal/imaging"
)

func newConcatCmd() *cobra.Command {
	var (
		single string
		full   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "concat",
		Short: "Join frames into numbered 1x4 strips",
		Long: `Groups the frames of a folder by four in name order, resizes each group to
its smallest frame and writes the group side by side as one JPEG, with each
frame numbered in a blue badge. A trailing group of fewer than four frames
is skipped.

--single processes one folder. --full processes every <parent>/<group>/<video>
folder and writes the strips into a concatenated_images folder inside each.`,
		Example: `  endokit concat --single frames/case1/video_a
  endokit concat --full frames/`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := sessionFrom(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()

			if single != "" {
				out := output
				if out == "" {
					out = filepath.Join(single, imaging.OutputDirName)
				}
				written, err := imaging.ConcatFolder(ctx, single, out)
				if err != nil {
					return err
				}
				cmd.Printf("Wrote %d strips to %s\n", len(written), out)
				return nil
			}

			total, err := imaging.ConcatTree(ctx, full)
			if err != nil {
				return err
			}
			cmd.Printf("Wrote %d strips under %s\n", total, full)
			return nil
		},
	}

	cmd.Flags().StringVar(&single, "single", "", "process one frame folder")
	cmd.Flags().StringVar(&full, "full", "", "process every second-level folder of this parent")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output folder for --single (default <folder>/concatenated_images)")
	cmd.MarkFlagsMutuallyExclusive("single", "full")
	cmd.MarkFlagsOneRequired("single", "full")

	return cmd
}
