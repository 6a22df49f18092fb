package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/endogpt/endokit/internal/logging"
	"github.com/endogpt/endokit/internal/video"
)

// framesFlags holds the frames command options.
type framesFlags struct {
	input     string
	output    string
	maxFrames int
	rotate    int
	targetFPS float64
	verbose   bool
}

// extractorFactory builds the frame extractor; tests replace it with one that
// does not need ffmpeg.
//
//nolint:gochecknoglobals // Test seam.
var extractorFactory = video.NewExtractor

func newFramesCmd() *cobra.Command {
	var flags framesFlags

	cmd := &cobra.Command{
		Use:   "frames",
		Short: "Extract still frames from videos with ffmpeg",
		Long: `Samples frames evenly from a video, or from every .mp4 file in a folder, and
writes them as JPEG files named after their timestamp in seconds into
<output>/<video name>/. Any earlier output for the video is replaced.

Requires ffmpeg and ffprobe on PATH.`,
		Example: `  # Two frames per second from every video in a folder
  endokit frames --input videos/ --output frames/ --target-fps 2

  # At most 200 frames from a portrait recording
  endokit frames --input case1.mp4 --output frames/ --maxframes 200 --rotate 90`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFrames(cmd, &flags)
		},
	}

	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "video file or folder of .mp4 files")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output folder")
	cmd.Flags().IntVar(&flags.maxFrames, "maxframes", 0, "maximum frames per video (0 = no limit)")
	cmd.Flags().IntVar(&flags.rotate, "rotate", 0, "clockwise rotation: 0, 90, 180 or 270")
	cmd.Flags().Float64Var(&flags.targetFPS, "target-fps", 0, "frames per second to keep (0 = source rate)")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "print every written frame")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runFrames(cmd *cobra.Command, flags *framesFlags) error {
	if _, err := sessionFrom(cmd); err != nil {
		return err
	}
	ctx := cmd.Context()
	log := logging.ComponentLogger(*logging.FromContext(ctx), "cli")

	if _, err := video.RotateFilter(flags.rotate); err != nil {
		return err
	}

	videos, err := video.Videos(flags.input)
	if err != nil {
		return err
	}

	ex := extractorFactory(video.Options{
		TargetFPS: flags.targetFPS,
		MaxFrames: flags.maxFrames,
		Rotate:    flags.rotate,
	})

	total := 0
	for _, v := range videos {
		written, extractErr := ex.Extract(ctx, v, flags.output)
		total += len(written)
		if flags.verbose {
			for _, p := range written {
				cmd.Println(p)
			}
		}
		if extractErr != nil {
			return fmt.Errorf("extracting %s: %w", v, extractErr)
		}
		log.Info().Str("video", v).Int("frames", len(written)).Msg("video done")
		cmd.Printf("%s: %d frames -> %s\n", v, len(written), video.OutputDir(flags.output, v))
	}

	cmd.Printf("Extracted %d frames from %d videos\n", total, len(videos))
	return nil
}
