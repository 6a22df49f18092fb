package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/endogpt/endokit/internal/logging"
)

// Extractor writes sampled frames of a video as JPEG files.
type Extractor struct {
	Runner  Runner
	Options Options
}

// NewExtractor returns an Extractor that runs the real ffmpeg binaries.
func NewExtractor(opts Options) *Extractor {
	return &Extractor{Runner: ExecRunner{}, Options: opts}
}

// OutputDir returns outRoot/<video file name without extension>.
func OutputDir(outRoot, videoPath string) string {
	base := filepath.Base(videoPath)
	return filepath.Join(outRoot, strings.TrimSuffix(base, filepath.Ext(base)))
}

// Extract samples frames of videoPath into OutputDir(outRoot, videoPath),
// replacing any previous contents of that folder. It returns the written
// frame paths in timestamp order.
func (e *Extractor) Extract(ctx context.Context, videoPath, outRoot string) ([]string, error) {
	log := logging.ComponentLogger(*logging.FromContext(ctx), "video")

	filter, err := RotateFilter(e.Options.Rotate)
	if err != nil {
		return nil, err
	}

	info, err := Probe(ctx, e.Runner, videoPath)
	if err != nil {
		return nil, err
	}

	frames, err := PlanFrames(info, e.Options)
	if err != nil {
		return nil, err
	}

	outDir := OutputDir(outRoot, videoPath)
	if rmErr := os.RemoveAll(outDir); rmErr != nil {
		return nil, fmt.Errorf("clearing %s: %w", outDir, rmErr)
	}
	if mkErr := os.MkdirAll(outDir, 0o750); mkErr != nil {
		return nil, fmt.Errorf("creating %s: %w", outDir, mkErr)
	}

	log.Info().
		Str("video", videoPath).
		Float64("fps", info.FPS).
		Int("source_frames", info.FrameCount).
		Int("frames", len(frames)).
		Msg("extracting frames")

	written := make([]string, 0, len(frames))
	for _, f := range frames {
		if ctx.Err() != nil {
			return written, ctx.Err()
		}

		out := filepath.Join(outDir, f.Name)
		if _, runErr := e.Runner.Run(ctx, "ffmpeg", frameArgs(videoPath, out, f.Timestamp, filter)...); runErr != nil {
			return written, fmt.Errorf("extracting frame %d of %s: %w", f.Index, videoPath, runErr)
		}
		written = append(written, out)
	}
	return written, nil
}

func frameArgs(videoPath, out string, ts float64, filter string) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", strconv.FormatFloat(ts, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
	}
	if filter != "" {
		args = append(args, "-vf", filter)
	}
	args = append(args, "-q:v", "2", out)
	return args
}
