// Package video samples still frames from videos with ffprobe and ffmpeg.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Common video errors.
var (
	ErrNoVideos       = errors.New("no video files found")
	ErrNoVideoStream  = errors.New("no video stream")
	ErrInvalidProbe   = errors.New("invalid probe result")
	ErrInvalidRotate  = errors.New("rotation must be 0, 90, 180 or 270")
	ErrInvalidOptions = errors.New("invalid frame options")
)

// Runner executes an external program and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

// Run implements Runner. Standard error is included in the returned error.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Info describes the first video stream of a file.
type Info struct {
	FPS        float64
	FrameCount int
	Duration   float64
}

type probeOutput struct {
	Streams []struct {
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads the frame rate, frame count and duration of path.
func Probe(ctx context.Context, r Runner, path string) (Info, error) {
	out, err := r.Run(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate,r_frame_rate,nb_frames,duration:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return Info{}, fmt.Errorf("probing %s: %w", path, err)
	}
	return parseProbe(out)
}

func parseProbe(data []byte) (Info, error) {
	var p probeOutput
	if err := json.Unmarshal(data, &p); err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrInvalidProbe, err)
	}
	if len(p.Streams) == 0 {
		return Info{}, ErrNoVideoStream
	}
	s := p.Streams[0]

	fps := parseRate(s.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(s.RFrameRate)
	}
	if fps <= 0 {
		return Info{}, fmt.Errorf("%w: no frame rate", ErrInvalidProbe)
	}

	duration, _ := strconv.ParseFloat(s.Duration, 64)
	if duration <= 0 {
		duration, _ = strconv.ParseFloat(p.Format.Duration, 64)
	}

	frames, _ := strconv.Atoi(s.NbFrames)
	if frames <= 0 {
		frames = int(math.Round(duration * fps))
	}
	if frames <= 0 {
		return Info{}, fmt.Errorf("%w: no frames", ErrInvalidProbe)
	}
	if duration <= 0 {
		duration = float64(frames) / fps
	}

	return Info{FPS: fps, FrameCount: frames, Duration: duration}, nil
}

// parseRate parses "num/den" or a plain number.
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// Options controls frame sampling.
type Options struct {
	// TargetFPS is the output rate; zero keeps the source rate.
	TargetFPS float64

	// MaxFrames caps the number of frames; zero means no cap.
	MaxFrames int

	// Rotate is a clockwise rotation of 0, 90, 180 or 270 degrees.
	Rotate int
}

// Frame is one planned output frame.
type Frame struct {
	Index     int
	Timestamp float64
	Name      string
}

// PlanFrames picks the frames to extract: duration*fps frames at the target
// rate, capped by MaxFrames, spaced evenly over the source frames. Each frame
// is named after its timestamp in seconds with millisecond precision.
func PlanFrames(info Info, opts Options) ([]Frame, error) {
	if info.FPS <= 0 || info.FrameCount <= 0 {
		return nil, fmt.Errorf("%w: fps and frame count must be positive", ErrInvalidProbe)
	}
	if opts.TargetFPS < 0 || opts.MaxFrames < 0 {
		return nil, fmt.Errorf("%w: negative target fps or max frames", ErrInvalidOptions)
	}

	fps := opts.TargetFPS
	if fps == 0 {
		fps = info.FPS
	}

	duration := float64(info.FrameCount) / info.FPS
	target := int(duration * fps)
	if opts.MaxFrames > 0 && target > opts.MaxFrames {
		target = opts.MaxFrames
	}
	if target <= 0 {
		return nil, nil
	}

	interval := float64(info.FrameCount) / float64(target)

	frames := make([]Frame, 0, target)
	for k := 0; k < target; k++ {
		idx := int(float64(k) * interval)
		if idx >= info.FrameCount {
			break
		}
		ts := float64(idx) / info.FPS
		frames = append(frames, Frame{
			Index:     idx,
			Timestamp: ts,
			Name:      strconv.FormatFloat(ts, 'f', 3, 64) + ".jpg",
		})
	}
	return frames, nil
}

// RotateFilter returns the ffmpeg video filter for a clockwise rotation.
func RotateFilter(degrees int) (string, error) {
	switch degrees {
	case 0:
		return "", nil
	case 90:
		return "transpose=1", nil
	case 180:
		return "hflip,vflip", nil
	case 270:
		return "transpose=2", nil
	default:
		return "", fmt.Errorf("%w: got %d", ErrInvalidRotate, degrees)
	}
}

// Videos returns input itself when it is a file, or every *.mp4 in it when it
// is a directory.
func Videos(input string) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("input path: %w", err)
	}
	if !info.IsDir() {
		return []string{input}, nil
	}

	matches, err := filepath.Glob(filepath.Join(input, "*.mp4"))
	if err != nil {
		return nil, fmt.Errorf("listing videos: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoVideos, input)
	}
	sort.Strings(matches)
	return matches, nil
}
