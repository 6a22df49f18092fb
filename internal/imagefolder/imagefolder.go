// Package imagefolder selects the frames of a folder for analysis.
package imagefolder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultExtensions are the image types analyzed when Options.Extensions is empty.
//
//nolint:gochecknoglobals // Read-only lookup table.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}

// Common errors.
var (
	ErrNoImages        = errors.New("no supported image files found")
	ErrInvalidSampling = errors.New("sampling must be at least 1")
)

// Options controls which files List returns.
type Options struct {
	// Extensions are matched case-insensitively, with the leading dot.
	Extensions []string

	// Sampling keeps every Nth file after sorting, starting with the first.
	Sampling int
}

// List returns the paths of the images in dir, sorted by the number formed
// from the digits in each file name, then sampled.
func List(dir string, opts Options) ([]string, error) {
	sampling := opts.Sampling
	if sampling == 0 {
		sampling = 1
	}
	if sampling < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSampling, opts.Sampling)
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading image folder: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if hasExtension(e.Name(), exts) {
			names = append(names, e.Name())
		}
	}

	SortNumeric(names)

	var paths []string
	for i := 0; i < len(names); i += sampling {
		paths = append(paths, filepath.Join(dir, names[i]))
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, dir)
	}
	return paths, nil
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range exts {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

// SortNumeric orders names by the integer formed from all of their digits,
// so frame_2.jpg sorts before frame_10.jpg. Names without digits count as 0.
// Equal numbers are ordered by name.
func SortNumeric(names []string) {
	keys := make(map[string]string, len(names))
	for _, n := range names {
		keys[n] = digitKey(n)
	}

	sort.SliceStable(names, func(i, j int) bool {
		a, b := keys[names[i]], keys[names[j]]
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		if a != b {
			return a < b
		}
		return names[i] < names[j]
	})
}

// digitKey concatenates the digits of s without leading zeros. Comparing keys
// by length and then lexically orders them numerically without overflow.
func digitKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			if b.Len() == 0 && r == '0' {
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ResultsPath returns the snapshot path for a run started at now.
func ResultsPath(outputDir string, now time.Time) string {
	return filepath.Join(outputDir, "analysis_results_"+now.Format("20060102_150405")+".json")
}

// DefaultOutputDir is the results directory used when none is given.
func DefaultOutputDir(folder string) string {
	return filepath.Join(folder, "results")
}
