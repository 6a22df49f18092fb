// Package imaging builds numbered 1x4 contact strips from frame folders.
package imaging

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png" // register the PNG decoder
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/endogpt/endokit/internal/logging"
)

const (
	// GroupSize is the number of frames per strip.
	GroupSize = 4

	// OutputDirName is the folder created next to the frames.
	OutputDirName = "concatenated_images"

	jpegQuality  = 95
	badgeOffset  = 20
	fontDivisor  = 10
	paddingRatio = 3
)

// ErrEmptyGroup is returned when Concat is given no images.
var ErrEmptyGroup = errors.New("no images to concatenate")

//nolint:gochecknoglobals // Colors are constants in all but name.
var (
	badgeFill = color.RGBA{B: 255, A: 255}
	badgeText = image.White
)

// Frames returns the *.jpg and *.png files of dir in path order.
func Frames(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.jpg", "*.png"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", pattern, err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// ConcatFolder writes one strip to outDir for every full group of four frames
// in inDir. A trailing partial group is skipped. It returns the written paths.
func ConcatFolder(ctx context.Context, inDir, outDir string) ([]string, error) {
	log := logging.ComponentLogger(*logging.FromContext(ctx), "imaging")

	files, err := Frames(inDir)
	if err != nil {
		return nil, err
	}

	if mkErr := os.MkdirAll(outDir, 0o750); mkErr != nil {
		return nil, fmt.Errorf("creating output folder: %w", mkErr)
	}

	var written []string
	for start := 0; start+GroupSize <= len(files); start += GroupSize {
		if ctx.Err() != nil {
			return written, ctx.Err()
		}

		group := files[start : start+GroupSize]
		out := filepath.Join(outDir, StripName(group))
		if writeErr := writeStrip(group, out); writeErr != nil {
			return written, writeErr
		}
		written = append(written, out)
		log.Debug().Str("output", out).Msg("strip written")
	}

	if rest := len(files) % GroupSize; rest != 0 {
		log.Debug().Int("skipped", rest).Str("folder", inDir).Msg("partial group skipped")
	}
	return written, nil
}

// ConcatTree runs ConcatFolder on every second-level folder of parent,
// writing into an OutputDirName folder inside each. It returns the number of
// strips written.
func ConcatTree(ctx context.Context, parent string) (int, error) {
	log := logging.ComponentLogger(*logging.FromContext(ctx), "imaging")

	groups, err := os.ReadDir(parent)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", parent, err)
	}

	total := 0
	for _, group := range groups {
		if !group.IsDir() {
			continue
		}
		groupPath := filepath.Join(parent, group.Name())
		subs, readErr := os.ReadDir(groupPath)
		if readErr != nil {
			return total, fmt.Errorf("reading %s: %w", groupPath, readErr)
		}

		for _, sub := range subs {
			if !sub.IsDir() {
				continue
			}
			subPath := filepath.Join(groupPath, sub.Name())
			log.Info().Str("folder", subPath).Msg("processing subfolder")

			written, concatErr := ConcatFolder(ctx, subPath, filepath.Join(subPath, OutputDirName))
			total += len(written)
			if concatErr != nil {
				return total, concatErr
			}
		}
	}
	return total, nil
}

// StripName joins the base names of group, without extensions, with dashes.
func StripName(group []string) string {
	names := make([]string, len(group))
	for i, p := range group {
		base := filepath.Base(p)
		names[i] = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return strings.Join(names, "-") + ".jpg"
}

func writeStrip(group []string, out string) error {
	imgs := make([]image.Image, len(group))
	for i, p := range group {
		img, err := decode(p)
		if err != nil {
			return err
		}
		imgs[i] = img
	}

	strip, err := Concat(imgs)
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", out, err)
	}
	if encErr := jpeg.Encode(f, strip, &jpeg.Options{Quality: jpegQuality}); encErr != nil {
		_ = f.Close()
		return fmt.Errorf("encoding %s: %w", out, encErr)
	}
	return f.Close()
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

// Concat resizes every image to the smallest width and height among them,
// places them side by side and numbers each from 1 in a blue badge.
func Concat(imgs []image.Image) (*image.RGBA, error) {
	if len(imgs) == 0 {
		return nil, ErrEmptyGroup
	}

	w, h := imgs[0].Bounds().Dx(), imgs[0].Bounds().Dy()
	for _, img := range imgs[1:] {
		w = min(w, img.Bounds().Dx())
		h = min(h, img.Bounds().Dy())
	}

	dst := image.NewRGBA(image.Rect(0, 0, w*len(imgs), h))

	fontSize := max(min(w, h)/fontDivisor, 1)
	face, err := newFace(fontSize)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	for i, img := range imgs {
		x := i * w
		draw.CatmullRom.Scale(dst, image.Rect(x, 0, x+w, h), img, img.Bounds(), draw.Src, nil)
		drawBadge(dst, face, strconv.Itoa(i+1), image.Pt(x+badgeOffset, badgeOffset), fontSize)
	}
	return dst, nil
}

func newFace(size int) (font.Face, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("creating font face: %w", err)
	}
	return face, nil
}

// badgeRadius returns the circle radius for text: half its larger dimension
// plus a third of the font size.
func badgeRadius(face font.Face, text string, fontSize int) (radius int, bounds fixed.Rectangle26_6) {
	bounds, _ = font.BoundString(face, text)
	tw := (bounds.Max.X - bounds.Min.X).Ceil()
	th := (bounds.Max.Y - bounds.Min.Y).Ceil()
	return max(tw, th)/2 + fontSize/paddingRatio, bounds
}

// drawBadge draws a filled circle centered on c with text centered inside.
func drawBadge(dst *image.RGBA, face font.Face, text string, c image.Point, fontSize int) {
	r, bounds := badgeRadius(face, text, fontSize)

	rect := image.Rect(c.X-r, c.Y-r, c.X+r+1, c.Y+r+1).Intersect(dst.Bounds())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dx, dy := x-c.X, y-c.Y
			if dx*dx+dy*dy <= r*r {
				dst.SetRGBA(x, y, badgeFill)
			}
		}
	}

	tw := (bounds.Max.X - bounds.Min.X).Ceil()
	th := (bounds.Max.Y - bounds.Min.Y).Ceil()
	left, top := c.X-tw/2, c.Y-th/2

	d := &font.Drawer{
		Dst:  dst,
		Src:  badgeText,
		Face: face,
		Dot:  fixed.P(left, top).Sub(bounds.Min),
	}
	d.DrawString(text)
}
