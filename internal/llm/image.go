package llm

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Image is an inline, base64-encoded image.
type Image struct {
	MediaType string
	Data      string
}

// DataURL renders the image as a data: URL.
func (i Image) DataURL() string {
	return "data:" + i.MediaType + ";base64," + i.Data
}

// LoadImage reads path and encodes it, deriving the media type from the
// file extension. Unknown extensions are sent as JPEG.
func LoadImage(path string) (Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("reading image: %w", err)
	}
	return Image{
		MediaType: MediaType(path),
		Data:      base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// MediaType returns the image media type for path's extension.
func MediaType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
