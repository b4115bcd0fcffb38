// Package image loads layout photographs and renders them into views.
package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"rr-labeler/internal/manifest"
	"rr-labeler/pkg/geometry"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Photo is one decoded layout photograph. Data keeps the original encoded
// bytes so bundles store the file unchanged.
type Photo struct {
	Filename string
	Format   string
	Data     []byte
	Image    image.Image
}

// Load reads and decodes the photograph at path.
func Load(ctx context.Context, path string) (*Photo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Decode(filepath.Base(path), data)
}

// Decode decodes an encoded photograph.
func Decode(filename string, data []byte) (*Photo, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", filename, err)
	}
	return &Photo{Filename: filename, Format: format, Data: data, Image: img}, nil
}

// DecodeSize reads only the header of an encoded image and returns its pixel
// size.
func DecodeSize(data []byte) (manifest.Resolution, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return manifest.Resolution{}, "", fmt.Errorf("failed to read image header: %w", err)
	}
	return manifest.Resolution{Width: cfg.Width, Height: cfg.Height}, format, nil
}

// Width returns the image width in pixels.
func (p *Photo) Width() int {
	if p == nil || p.Image == nil {
		return 0
	}
	return p.Image.Bounds().Dx()
}

// Height returns the image height in pixels.
func (p *Photo) Height() int {
	if p == nil || p.Image == nil {
		return 0
	}
	return p.Image.Bounds().Dy()
}

// Size returns the image dimensions.
func (p *Photo) Size() geometry.Size {
	return geometry.NewSize(float64(p.Width()), float64(p.Height()))
}

// Resolution returns the image dimensions as a camera resolution.
func (p *Photo) Resolution() manifest.Resolution {
	return manifest.Resolution{Width: p.Width(), Height: p.Height()}
}

// LayoutName derives a default layout name from a photo filename.
func LayoutName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SupportedFormats returns the list of supported image file extensions.
func SupportedFormats() []string {
	return []string{".jpg", ".jpeg", ".png", ".tiff", ".tif", ".webp", ".bmp", ".gif"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

// FileFilter returns a file filter string for use in file dialogs.
func FileFilter() string {
	return "Image Files (*." + strings.Join(trimDots(SupportedFormats()), ", *.") + ")"
}

func trimDots(exts []string) []string {
	out := make([]string, len(exts))
	for i, e := range exts {
		out[i] = strings.TrimPrefix(e, ".")
	}
	return out
}
