// Package thumbnail renders scaled previews of result images for the
// browsing view.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/webp" // register decoder
)

// ErrOutsideRoot is returned for paths that escape the asset root.
var ErrOutsideRoot = errors.New("path escapes asset root")

// Options bounds the rendered preview.
type Options struct {
	MaxWidth  int
	MaxHeight int
}

// DefaultOptions matches the carousel strip size.
func DefaultOptions() Options {
	return Options{MaxWidth: 320, MaxHeight: 240}
}

// Resolve maps a result path onto the filesystem below root.
func Resolve(root, rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(rel, "/")))
	if clean == "." || clean == ".." || filepath.IsAbs(clean) ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return filepath.Join(root, clean), nil
}

// Render loads rel below root and fits it into opts, preserving aspect
// ratio. Images already small enough are re-encoded unscaled. JPEG input
// stays JPEG, everything else becomes PNG.
func Render(root, rel string, opts Options) ([]byte, string, error) {
	path, err := Resolve(root, rel)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path) //nolint:gosec // G304: path is confined to root by Resolve
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = f.Close() }()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", rel, err)
	}

	out := fit(img, opts)

	var buf bytes.Buffer
	if format == "jpeg" {
		if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: 85}); err != nil {
			return nil, "", fmt.Errorf("encode thumbnail: %w", err)
		}
		return buf.Bytes(), "image/jpeg", nil
	}
	if err := png.Encode(&buf, out); err != nil {
		return nil, "", fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), "image/png", nil
}

func fit(img image.Image, opts Options) image.Image {
	if opts.MaxWidth <= 0 || opts.MaxHeight <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= opts.MaxWidth && b.Dy() <= opts.MaxHeight {
		return img
	}
	return imaging.Fit(img, opts.MaxWidth, opts.MaxHeight, imaging.Lanczos)
}
