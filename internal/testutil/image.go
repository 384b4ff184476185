package testutil

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// CreateTestImage creates a solid image with a darker block in the top
// left corner so resized output is not uniform.
func CreateTestImage(width, height int, background color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			if x < width/4 && y < height/4 {
				img.Set(x, y, color.RGBA{20, 20, 20, 255})
				continue
			}
			img.Set(x, y, background)
		}
	}
	return img
}

// EncodePNG encodes img to PNG bytes.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// WritePNG writes a generated image below dir/rel and returns its path.
func WritePNG(t *testing.T, dir, rel string, width, height int) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data := EncodePNG(t, CreateTestImage(width, height, color.RGBA{200, 220, 240, 255}))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write png: %v", err)
	}
	return path
}

// ZipOfImages builds an in-memory zip archive holding one small PNG per
// name.
func ZipOfImages(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write(EncodePNG(t, CreateTestImage(8, 8, color.White))); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}
