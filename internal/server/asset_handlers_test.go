package server

import (
	"bytes"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/lotlens/internal/testutil"
	"github.com/MeKo-Tech/lotlens/internal/thumbnail"
)

func TestThumbnailHandler(t *testing.T) {
	public := t.TempDir()
	testutil.WritePNG(t, public, "results/r1/a.png", 640, 320)
	require.NoError(t, os.WriteFile(filepath.Join(public, "notes.txt"), []byte("hello"), 0o600))

	s, err := NewServer(Config{PublicDir: public, Thumbnails: thumbnail.Options{MaxWidth: 64, MaxHeight: 64}},
		&stubProcessor{}, newTestStore(t))
	require.NoError(t, err)
	h := s.Handler()

	w := doRequest(h, http.MethodGet, "/thumbnails/results/r1/a.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	img, _, err := image.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())

	assert.Equal(t, http.StatusNotFound, doRequest(h, http.MethodGet, "/thumbnails/results/missing.png").Code)
	assert.Equal(t, http.StatusUnsupportedMediaType, doRequest(h, http.MethodGet, "/thumbnails/notes.txt").Code)

	req := httptest.NewRequest(http.MethodGet, "/thumbnails/x", nil)
	req.SetPathValue("path", "../../etc/passwd")
	rec := httptest.NewRecorder()
	s.thumbnailHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestThumbnailHandler_NoPublicDir(t *testing.T) {
	s, err := NewServer(Config{}, &stubProcessor{}, newTestStore(t))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/thumbnails/a.png", nil)
	req.SetPathValue("path", "a.png")
	w := httptest.NewRecorder()
	s.thumbnailHandler(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAssetsServed(t *testing.T) {
	public := t.TempDir()
	testutil.WritePNG(t, public, "results/a.png", 8, 8)

	s, err := NewServer(Config{PublicDir: public}, &stubProcessor{}, newTestStore(t))
	require.NoError(t, err)

	w := doRequest(s.Handler(), http.MethodGet, "/assets/results/a.png")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
}
