package server

import (
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/MeKo-Tech/lotlens/internal/thumbnail"
)

// thumbnailHandler renders a scaled preview of a published result image.
func (s *Server) thumbnailHandler(w http.ResponseWriter, r *http.Request) {
	if s.publicDir == "" {
		http.NotFound(w, r)
		return
	}

	rel := r.PathValue("path")
	data, contentType, err := thumbnail.Render(s.publicDir, rel, s.thumbnails)
	switch {
	case errors.Is(err, thumbnail.ErrOutsideRoot):
		s.writeErrorResponse(w, "invalid path", http.StatusBadRequest)
		return
	case errors.Is(err, os.ErrNotExist):
		s.writeErrorResponse(w, "not found", http.StatusNotFound)
		return
	case err != nil:
		slog.Warn("Thumbnail rendering failed", "path", rel, "error", err)
		s.writeErrorResponse(w, "unsupported image", http.StatusUnsupportedMediaType)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Debug("Thumbnail write aborted", "path", rel, "error", err)
	}
}
