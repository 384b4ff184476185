package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/lotlens/internal/browse"
	"github.com/MeKo-Tech/lotlens/internal/orchestrator"
	"github.com/MeKo-Tech/lotlens/internal/results"
	"github.com/MeKo-Tech/lotlens/internal/version"
)

const (
	missingFileMessage  = "No file provided"
	fileTooLargeMessage = "File too large"

	// multipart parts above this size spill to temporary files
	multipartMemory = 32 << 20
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// processImagesHandler accepts one multipart upload (fields file and
// isAdditional), runs it through the pipeline and returns the result paths.
func (s *Server) processImagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.maxUploadMB > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadMB<<20)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, fileTooLargeMessage, http.StatusRequestEntityTooLarge)
			return
		}
		slog.Debug("Unreadable upload form", "error", err)
		s.recordOutcome(orchestrator.RoleFromFlag(r.URL.Query().Get("isAdditional")), "missing_file")
		s.writeErrorResponse(w, missingFileMessage, http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	role := orchestrator.RoleFromFlag(r.FormValue("isAdditional"))

	file, header, err := r.FormFile("file")
	if err != nil {
		s.recordOutcome(role, "missing_file")
		s.writeErrorResponse(w, missingFileMessage, http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()
	uploadSizeBytes.Observe(float64(header.Size))

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()

	res, err := s.processor.ProcessObserved(ctx, orchestrator.Upload{
		Name: header.Filename,
		Body: file,
		Role: role,
	}, orchestrator.Observer{})

	status, body := s.uploadOutcome(role, r.FormValue("session"), res, err)
	s.writeJSON(w, status, body)
}

func (s *Server) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeoutSec > 0 {
		return context.WithTimeout(parent, time.Duration(s.timeoutSec)*time.Second)
	}
	return context.WithCancel(parent)
}

// uploadOutcome maps a pipeline outcome to a status code and body. The
// cause of a failure is never exposed; the orchestrator has logged it.
func (s *Server) uploadOutcome(role orchestrator.BatchRole, sessionID string, res *orchestrator.Result, err error) (int, any) {
	switch {
	case errors.Is(err, orchestrator.ErrMissingFile):
		s.recordOutcome(role, "missing_file")
		return http.StatusBadRequest, ErrorResponse{Error: missingFileMessage}
	case err != nil:
		s.recordOutcome(role, "error")
		return http.StatusInternalServerError, ErrorResponse{Error: orchestrator.GenericFailureMessage}
	}

	images := []string(res.Images)
	if images == nil {
		images = []string{}
	}
	if res.Empty() {
		s.recordOutcome(role, "empty")
	} else {
		s.recordOutcome(role, "success")
	}
	processDuration.WithLabelValues(string(role)).Observe(res.Duration.Seconds())
	resultImages.WithLabelValues(string(role)).Observe(float64(len(images)))

	return http.StatusOK, ProcessResponse{
		Images:  images,
		Session: s.attachSession(role, sessionID, images),
	}
}

// attachSession records a successful batch in the browse store. Initial
// batches open a new session, except an empty one which has nothing to
// browse. Supplementary batches extend the named session, or open an
// empty one when it is absent or expired.
func (s *Server) attachSession(role orchestrator.BatchRole, sessionID string, images []string) string {
	if role == orchestrator.RoleInitial {
		if len(images) == 0 {
			return ""
		}
		return s.sessions.Create(images).ID
	}

	if sessionID != "" {
		snap, err := s.sessions.AppendSupplementary(sessionID, images)
		if err == nil {
			return snap.ID
		}
		slog.Info("Supplementary batch for unknown session, starting a new one", "session", sessionID)
	}
	snap := s.sessions.Create(nil)
	if _, err := s.sessions.AppendSupplementary(snap.ID, images); err != nil {
		slog.Warn("Could not record supplementary batch", "session", snap.ID, "error", err)
	}
	return snap.ID
}

func (s *Server) recordOutcome(role orchestrator.BatchRole, status string) {
	processRequestsTotal.WithLabelValues(string(role), status).Inc()
}

// resultsHandler serves the comma-joined result list the browsing view
// was originally seeded from, capped like an initial batch.
func (s *Server) resultsHandler(w http.ResponseWriter, r *http.Request) {
	images := results.ParseList(r.URL.Query().Get("images")).Truncate(browse.DefaultMaxInitial)
	s.writeJSON(w, http.StatusOK, ResultsResponse{Images: images})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
