package server

import (
	"errors"
	"net/http"

	"github.com/MeKo-Tech/lotlens/internal/browse"
)

// getSessionHandler returns both carousels of a browse session.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// moveSessionHandler steps one carousel forward or backward.
func (s *Server) moveSessionHandler(w http.ResponseWriter, r *http.Request) {
	sec, err := browse.ParseSection(r.PathValue("section"))
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	var forward bool
	switch r.PathValue("direction") {
	case "advance":
		forward = true
	case "retreat":
		forward = false
	default:
		s.writeErrorResponse(w, "direction must be advance or retreat", http.StatusBadRequest)
		return
	}

	snap, err := s.sessions.Move(r.PathValue("id"), sec, forward)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, browse.ErrSessionNotFound) {
		s.writeErrorResponse(w, "session not found", http.StatusNotFound)
		return
	}
	s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
}
