package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/lotlens/internal/browse"
	"github.com/MeKo-Tech/lotlens/internal/orchestrator"
	"github.com/MeKo-Tech/lotlens/internal/thumbnail"
)

// uploadProcessor is the part of orchestrator.Service the handlers need.
type uploadProcessor interface {
	ProcessObserved(ctx context.Context, up orchestrator.Upload, obs orchestrator.Observer) (*orchestrator.Result, error)
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	processor   uploadProcessor
	sessions    *browse.Store
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	publicDir   string
	thumbnails  thumbnail.Options
	rateLimiter *RateLimiter
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int
	PublicDir   string
	Thumbnails  thumbnail.Options
	RateLimit   RateLimitConfig
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ProcessResponse is the success body of POST /process-images.
type ProcessResponse struct {
	Images  []string `json:"images"`
	Session string   `json:"session,omitempty"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ResultsResponse is returned by GET /results.
type ResultsResponse struct {
	Images []string `json:"images"`
}

// NewServer creates a server around an upload processor and a session store.
func NewServer(config Config, proc uploadProcessor, sessions *browse.Store) (*Server, error) {
	if proc == nil {
		return nil, errors.New("server: processor is required")
	}
	if sessions == nil {
		return nil, errors.New("server: session store is required")
	}
	if config.CORSOrigin == "" {
		config.CORSOrigin = "*"
	}
	if config.Thumbnails == (thumbnail.Options{}) {
		config.Thumbnails = thumbnail.DefaultOptions()
	}

	s := &Server{
		processor:   proc,
		sessions:    sessions,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeoutSec:  config.TimeoutSec,
		publicDir:   config.PublicDir,
		thumbnails:  config.Thumbnails,
	}
	if config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(config.RateLimit)
	}
	return s, nil
}

// RateLimiter returns the limiter, or nil when rate limiting is off.
func (s *Server) RateLimiter() *RateLimiter {
	return s.rateLimiter
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/process-images", s.corsMiddleware(s.rateLimitMiddleware(s.processImagesHandler)))
	mux.HandleFunc("/ws/process-images", s.rateLimitMiddleware(s.processImagesWebSocketHandler))

	mux.HandleFunc("GET /results", s.corsMiddleware(s.resultsHandler))
	mux.HandleFunc("GET /sessions/{id}", s.corsMiddleware(s.getSessionHandler))
	mux.HandleFunc("POST /sessions/{id}/{section}/{direction}", s.corsMiddleware(s.moveSessionHandler))

	mux.HandleFunc("GET /thumbnails/{path...}", s.corsMiddleware(s.thumbnailHandler))
	if s.publicDir != "" {
		mux.Handle("GET /assets/", http.StripPrefix("/assets/", http.FileServer(http.Dir(s.publicDir))))
	}
}

// Handler returns a mux with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}
