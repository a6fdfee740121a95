// Package server provides the HTTP server for the hand-gesture photo capture.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ayusman/handcapture/internal/server/api"
	"github.com/ayusman/handcapture/internal/store"
)

// CaptureService is the capture session as seen by the HTTP layer.
type CaptureService interface {
	api.CaptureService
	FrameSource
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Capture   CaptureService
	Events    *EventsHandler
	Landmarks *LandmarksHandler
}

// Server represents the HTTP server for the capture application.
type Server struct {
	config Config
	router chi.Router
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		router: chi.NewRouter(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)

	if s.config.Capture != nil {
		r.Route("/api/capture", func(r chi.Router) {
			api.NewCaptureHandler(s.config.Capture).Routes(r)
			r.Method(http.MethodGet, "/stream", NewStreamHandler(s.config.Capture))
			if s.config.Events != nil {
				r.Method(http.MethodGet, "/events", s.config.Events)
			}
			if s.config.Landmarks != nil {
				r.Method(http.MethodGet, "/landmarks", s.config.Landmarks)
			}
		})
	}

	if s.config.Store != nil {
		r.Route("/api/photos", api.NewPhotoHandler(s.config.Store).Routes)
		r.Route("/api/sessions", api.NewSessionHandler(s.config.Store).Routes)
	}

	// Unknown API paths never fall through to static files.
	r.Get("/api/*", http.NotFound)

	if s.config.StaticDir != "" {
		r.Get("/*", http.FileServer(http.Dir(s.config.StaticDir)).ServeHTTP)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
