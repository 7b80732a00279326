// Package server exposes the companion core over HTTP: profile
// management, the conversation, and quiz generation.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/memorymate/companion/internal/app"
	"github.com/memorymate/companion/internal/apperrors"
	"github.com/memorymate/companion/internal/config"
	"github.com/memorymate/companion/pkg/httpmiddleware"
	"github.com/memorymate/companion/pkg/logger"
	"github.com/memorymate/companion/pkg/metrics"
)

// Server handles HTTP requests against the application context.
type Server struct {
	app *app.App
	cfg config.AppConfig
	log logger.Logger
	m   *metrics.Metrics
}

// New creates the HTTP server facade. Metrics may be nil.
func New(application *app.App, cfg config.AppConfig, log logger.Logger, m *metrics.Metrics) *Server {
	return &Server{app: application, cfg: cfg, log: log, m: m}
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()

	middlewareConfig := httpmiddleware.DefaultConfig()
	middlewareConfig.Logger = s.log
	middlewareConfig.EnableLogging = true
	middlewareConfig.Timeout = s.cfg.RequestTimeout
	httpmiddleware.ApplyToRouter(router, middlewareConfig)

	if s.m != nil {
		router.Use(s.m.HTTPMiddleware())
	}

	router.Get("/health", s.handleHealth)

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/profiles/{kind}", func(r chi.Router) {
			r.Post("/", s.handleCreateProfile)
			r.Get("/", s.handleGetProfile)
			r.Put("/", s.handleUpdateProfile)
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/messages", s.handleSendMessage)
			r.Get("/history", s.handleGetHistory)
			r.Delete("/history", s.handleDeleteHistory)
		})

		r.Route("/quiz", func(r chi.Router) {
			r.Post("/", s.handleCreateQuiz)
			r.Get("/", s.handleGetQuiz)
			r.Post("/{index}/answer", s.handleAnswerQuestion)
		})
	})

	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.cfg.ServiceName,
		"version": s.cfg.Version,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("Failed to encode response", logger.ErrorField(err))
	}
}

// writeError maps the domain error taxonomy onto HTTP statuses:
// InvalidArgument 400, InvalidState 409, NotFound 404, external
// failures keep their upstream status.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var httpErr *apperrors.HTTPError
	switch {
	case apperrors.IsInvalidArgument(err):
		status = http.StatusBadRequest
	case apperrors.IsInvalidState(err):
		status = http.StatusConflict
	case apperrors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.As(err, &httpErr):
		status = http.StatusBadGateway
		if httpErr.Status >= 400 {
			status = httpErr.Status
		}
	}

	if status >= 500 {
		s.log.Error("Request failed", logger.ErrorField(err))
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
