// Package api exposes the autopilot service over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/miradorstack/mirador-autopilot/internal/services"
)

// Server holds the HTTP handlers for the autopilot API.
type Server struct {
	logger  *slog.Logger
	service *services.Autopilot
}

// NewServer constructs the API server.
func NewServer(logger *slog.Logger, service *services.Autopilot) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{logger: logger, service: service}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/incidents/simulate", s.handleSimulate).Methods(http.MethodPost)
	apiRouter.HandleFunc("/incidents", s.handleListIncidents).Methods(http.MethodGet)
	apiRouter.HandleFunc("/incidents/{id}", s.handleGetIncident).Methods(http.MethodGet)
	apiRouter.HandleFunc("/incidents/{id}/summary", s.handleSummary).Methods(http.MethodGet)
	apiRouter.HandleFunc("/incidents/{id}/approve", s.handleApprove).Methods(http.MethodPost)
	apiRouter.HandleFunc("/statistics", s.handleStatistics).Methods(http.MethodGet)
	apiRouter.HandleFunc("/active", s.handleActive).Methods(http.MethodGet)
	apiRouter.HandleFunc("/scenarios", s.handleScenarios).Methods(http.MethodGet)

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration", time.Since(start)))
	})
}
