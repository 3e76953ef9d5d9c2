// Package server exposes the HTTP API: job submission and lifecycle
// endpoints, media retrieval, health probes and the Prometheus metrics
// endpoint.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/fjacquet/mediagen/internal/models"
	"github.com/fjacquet/mediagen/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 120 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 10 * time.Second
)

// HealthChecker reports the readiness of one dependency.
type HealthChecker func(ctx context.Context) error

// Server wraps the HTTP listener and its routes.
type Server struct {
	cfg      models.Config
	jobs     *service.JobService
	media    *service.MediaService
	validate *validator.Validate
	checks   map[string]HealthChecker
	http     *http.Server
}

// New creates the API server. checks maps dependency names (database,
// broker) to their readiness probes.
func New(cfg models.Config, jobs *service.JobService, media *service.MediaService, checks map[string]HealthChecker) *Server {
	s := &Server{
		cfg:      cfg,
		jobs:     jobs,
		media:    media,
		validate: validator.New(),
		checks:   checks,
	}

	s.http = &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      s.routes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Process-Time"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/generate", s.handleCreateJob)
		r.Get("/status/{id}", s.handleJobStatus)
		r.Get("/", s.handleListJobs)
		r.Delete("/{id}", s.handleCancelJob)
	})

	r.Route("/media", func(r chi.Router) {
		r.Get("/{id}", s.handleDownloadMedia)
		r.Get("/{id}/info", s.handleMediaInfo)
		r.Delete("/{id}", s.handleDeleteMedia)
	})

	r.Get("/health", s.handleHealth)
	r.Get("/health/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe runs the server until it fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	log.WithField("address", s.http.Addr).Info("HTTP server listening")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests within the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
