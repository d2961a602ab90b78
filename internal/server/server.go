// Package server provides the HTTP API for pulpit.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/pulpit/internal/config"
	"github.com/hyperjump/pulpit/internal/models"
	"github.com/hyperjump/pulpit/internal/partition"
	"github.com/hyperjump/pulpit/internal/storage"
	"github.com/hyperjump/pulpit/pkg/utils"
	"go.uber.org/zap"
)

// QueryService answers retrieval queries.
type QueryService interface {
	Query(ctx context.Context, req *models.QueryRequest) (*models.QueryResponse, error)
	DefaultPartition() string
}

// Server is the HTTP server for the pulpit API.
type Server struct {
	service  QueryService
	catalog  *partition.Catalog
	registry *partition.Registry
	store    storage.ChunkStore
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	started  time.Time
}

// NewServer creates a server with the given dependencies.
func NewServer(
	service QueryService,
	catalog *partition.Catalog,
	registry *partition.Registry,
	store storage.ChunkStore,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		service:  service,
		catalog:  catalog,
		registry: registry,
		store:    store,
		config:   cfg,
		logger:   utils.OrNop(logger),
		started:  time.Now(),
	}
}

// Router returns the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.config.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.Server.RequestTimeout))
	}
	r.Use(middleware.Compress(5))
	if s.config.Server.RateLimitRPS > 0 {
		limiter := NewRateLimiter(s.config.Server.RateLimitRPS, s.config.Server.RateLimitBurst)
		r.Use(limiter.Middleware)
	}

	r.Post("/api/v1/query", s.handleQuery)
	r.Post("/search", s.handleQuery)
	r.Get("/api/v1/partitions", s.handlePartitions)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	r.Get("/ping", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
