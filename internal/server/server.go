// Package server provides the HTTP server and routing for Subnet Sentinel.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/subnet-sentinel/internal/database"
	"github.com/aristath/subnet-sentinel/internal/modules/strategy"
	"github.com/aristath/subnet-sentinel/internal/monitor"
)

// Config holds server configuration
type Config struct {
	Log        zerolog.Logger
	Port       int
	MarketDB   *database.DB
	StrategyDB *database.DB
	Optimizer  *strategy.Service
	Repo       *strategy.Repository
	Monitor    *monitor.PerformanceMonitor // optional
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
}

// New creates a new HTTP server with all routes registered.
func New(cfg Config) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	h := NewHandlers(cfg.MarketDB, cfg.StrategyDB, cfg.Optimizer, cfg.Repo, cfg.Monitor, cfg.Log)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
		r.Get("/metrics", h.HandleMetrics)
		r.Get("/strategy", h.HandleStrategy)
		r.Get("/decisions", h.HandleDecisions)
		r.Get("/performance", h.HandlePerformance)
		r.Post("/rebalance", h.HandleForceRebalance)
	})

	return &Server{
		router: r,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: cfg.Log.With().Str("component", "http_server").Logger(),
	}
}

// Start begins listening for HTTP requests. Blocks until shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
