// Package api serves storyforge repositories over HTTP and WebSocket.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/randalmurphal/storyforge/internal/metrics"
	"github.com/randalmurphal/storyforge/internal/repository"
)

// Server is the storyforge API server.
type Server struct {
	addr    string
	mux     *http.ServeMux
	logger  *slog.Logger
	repos   *repository.Bundle
	metrics *metrics.Recorder

	wsHandler *WSHandler
}

// Config holds server configuration.
type Config struct {
	Addr    string
	Repos   *repository.Bundle
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// New creates a new API server over cfg.Repos.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		addr:    addr,
		mux:     http.NewServeMux(),
		logger:  logger,
		repos:   cfg.Repos,
		metrics: cfg.Metrics,
	}
	s.wsHandler = NewWSHandler(cfg.Repos, logger)
	s.registerRoutes()
	return s
}

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	cors := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET")
			h(w, r)
		}
	}

	s.mux.HandleFunc("GET /api/health", cors(s.handleHealth))

	// Projects
	s.mux.HandleFunc("GET /api/projects", cors(s.handleListProjects))
	s.mux.HandleFunc("GET /api/projects/{id}", cors(s.handleGetProject))
	s.mux.HandleFunc("GET /api/projects/{id}/stories", cors(s.handleListStories))
	s.mux.HandleFunc("GET /api/projects/{id}/scripts", cors(s.handleListScripts))
	s.mux.HandleFunc("GET /api/projects/{id}/characters", cors(s.handleListCharacters))
	s.mux.HandleFunc("GET /api/projects/{id}/distribution", cors(s.handleGetDistribution))

	// Content
	s.mux.HandleFunc("GET /api/scripts/{id}/storyboards", cors(s.handleListStoryboards))
	s.mux.HandleFunc("GET /api/characters/{id}/content", cors(s.handleCharacterContent))
	s.mux.HandleFunc("GET /api/search", cors(s.handleSearch))

	s.mux.Handle("GET /metrics", s.metrics.Handler())
	s.mux.Handle("GET /api/ws", s.wsHandler)
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// StartContext serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) StartContext(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.wsHandler.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", s.addr, "mode", s.repos.Mode.String())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, map[string]string{"status": "ok", "mode": s.repos.Mode.String()})
}
