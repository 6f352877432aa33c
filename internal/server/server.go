// Package server provides the HTTP API for Kioku.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/library"
	"github.com/hyperjump/kioku/internal/retriever"
	"github.com/hyperjump/kioku/internal/tracker"
)

// Server is the HTTP server for the Kioku API.
type Server struct {
	lib      *library.Library
	retr     *retriever.Retriever
	trackers *tracker.Manager
	embedder embedding.Embedder
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. retr and trackers
// may be nil; the corresponding endpoints then report 501.
func NewServer(
	lib *library.Library,
	retr *retriever.Retriever,
	trackers *tracker.Manager,
	embedder embedding.Embedder,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		lib:      lib,
		retr:     retr,
		trackers: trackers,
		embedder: embedder,
		config:   cfg,
		logger:   logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(middleware.Compress(5))

	r.Get("/api/v1/documents", s.handleListDocuments)
	r.Post("/api/v1/documents/import", s.handleImportDocument)
	r.Get("/api/v1/documents/{id}", s.handleGetDocument)
	r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)
	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/ask", s.handleAsk)
	r.Post("/api/v1/index/rebuild", s.handleRebuildIndex)
	r.Get("/api/v1/workspaces", s.handleListWorkspaces)
	r.Post("/api/v1/workspaces", s.handleCreateWorkspace)
	r.Get("/api/v1/workspaces/{id}", s.handleGetWorkspace)
	r.Delete("/api/v1/workspaces/{id}", s.handleDeleteWorkspace)
	r.Post("/api/v1/workspaces/{id}/reindex", s.handleReindexWorkspace)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
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
