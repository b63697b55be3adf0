// Package server exposes the reading queue over HTTP: item CRUD with
// background ingestion, hybrid search, and embedding-space analysis.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"later/internal/config"
	"later/internal/core"
	"later/internal/label"
	"later/internal/logger"
	"later/internal/search"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// ItemStore is the persistence surface the handlers need.
type ItemStore interface {
	CreateItem(ctx context.Context, item *core.Item) error
	GetItem(ctx context.Context, userID, id string) (*core.Item, error)
	ListItems(ctx context.Context, userID string) ([]*core.Item, error)
	DeleteItem(ctx context.Context, userID, id string) error
	SetClientStatus(ctx context.Context, userID, id string, status core.ClientStatus) error
	ItemVectors(ctx context.Context, userID string) ([]core.ItemVector, error)
	Summaries(ctx context.Context, userID string, ids []string) (map[string]string, error)
}

// Searcher runs hybrid retrieval.
type Searcher interface {
	Search(ctx context.Context, req search.Request) ([]core.SearchResult, error)
}

// Runner owns background ingestion goroutines.
type Runner interface {
	Launch(item *core.Item)
	Cancel(id string) bool
}

// Labeler names clusters.
type Labeler interface {
	Label(ctx context.Context, clusters []label.Cluster) []core.ClusterLabel
}

// Server is the HTTP front end.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	store      ItemStore
	searcher   Searcher
	runner     Runner
	labeler    Labeler
	cfg        config.Server
	app        config.App
	searchCfg  config.Search
	log        *slog.Logger
}

// New creates the server and wires its routes. labeler may be nil, which
// disables cluster labelling in the analyze endpoint.
func New(store ItemStore, searcher Searcher, runner Runner, labeler Labeler, cfg *config.Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		store:     store,
		searcher:  searcher,
		runner:    runner,
		labeler:   labeler,
		cfg:       cfg.Server,
		app:       cfg.App,
		searchCfg: cfg.Search,
		log:       logger.Get(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if len(s.cfg.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-User-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Get("/", s.handleListItems)
			r.Post("/", s.handleCreateItem)
			r.Get("/{id}", s.handleGetItem)
			r.Delete("/{id}", s.handleDeleteItem)
			r.Post("/{id}/retry", s.handleRetryItem)
			r.Patch("/{id}/status", s.handleSetStatus)
		})
		r.Get("/search", s.handleSearch)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/labels", s.handleLabels)
	})
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.log.Info("starting http server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Router exposes the mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// userID resolves the acting user: the X-User-ID header when present,
// otherwise the configured single-user default.
func (s *Server) userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return s.app.UserID
}
