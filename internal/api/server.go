package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kerim/docsync/internal/config"
	"github.com/kerim/docsync/internal/session"
	"github.com/kerim/docsync/internal/store"
)

// Server is the HTTP editing surface for docsync. It turns requests into
// content-changed events, flushes, and store reads; reconciliation itself is
// driven by the per-document coalescers.
type Server struct {
	router chi.Router
	mgr    *session.Manager
	st     store.Store
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(mgr *session.Manager, st store.Store, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		mgr: mgr,
		st:  st,
		log: log,
		cfg: cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Route("/api/documents/{docID}", func(r chi.Router) {
			r.Put("/content", s.handleSetContent)
			r.Get("/content", s.handleGetContent)
			r.Post("/flush", s.handleFlush)
			r.Post("/suppress", s.handleSuppress)
			r.Get("/fragments", s.handleFragments)
			r.Get("/nodes", s.handleNodes)
			r.Get("/export", s.handleExport)
			r.Patch("/nodes/{nodeID}", s.handleNodeMetadata)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
