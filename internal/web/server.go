// Package web exposes the batch runner over HTTP: run control, live
// progress, run history and report export.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/csvbatch/internal/config"
	"github.com/JonMunkholm/csvbatch/internal/core"
	mw "github.com/JonMunkholm/csvbatch/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RunLister reads finished runs, newest first.
type RunLister interface {
	List(ctx context.Context, limit int) ([]core.RunSummary, error)
}

// Server is the HTTP front end of a core.Service.
type Server struct {
	service *core.Service
	history RunLister
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer wires routes for service. history may be nil, in which case only
// the last finished run is listed.
func NewServer(service *core.Service, history RunLister, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		history: history,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	timeout := middleware.Timeout(s.requestTimeout())

	s.router.With(timeout).Get("/", s.handleDashboard)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))

		// The event stream outlives any request timeout.
		r.Get("/runs/current/events", s.handleRunEvents)

		r.Group(func(r chi.Router) {
			r.Use(timeout)

			r.Get("/actions", s.handleListActions)

			r.Post("/runs", s.handleStartRun)
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/current", s.handleCurrentRun)
			r.Post("/runs/current/cancel", s.handleCancelRun)
			r.Post("/runs/reset", s.handleResetRun)

			r.Get("/reports/{logName}", s.handleReport)
			r.Get("/reports/{logName}/export", s.handleReportExport)
		})
	})
}

func (s *Server) requestTimeout() time.Duration {
	if s.cfg.Server.RequestTimeout > 0 {
		return s.cfg.Server.RequestTimeout
	}
	return 60 * time.Second
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v with the given status. Encoding errors are only logged
// since the header is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
