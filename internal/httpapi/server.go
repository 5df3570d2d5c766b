// Package httpapi is the thin HTTP front end over the card engine.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/guard-e/hostel/internal/auth"
	"github.com/guard-e/hostel/internal/hostel/audit"
	"github.com/guard-e/hostel/internal/hostel/engine"
)

// LoginRecorder counts login attempts by outcome.
type LoginRecorder interface {
	ObserveLogin(outcome string)
}

type Dependencies struct {
	Logger  *slog.Logger
	Addr    string
	Engine  *engine.Engine
	Auth    *auth.Authenticator
	Audit   audit.Store   // optional
	Limiter *LoginLimiter // optional

	HTTPMetrics  HTTPRecorder  // optional
	LoginMetrics LoginRecorder // optional
	Metrics      http.Handler  // optional, served at /metrics
	Health       http.Handler  // optional, served at /healthz
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	engine     *engine.Engine
	auth       *auth.Authenticator
	audit      audit.Store
	logins     LoginRecorder
	now        func() time.Time
}

func NewServer(d Dependencies) (*Server, error) {
	if d.Engine == nil || d.Auth == nil {
		return nil, errors.New("httpapi: engine and authenticator are required")
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		logger: d.Logger.With(slog.String("component", "http")),
		engine: d.Engine,
		auth:   d.Auth,
		audit:  d.Audit,
		logins: d.LoginMetrics,
		now:    time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(s.logger))
	if d.HTTPMetrics != nil {
		r.Use(metricsMiddleware(d.HTTPMetrics))
	}
	r.Use(middleware.Recoverer)

	if d.Health != nil {
		r.Method(http.MethodGet, "/healthz", d.Health)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(d.Limiter.middleware).Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.sessionMiddleware)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)

			r.Get("/cards", s.handleListCards)
			r.Post("/cards", s.handleCreateCard)
			r.Route("/cards/{number}", func(r chi.Router) {
				r.Get("/", s.handleViewCard)
				r.Put("/", s.handleUpdateCard)
				r.Delete("/", s.handleDeleteCard)
				r.Post("/lock", s.handleLockCard)
				r.Post("/activate", s.handleActivateCard)
				r.Post("/dumps", s.handleRefreshDumps)
			})

			r.Get("/audit", s.handleAudit)
		})
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
