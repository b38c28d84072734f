package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/org/gitgateway/internal/audit"
	"github.com/org/gitgateway/internal/execer"
	"github.com/org/gitgateway/internal/ghtoken"
	"github.com/org/gitgateway/internal/policy"
	"github.com/org/gitgateway/internal/session"
	"github.com/org/gitgateway/internal/visibility"
	"github.com/rs/zerolog/log"
)

// Config holds server configuration.
type Config struct {
	ListenAddr  string
	TLSCertFile string
	TLSKeyFile  string
	// WorkDir is the working directory for spawned git/gh processes.
	WorkDir string
	// RulesFile, when set, is re-read on admin reload.
	RulesFile string
}

// Server is the gateway API server. All components are constructed by the
// caller and injected; the server only wires HTTP to them.
type Server struct {
	sessions *session.Manager
	engine   *policy.Engine
	resolver *visibility.Resolver
	tokens   *ghtoken.Refresher
	runner   *execer.Runner
	auditor  *audit.Logger
	cfg      Config
	httpSrv  *http.Server
}

// NewServer creates a fully wired Server.
func NewServer(sessions *session.Manager, engine *policy.Engine, resolver *visibility.Resolver, tokens *ghtoken.Refresher, runner *execer.Runner, auditor *audit.Logger, cfg Config) *Server {
	return &Server{
		sessions: sessions,
		engine:   engine,
		resolver: resolver,
		tokens:   tokens,
		runner:   runner,
		auditor:  auditor,
		cfg:      cfg,
	}
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware)
	r.Use(newRateLimiter(100, 200).middleware)

	// Prometheus metrics (unauthenticated)
	r.Handle("/metrics", MetricsHandler())

	// Public routes (no auth required)
	r.Group(func(r chi.Router) {
		r.Get("/v1/health", s.HealthHandler)
	})

	// Authenticated command routes (agent and launcher sessions)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.sessions))

		r.Post("/v1/git/push", s.GitPushHandler)
		r.Post("/v1/git/fetch", s.GitFetchHandler)
		r.Post("/v1/gh/execute", s.GhExecuteHandler)
		r.Post("/v1/gh/pr/create", s.PRCreateHandler)
		r.Post("/v1/gh/pr/comment", s.PRCommentHandler)
		r.Post("/v1/gh/pr/close", s.PRCloseHandler)
	})

	// Lifecycle and admin routes (launcher sessions only)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.sessions))
		r.Use(launcherOnly)

		r.Post("/v1/session/create", s.SessionCreateHandler)
		r.Post("/v1/session/revoke", s.SessionRevokeHandler)
		r.Post("/v1/admin/reload", s.ReloadHandler)
		r.Get("/v1/audit-log", s.AuditLogHandler)
	})

	return r
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	handler := s.BuildRouter()

	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // subprocess runs are slow
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		tlsCfg := &tls.Config{
			MinVersion: tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{
				tls.CurveP256,
				tls.X25519,
			},
		}
		s.httpSrv.TLSConfig = tlsCfg
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTPS server")
		return s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
