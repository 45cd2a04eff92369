package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hydrocred/hydrocred/internal/auth"
	"github.com/hydrocred/hydrocred/internal/config"
	"github.com/hydrocred/hydrocred/internal/database"
	"github.com/hydrocred/hydrocred/internal/logger"
	"github.com/hydrocred/hydrocred/internal/metrics"
	"github.com/hydrocred/hydrocred/internal/server/handlers"
	"github.com/hydrocred/hydrocred/internal/server/middleware"
	"github.com/hydrocred/hydrocred/internal/services"
	"github.com/hydrocred/hydrocred/internal/version"
)

// minRequestTimeout is the lower bound of the per-request timeout; claims raise it to twice the settlement timeout.
const minRequestTimeout = 60 * time.Second

type Server struct {
	pool     *pgxpool.Pool
	queries  *database.Queries
	config   *config.ServerEnvironment
	logger   *slog.Logger
	router   *chi.Mux
	services *services.Services
	verifier auth.TokenVerifier
	metrics  *metrics.Metrics

	readiness   handlers.ReadinessChecker
	auditReader handlers.AuditReader
}

func NewServer(
	ctx context.Context,
	pool *pgxpool.Pool,
	queries *database.Queries,
	cfg *config.ServerEnvironment,
	logger *slog.Logger,
) (*Server, error) {
	m := metrics.New()

	svc, err := services.NewServices(ctx, cfg, queries, m, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	verifier, err := auth.NewVerifier(ctx, auth.VerifierConfig{
		Issuer:             cfg.SessionIssuer,
		JWKSURL:            cfg.SessionJWKSURL,
		KeysDir:            cfg.SessionKeysDir,
		SkipJWKCache:       cfg.SkipJWKCache,
		MinRefreshInterval: cfg.JWKCacheMinRefresh,
		MaxRefreshInterval: cfg.JWKCacheMaxRefresh,
		AcceptableSkew:     cfg.SessionAcceptableSkew,
	}, logger)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("failed to initialize session verifier: %w", err)
	}

	server := &Server{
		pool:        pool,
		queries:     queries,
		config:      cfg,
		logger:      logger,
		router:      chi.NewRouter(),
		services:    svc,
		verifier:    verifier,
		metrics:     m,
		readiness:   queries,
		auditReader: svc.AuditLog,
	}

	server.setupMiddleware()
	server.registerRoutes()

	return server, nil
}

// ServeHTTP makes the server usable as an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestTimeout() time.Duration {
	if t := 2 * s.config.SettlementTimeout; t > minRequestTimeout {
		return t
	}
	return minRequestTimeout
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(logger.RequestLogging(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.SecurityHeaders(s.config.Environment))
	s.router.Use(middleware.CORS(s.config.AllowedOrigins))
	s.router.Use(middleware.RateLimit(s.config.RateLimitRPS, s.config.RateLimitBurst))
	s.router.Use(middleware.RequestSizeLimit(s.config.MaxRequestSize))
	s.router.Use(s.metrics.Instrument)
	s.router.Use(chimiddleware.Timeout(s.requestTimeout()))
}

func (s *Server) registerRoutes() {
	s.router.Get("/health/live", handlers.HandleHealth)
	s.router.Get("/health/ready", handlers.HandleReadiness(s.readiness, len(s.services.Certifiers)))
	s.router.Get("/version", handlers.HandleVersion(version.Get()))
	s.router.Handle("/metrics", s.metrics.Handler())

	certifiers := make([]string, 0, len(s.services.Certifiers))
	for _, a := range s.services.Certifiers {
		certifiers = append(certifiers, a.Hex())
	}
	s.router.Get("/.well-known/certification-domain.json", handlers.HandleCertificationDomain(s.config.SigningDomain(), certifiers))

	ctl := s.services.Workflow
	s.router.Route("/v1", func(r chi.Router) {
		r.Use(auth.RequireSession(s.verifier))

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", handlers.HandleSubmitRequest(ctl))
			r.Get("/", handlers.HandleListRequests(ctl))
			r.Get("/{requestId}", handlers.HandleGetRequest(ctl))
			r.Post("/{requestId}/certify", handlers.HandleCertifyRequest(ctl))
			r.Post("/{requestId}/reject", handlers.HandleRejectRequest(ctl))
			r.Post("/{requestId}/claim", handlers.HandleClaimMint(ctl))
			r.Get("/{requestId}/events", handlers.HandleListRequestEvents(ctl, s.auditReader))
		})

		r.Route("/identities", func(r chi.Router) {
			r.Get("/{wallet}", handlers.HandleGetIdentity(s.services.Identities))
			r.Put("/{wallet}/verification", handlers.HandleSetVerification(s.services.Identities))
		})
	})

	if s.config.EnableAdminAPI {
		s.logger.Warn("admin API enabled; identities can be onboarded without a session")
		s.router.Post("/admin/identities", handlers.HandleOnboardIdentity(s.services.Identities))
	}
}

func (s *Server) Start(ctx context.Context) error {
	serverAddr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("service listening",
			slog.String("environment", s.config.Environment),
			slog.String("address", serverAddr),
			slog.String("ledger_mode", s.config.LedgerMode))

		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ServerShutdownTimeout)
	defer shutdownCancel()

	s.logger.Info("shutting down HTTP server")

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.logger.Warn("HTTP server shutdown error",
			slog.String("error", err.Error()))
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// DatabaseShutdown releases the services and closes the connection pool.
func (s *Server) DatabaseShutdown() {
	if s.services != nil {
		s.services.Close()
	}
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("database connection closed")
	}
}
