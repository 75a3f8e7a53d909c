// Package server is the composition root: it builds every dependency,
// wires them together and owns the routing table.
//
// DEPENDENCY GRAPH:
//
//	sqlite.DB ──► NotifyingLists ──► ListService ──► ListHandler
//	                   │
//	                   ▼
//	             event.Relay ──► metrics (list_events_total)
//	                         └─► RedisPublisher (optional, REDIS_ADDR)
//
//	sqlite.DB ──► AuthService ──► AuthHandler
//	TokenService ──► auth gates (RequireAuth / RequireRole)
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/tasklists/internal/auth"
	"github.com/sakif/tasklists/internal/event"
	"github.com/sakif/tasklists/internal/handler"
	"github.com/sakif/tasklists/internal/metrics"
	"github.com/sakif/tasklists/internal/middleware"
	"github.com/sakif/tasklists/internal/model"
	"github.com/sakif/tasklists/internal/repository"
	sqliteRepo "github.com/sakif/tasklists/internal/repository/sqlite"
	"github.com/sakif/tasklists/internal/service"
)

// Config holds server configuration.
type Config struct {
	Port   int
	DBPath string

	JWTSecret string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
	AdminLogins        []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	EventsChannel string
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection and, when configured, the Redis
// client. Close releases both; Start calls it on shutdown.
type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	redis   *redis.Client
	relay   *event.Relay
	metrics *metrics.Metrics
	tokens  *auth.TokenService
	detach  []func()
}

// New creates a Server with the given config.
//
// WIRING ORDER:
//  1. Token service (fails fast on a missing or short JWT_SECRET)
//  2. Database
//  3. Event relay and its listeners (metrics, Redis)
//  4. Services and handlers
//  5. Routes
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		relay:   event.NewRelay(),
		metrics: metrics.New(),
		tokens:  tokens,
	}

	s.detach = append(s.detach, s.metrics.Attach(s.relay))

	if cfg.RedisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		publisher := event.NewRedisPublisher(s.redis, cfg.EventsChannel, logger)
		s.detach = append(s.detach, publisher.Attach(s.relay))
		logger.Info("list events forwarded to redis",
			slog.String("addr", cfg.RedisAddr),
			slog.String("channel", cfg.EventsChannel),
		)
	}

	s.setupRoutes()

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /api/lists        → index    (admin)
//	GET    /api/lists/mine   → mine     (authenticated)
//	GET    /api/lists/{id}   → show     (admin)
//	POST   /api/lists        → create   (authenticated)
//	PUT    /api/lists/{id}   → update   (authenticated)
//	PATCH  /api/lists/{id}   → update   (authenticated)
//	DELETE /api/lists/{id}   → destroy  (authenticated)
//
//	POST   /auth/login, /auth/logout
//	GET    /auth/github/login, /auth/github/callback  (when configured)
//	GET    /api/me
//	GET    /healthz, /readyz, /metrics
//
// /api/lists/mine is registered before /api/lists/{id}; chi prefers the
// static segment anyway, so "mine" is never treated as an id.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(s.metrics.Middleware)
	s.router.Use(chimiddleware.Recoverer)

	// === Lists ===
	lists := repository.NewNotifyingLists(s.db, s.relay)
	listHandler := handler.NewListHandler(service.NewListService(lists, s.logger), s.logger)

	// Roles are read from the users table on every request, so SetRole and
	// account removal apply before the token expires.
	requireAuth := auth.RequireAuth(s.tokens, s.db)
	requireAdmin := auth.RequireRole(s.tokens, s.db, model.RoleAdmin)

	s.router.Route("/api/lists", func(r chi.Router) {
		r.With(requireAdmin).Get("/", listHandler.HandleIndex)
		r.With(requireAuth).Get("/mine", listHandler.HandleMine)
		r.With(requireAdmin).Get("/{id}", listHandler.HandleShow)
		r.With(requireAuth).Post("/", listHandler.HandleCreate)
		r.With(requireAuth).Put("/{id}", listHandler.HandleUpdate)
		r.With(requireAuth).Patch("/{id}", listHandler.HandleUpdate)
		r.With(requireAuth).Delete("/{id}", listHandler.HandleDelete)
	})

	// === Auth ===
	authService := service.NewAuthService(
		s.db,
		s.tokens,
		auth.NewPasswordService(),
		s.logger,
		s.config.AdminLogins...,
	)

	var github *auth.GitHubProvider
	if s.config.GitHubClientID != "" && s.config.GitHubClientSecret != "" {
		github = auth.NewGitHubProvider(
			s.config.GitHubClientID,
			s.config.GitHubClientSecret,
			s.config.GitHubCallbackURL,
		)
	}
	authHandler := handler.NewAuthHandler(github, authService, s.tokens.TTL(), s.logger)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		if github != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
	})
	s.router.With(requireAuth).Get("/api/me", authHandler.HandleMe)

	// === Operations ===
	checks := map[string]handler.Check{"database": s.db.Ping}
	if s.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return s.redis.Ping(ctx).Err() }
	}
	health := handler.NewHealthHandler(checks)
	s.router.Get("/healthz", health.HandleLiveness)
	s.router.Get("/readyz", health.HandleReadiness)
	s.router.Handle("/metrics", s.metrics.Handler())
}

// Handler returns the fully wired router. Tests serve it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Relay returns the event relay so in-process code can subscribe to
// "save", "remove", "save:<id>" and "remove:<id>".
func (s *Server) Relay() *event.Relay {
	return s.relay
}

// Close detaches the event listeners and releases the database and Redis
// connections.
func (s *Server) Close() error {
	for _, detach := range s.detach {
		detach()
	}
	s.detach = nil

	var errs []error
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing redis: %w", err))
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	return errors.Join(errs...)
}

// Start starts the HTTP server and blocks until SIGINT/SIGTERM.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait up to 30s for in-flight requests
//  3. Close the database and Redis connections
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing server resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.Bool("github", s.config.GitHubClientID != ""),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
