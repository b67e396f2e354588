// Package server wires the store, repositories, services, handlers and
// middleware together and runs the HTTP server.
//
// This is the composition root: every dependency is built in New and handed
// down, so no other package constructs its own collaborators.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"

	"github.com/slapit/slapit-api/internal/config"
	"github.com/slapit/slapit-api/internal/handler"
	"github.com/slapit/slapit-api/internal/metrics"
	"github.com/slapit/slapit-api/internal/middleware"
	"github.com/slapit/slapit-api/internal/repository/rowstore"
	"github.com/slapit/slapit-api/internal/service"
	"github.com/slapit/slapit-api/internal/store"
	"github.com/slapit/slapit-api/internal/store/postgrest"
	"github.com/slapit/slapit-api/internal/store/sqlstore"
)

// Server owns the store connection and the reconciler schedule; both are
// released when Start returns.
type Server struct {
	router     *chi.Mux
	config     config.Config
	logger     *slog.Logger
	store      store.Store
	reconciler *service.Reconciler
	cron       *cron.Cron
}

// New opens the configured store and builds the router. The cron schedule
// is not started until Start.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.StoreDriver, err)
	}
	return NewWithStore(cfg, st, logger)
}

// NewWithStore builds a Server over an already opened store.
func NewWithStore(cfg config.Config, st store.Store, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  st,
	}
	s.setupRoutes()

	if cfg.ReconcileSchedule != "" {
		if err := s.scheduleReconciler(); err != nil {
			st.Close()
			return nil, err
		}
	}
	return s, nil
}

func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		return sqlstore.OpenSQLite(cfg.DBPath)
	case config.DriverPostgres:
		return sqlstore.OpenPostgres(cfg.DatabaseURL)
	case config.DriverPostgREST:
		return postgrest.New(postgrest.Config{URL: cfg.SupabaseURL, Key: cfg.SupabaseKey})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes registers middleware and routes.
//
// Middleware order: RequestID and RealIP first so the logger and the rate
// limiter see them, Recoverer inside the logger so a panic is logged as 500.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(metrics.InstrumentHandler)
	s.router.Use(middleware.CORS(s.config.AllowedOrigins))

	repos := rowstore.New(s.store)
	registry := service.NewCommunityService(repos.Communities(), repos.Memberships(), repos.Profiles(), s.logger)
	ledger := service.NewProfileService(repos.Profiles(), s.logger)
	intake := service.NewStickerService(repos.Stickers(), ledger, s.logger)
	s.reconciler = service.NewReconciler(repos.Communities(), repos.Memberships(), repos.Profiles(), s.logger)

	communities := handler.NewCommunityHandler(registry, s.logger)
	profiles := handler.NewProfileHandler(ledger, intake, s.logger)
	stickers := handler.NewStickerHandler(intake, s.logger)
	health := handler.NewHealthHandler(s.store, s.reconciler, s.config.Version, s.logger)

	// Probes and scrapes are not rate limited.
	s.router.Get("/", health.HandleRoot)
	s.router.Get("/health", health.HandleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(s.config.RateLimitRPS, s.config.RateLimitBurst, s.logger))

		r.Route("/communities", func(r chi.Router) {
			r.Post("/", communities.HandleCreate)
			r.Get("/{id}", communities.HandleGet)
			r.Post("/{id}/join", communities.HandleJoin)
			r.Delete("/{id}/quit", communities.HandleQuit)
			r.Delete("/{id}/kick", communities.HandleKick)
			r.Get("/{id}/users", communities.HandleListMembers)
		})

		r.Route("/stickers", func(r chi.Router) {
			r.Post("/", stickers.HandleCreate)
			r.Get("/{id}", stickers.HandleGet)
			r.Delete("/{id}", stickers.HandleDelete)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/profiles", profiles.HandleCreate)
			r.Get("/{auth_id}", profiles.HandleGet)
			r.Put("/{auth_id}", profiles.HandleUpdate)
			r.Get("/{auth_id}/stickers", profiles.HandleListStickers)
		})

		r.Post("/admin/reconcile", health.HandleReconcile)
	})
}

func (s *Server) scheduleReconciler() error {
	cl := cronLogger{s.logger.With(slog.String("component", "cron"))}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	_, err := s.cron.AddFunc(s.config.ReconcileSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.reconciler.Run(ctx); err != nil {
			s.logger.Warn("scheduled reconciliation failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling reconciler %q: %w", s.config.ReconcileSchedule, err)
	}
	return nil
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests,
// stops the cron schedule and closes the store.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run is Start with the shutdown trigger supplied by the caller.
func (s *Server) Run(ctx context.Context) error {
	defer s.store.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if s.cron != nil {
		s.cron.Start()
		s.logger.Info("reconciler scheduled", slog.String("schedule", s.config.ReconcileSchedule))
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("store", s.config.StoreDriver),
			slog.String("version", s.config.Version),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			runErr = fmt.Errorf("graceful shutdown failed: %w", err)
		} else {
			s.logger.Info("server stopped gracefully")
		}
	}

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	return runErr
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err.Error())...)
}
