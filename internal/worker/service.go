// Package worker provides the incident worker service: the pass pipeline, its
// scheduler and an operational HTTP server.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Meta-project2/RAG-Complaint-2nd/internal/config"
	dbgorm "github.com/Meta-project2/RAG-Complaint-2nd/internal/db/gorm"
	"github.com/Meta-project2/RAG-Complaint-2nd/internal/incident"
	"github.com/Meta-project2/RAG-Complaint-2nd/internal/metrics"
	"github.com/Meta-project2/RAG-Complaint-2nd/internal/pipeline"
	"github.com/Meta-project2/RAG-Complaint-2nd/pkg/similarity"
)

// Service configuration constants
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// ShutdownTimeout bounds the ops server drain when the run context ends.
	ShutdownTimeout = 10 * time.Second
)

// Service is the worker service orchestrator.
type Service struct {
	startTime time.Time

	store     *dbgorm.Store
	runner    *pipeline.Runner
	scheduler *pipeline.Scheduler
	metrics   *metrics.Metrics
	config    *config.Config

	router *chi.Mux
	server *http.Server

	stop   context.CancelFunc
	done   chan struct{}
	logger zerolog.Logger

	version string
	mu      sync.Mutex
}

// NewService connects to the database described by cfg and builds the service.
func NewService(cfg *config.Config, version string, logger zerolog.Logger) (*Service, error) {
	store, err := dbgorm.NewStore(cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	svc, err := New(store, cfg, version, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return svc, nil
}

// New builds the service on an open store. The service owns the store from
// here on and closes it in Shutdown.
func New(store *dbgorm.Store, cfg *config.Config, version string, logger zerolog.Logger) (*Service, error) {
	m := metrics.New()
	if err := m.RegisterDB(store.GetRawDB(), "incidentd"); err != nil {
		return nil, fmt.Errorf("register db metrics: %w", err)
	}

	engine := similarity.NewEngine(cfg.Similarity)
	matcher := incident.NewMatcher(store, engine, cfg.MatcherConfig(), logger)
	clusterer := incident.NewClusterer(store, matcher, cfg.Similarity, cfg.ClustererConfig(), logger)
	syncer := incident.NewSynchronizer(store, logger)
	runner := pipeline.NewRunner(store, matcher, clusterer, syncer, m, cfg.RunnerConfig(), logger)

	svc := &Service{
		version:   version,
		config:    cfg,
		store:     store,
		runner:    runner,
		scheduler: pipeline.NewScheduler(runner, m, cfg.SchedulerConfig(), logger),
		metrics:   m,
		router:    chi.NewRouter(),
		startTime: time.Now(),
		logger:    logger.With().Str("component", "worker").Logger(),
	}

	svc.setupMiddleware()
	svc.setupRoutes()

	if cfg.HTTP.Addr != "" {
		svc.server = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           svc.router,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return svc, nil
}

// setupMiddleware configures HTTP middleware.
func (s *Service) setupMiddleware() {
	s.router.Use(RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(AccessLog(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(DefaultHTTPTimeout))
}

// setupRoutes configures HTTP routes.
func (s *Service) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/version", s.handleVersion)
	s.router.Get("/api/passes/last", s.handleLastPass)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
}

// Handler returns the ops HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Start runs the scheduler and, when configured, the ops server until ctx is
// done, Shutdown is called or the server fails.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return errors.New("worker already started")
	}
	s.stop = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()
	defer close(done)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.scheduler.Start(gctx)
		return nil
	})

	if s.server != nil {
		g.Go(func() error {
			s.logger.Info().Str("addr", s.server.Addr).Msg("Ops server listening")
			if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
			defer cancel()
			return s.server.Shutdown(shutdownCtx)
		})
	}

	s.logger.Info().
		Str("version", s.version).
		Dur("interval", s.config.Scheduler.Interval).
		Int("batch_limit", s.config.Scheduler.BatchLimit).
		Msg("Worker started")

	return g.Wait()
}

// RunOnce runs a single pass outside the loop.
func (s *Service) RunOnce(ctx context.Context) (*pipeline.PassReport, error) {
	return s.scheduler.RunOnce(ctx)
}

// Shutdown stops the loop, waits for Start to return and closes the store.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.mu.Unlock()

	var errs []error
	if stop != nil {
		stop()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("wait for worker: %w", ctx.Err()))
		}
	}

	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.logger.Info().Msg("Worker service shutdown complete")
	return errors.Join(errs...)
}

// Migrate applies pending schema migrations.
func (s *Service) Migrate() error {
	return s.store.Migrate()
}
