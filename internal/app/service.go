package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/trew/PokemonGoMapNotifier/internal/clock"
	"github.com/trew/PokemonGoMapNotifier/internal/config"
	"github.com/trew/PokemonGoMapNotifier/internal/engine"
	"github.com/trew/PokemonGoMapNotifier/internal/enrich"
	"github.com/trew/PokemonGoMapNotifier/internal/gamedata"
	"github.com/trew/PokemonGoMapNotifier/internal/ingest"
	"github.com/trew/PokemonGoMapNotifier/internal/logging"
	"github.com/trew/PokemonGoMapNotifier/internal/metrics"
	"github.com/trew/PokemonGoMapNotifier/internal/notify"
	"github.com/trew/PokemonGoMapNotifier/internal/state"
)

const shutdownTimeout = 10 * time.Second

// Service composes runtime dependencies and process lifecycle.
// Params: resolved config and shared runtime components.
// Returns: runnable notifier service.
type Service struct {
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	engine    *engine.Engine
	manager   *Manager
	registry  *prometheus.Registry
	httpSrv   *http.Server
	natsSub   interface{ Close() error }
	readyFlag atomic.Bool
	clock     clock.Clock
}

// NewService builds service instance from config source.
// Params: context for channel client setup, config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(ctx context.Context, source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}
	return NewServiceWithConfig(ctx, cfg, clk, notify.Options{})
}

// NewServiceWithConfig builds service instance from an already resolved config.
// Params: context, resolved config, clock and channel client options.
// Returns: initialized service or setup error.
func NewServiceWithConfig(ctx context.Context, cfg config.Config, clk clock.Clock, notifyOpts notify.Options) (*Service, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	logger, closeLog, err := logging.New(cfg.Service.Log)
	if err != nil {
		return nil, err
	}
	for _, warning := range cfg.Warnings {
		logger.Warn("configuration warning", "detail", warning)
	}

	lookup, err := loadGameData(cfg.Options.DataDir)
	if err != nil {
		closeLog()
		return nil, err
	}
	dispatcher, err := notify.NewDispatcher(ctx, &cfg, notifyOpts, logger)
	if err != nil {
		closeLog()
		return nil, err
	}

	var geocoder enrich.Geocoder = enrich.NopGeocoder{}
	if cfg.Options.FetchSublocality && cfg.Options.GoogleKey != "" {
		geocoder = enrich.NewGoogleGeocoder(cfg.Options.GoogleKey, cfg.Options.GeocodeRPS, "", logger)
	}

	eng := engine.New(&cfg, engine.Deps{
		Lookup:     lookup,
		Dedup:      state.NewMemoryStore(clk.Now),
		Rosters:    state.NewMemoryRosterStore(),
		Builder:    enrich.NewBuilder(cfg.Options.GoogleKey, geocoder, clk.Now, nil),
		Dispatcher: dispatcher,
		Logger:     logger,
		Now:        clk.Now,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.MustRegister(registry)

	service := &Service{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		engine:   eng,
		manager:  NewManager(eng, cfg.Service.SweepEvery, logger, clk),
		registry: registry,
		clock:    clk,
	}
	service.buildHTTPServer()
	if err := service.buildNATSSubscriber(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}

	logger.Info("notifier configured",
		"rule_sets", len(cfg.RuleSets),
		"raid_sets", len(cfg.RaidSets),
		"targets", len(cfg.Targets),
		"endpoints", len(cfg.Endpoints),
		"trainers", len(cfg.Trainers),
	)
	return service, nil
}

// Handler returns the HTTP router, mainly for in-process tests.
func (s *Service) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run starts HTTP server and dispatch worker, blocking until shutdown.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := s.manager.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("dispatch worker stopped", "error", err.Error())
		}
	}()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "listen", s.cfg.Service.Listen, "webhook_path", s.cfg.Service.WebhookPath)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.readyFlag.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown(workerCancel, workerDone)
	case err := <-errChan:
		_ = s.shutdown(workerCancel, workerDone)
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
		return s.shutdown(workerCancel, workerDone)
	}
}

// shutdown stops ingest first, then lets the worker drain queued envelopes.
// Params: worker cancel callback and worker completion channel.
// Returns: first close error.
func (s *Service) shutdown(workerCancel context.CancelFunc, workerDone <-chan struct{}) error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	if s.natsSub != nil {
		if err := s.natsSub.Close(); err != nil {
			s.logger.Error("nats subscriber close failed", "error", err.Error())
			markErr(fmt.Errorf("nats subscriber close: %w", err))
		}
	}

	s.manager.Close()
	select {
	case <-workerDone:
	case <-ctx.Done():
		s.logger.Warn("dispatch worker drain timed out", "pending", s.manager.Pending())
		workerCancel()
		<-workerDone
	}

	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
func (s *Service) cleanupInitResources() {
	if s.natsSub != nil {
		_ = s.natsSub.Close()
		s.natsSub = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildHTTPServer wires router with webhook, health and metrics endpoints.
func (s *Service) buildHTTPServer() {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get(s.cfg.Service.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	router.Get(s.cfg.Service.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			_, _ = writer.Write([]byte("not-ready"))
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
	})
	router.Method(http.MethodGet, s.cfg.Service.MetricsPath, metrics.Handler(s.registry))
	router.Handle(s.cfg.Service.WebhookPath, ingest.NewHTTPHandler(s.manager, s.cfg.Service.MaxBodyBytes, s.logger))

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Service.Listen,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// buildNATSSubscriber starts JetStream ingest when enabled.
func (s *Service) buildNATSSubscriber() error {
	if !s.cfg.Service.NATS.Enabled {
		return nil
	}
	subscriber, err := ingest.NewNATSSubscriber(s.cfg.Service.NATS, s.manager, s.logger)
	if err != nil {
		return err
	}
	s.natsSub = subscriber
	return nil
}

// loadGameData reads species/move tables from dir, or the embedded defaults.
func loadGameData(dir string) (*gamedata.Lookup, error) {
	if dir == "" {
		return gamedata.LoadDefault()
	}
	lookup, err := gamedata.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load game data from %q: %w", dir, err)
	}
	return lookup, nil
}
