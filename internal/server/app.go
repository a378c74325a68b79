// Package server assembles the progress service from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/progress-eta/internal/api"
	"github.com/JakeFAU/progress-eta/internal/clock/system"
	"github.com/JakeFAU/progress-eta/internal/config"
	"github.com/JakeFAU/progress-eta/internal/id/uuid"
	"github.com/JakeFAU/progress-eta/internal/logging"
	"github.com/JakeFAU/progress-eta/internal/metrics"
	"github.com/JakeFAU/progress-eta/internal/policy/ratelimit"
	"github.com/JakeFAU/progress-eta/internal/progress"
	progresssinks "github.com/JakeFAU/progress-eta/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/progress-eta/internal/publisher/pubsub"
	memorystorage "github.com/JakeFAU/progress-eta/internal/storage/memory"
	pgstore "github.com/JakeFAU/progress-eta/internal/storage/postgres"
	"github.com/JakeFAU/progress-eta/internal/store"
	"github.com/JakeFAU/progress-eta/internal/tracker"
)

const publishAttempts = 3

// App contains the application's dependencies.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	registry    *prometheus.Registry
	httpMetrics *metrics.HTTP
	apiServer   *api.Server
	tracker     *tracker.Tracker
	progressHub *progress.Hub
	history     store.SeriesRepository
	pgStore     *pgstore.SeriesStore
	publisher   *gcppublisher.Publisher
	ready       []api.Pinger
}

// Option customizes Build.
type Option func(*App)

// WithLogger skips building a logger from config and uses logger instead.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	app := &App{cfg: cfg}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		logger, err := logging.New(logging.Options{
			Development: cfg.Logging.Development,
			Level:       cfg.Logging.Level,
			File:        cfg.Logging.File,
			MaxSizeMB:   cfg.Logging.MaxSizeMB,
			MaxBackups:  cfg.Logging.MaxBackups,
			MaxAgeDays:  cfg.Logging.MaxAgeDays,
			Compress:    cfg.Logging.Compress,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		app.logger = logger
		zap.ReplaceGlobals(logger)
	}
	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("auth", cfg.Auth.Enabled),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)

	if err := setupMetrics(app); err != nil {
		return nil, err
	}
	if err := setupDatabase(ctx, app); err != nil {
		return nil, err
	}
	if err := setupPublisher(ctx, app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := setupProgress(ctx, app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	app.tracker = tracker.New(
		tracker.Config{
			MaxSeries:      cfg.Tracker.MaxSeries,
			RetainFinished: cfg.Tracker.RetainFinished,
			Precision:      cfg.Estimator.Precision,
		},
		system.New(),
		uuid.New(),
		app.progressHub,
		app.logger,
	)

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		gatherer = app.registry
	}
	var limiter api.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{
			RPS:   cfg.RateLimit.ObservationsPerSecond,
			Burst: cfg.RateLimit.Burst,
		})
		app.logger.Info("observation rate limit enabled",
			zap.Float64("observations_per_second", cfg.RateLimit.ObservationsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
	}
	app.apiServer = api.NewServer(api.Options{
		Tracker:            app.tracker,
		History:            app.history,
		Ready:              app.ready,
		HTTPMetrics:        app.httpMetrics,
		Gatherer:           gatherer,
		ObservationLimiter: limiter,
		Auth:               cfg.Auth,
		RequestTimeout:     cfg.RequestTimeout(),
		Logger:             app.logger,
	})
	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Tracker returns the live series registry.
func (a *App) Tracker() *tracker.Tracker {
	return a.tracker
}

// Run listens on the configured port and blocks until ctx is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		a.closeInfrastructure(ctx)
		return fmt.Errorf("listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln, then drains in-flight requests and closes
// every dependency once ctx is done.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout())
	defer cancel()
	return errors.Join(runErr, a.Close(closeCtx))
}

// Close flushes pending progress events and releases every dependency.
func (a *App) Close(ctx context.Context) error {
	var hubErr error
	if a.progressHub != nil {
		hubErr = a.progressHub.Close(ctx)
		if hubErr != nil {
			a.logger.Warn("progress hub close failed", zap.Error(hubErr))
		}
	}
	a.closeInfrastructure(ctx)
	a.closeObservability()
	a.logger.Info("shutdown complete")
	return hubErr
}

func (a *App) closeInfrastructure(context.Context) {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
		a.publisher = nil
	}
	if a.pgStore != nil {
		a.pgStore.Close()
		a.pgStore = nil
	}
}

func (a *App) closeObservability() {
	// stderr sync fails with EINVAL on some platforms; ignore
	_ = a.logger.Sync()
}

func setupMetrics(app *App) error {
	app.registry = metrics.NewRegistry()
	var err error
	app.httpMetrics, err = metrics.NewHTTP(app.registry)
	if err != nil {
		return fmt.Errorf("http metrics init failed: %w", err)
	}
	return nil
}

func setupDatabase(ctx context.Context, app *App) error {
	if app.cfg.DB.DSN == "" {
		app.logger.Warn("no DSN specified for database, keeping series history in memory",
			zap.Int("max_finished", app.cfg.History.MaxFinished),
		)
		app.history = memorystorage.NewSeriesStore(memorystorage.WithMaxFinished(app.cfg.History.MaxFinished))
		return nil
	}
	var err error
	app.pgStore, err = pgstore.NewSeriesStore(ctx, pgstore.SeriesStoreConfig{
		DSN:             app.cfg.DB.DSN,
		SeriesTable:     app.cfg.DB.SeriesTable,
		SnapshotTable:   app.cfg.DB.SnapshotTable,
		MaxConns:        app.cfg.DB.MaxConns,
		ConnectAttempts: app.cfg.DB.ConnectAttempts,
		Logger:          app.logger.Named("postgres"),
	})
	if err != nil {
		return fmt.Errorf("series store init failed: %w", err)
	}
	if err := app.pgStore.Migrate(ctx); err != nil {
		app.pgStore.Close()
		app.pgStore = nil
		return fmt.Errorf("series store migrate failed: %w", err)
	}
	app.history = app.pgStore
	app.ready = append(app.ready, app.pgStore)
	app.logger.Info("series store initialized",
		zap.String("series_table", app.cfg.DB.SeriesTable),
		zap.String("snapshot_table", app.cfg.DB.SnapshotTable),
	)
	return nil
}

func setupPublisher(ctx context.Context, app *App) error {
	if app.cfg.PubSub.TopicName == "" {
		app.logger.Info("no Pub/Sub topic configured, notifications disabled")
		return nil
	}
	var err error
	app.publisher, err = gcppublisher.Dial(ctx, app.cfg.PubSub.ProjectID, app.cfg.PubSub.TopicName)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return nil
}

func setupProgress(ctx context.Context, app *App) error {
	sinkList := []progress.Sink{
		progresssinks.NewStoreSink(app.history, app.logger.Named("progress_store")),
	}
	if app.cfg.Metrics.Enabled {
		promSink, err := progresssinks.NewPrometheusSink(app.registry)
		if err != nil {
			return fmt.Errorf("progress metrics init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
		app.logger.Debug("added progress metrics sink")
	}
	if app.publisher != nil {
		sinkList = append(sinkList, progresssinks.NewPublishSink(
			app.publisher,
			progresssinks.PublishConfig{
				Topic:    app.cfg.PubSub.TopicName,
				Attempts: publishAttempts,
			},
			app.logger.Named("progress_publish"),
		))
		app.logger.Debug("added progress publish sink")
	}
	if app.cfg.Hub.LogEvents {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
		app.logger.Debug("added progress log sink")
	}
	hubCfg := progress.Config{
		BufferSize:     app.cfg.Hub.BufferSize,
		MaxBatchEvents: app.cfg.Hub.MaxBatchEvents,
		MaxBatchWait:   app.cfg.MaxBatchWait(),
		SinkTimeout:    app.cfg.SinkTimeout(),
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return nil
}
