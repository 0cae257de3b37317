// Package app wires the service's long-lived dependencies and runs the
// HTTP server and delivery pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/JakeFAU/progressd/internal/api"
	"github.com/JakeFAU/progressd/internal/config"
	"github.com/JakeFAU/progressd/internal/dispatcher"
	"github.com/JakeFAU/progressd/internal/hash/sha256"
	taskid "github.com/JakeFAU/progressd/internal/id/uuid"
	"github.com/JakeFAU/progressd/internal/logging"
	"github.com/JakeFAU/progressd/internal/policy/ratelimit"
	"github.com/JakeFAU/progressd/internal/policy/simple"
	memorypublisher "github.com/JakeFAU/progressd/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/progressd/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/progressd/internal/queue/memory"
	"github.com/JakeFAU/progressd/internal/registry"
	"github.com/JakeFAU/progressd/internal/registry/sinks"
	gcsstorage "github.com/JakeFAU/progressd/internal/storage/gcs"
	localstorage "github.com/JakeFAU/progressd/internal/storage/local"
	memoryStorage "github.com/JakeFAU/progressd/internal/storage/memory"
	pgstore "github.com/JakeFAU/progressd/internal/storage/postgres"
	"github.com/JakeFAU/progressd/internal/store"
	"github.com/JakeFAU/progressd/internal/telemetry"
	"github.com/JakeFAU/progressd/internal/worker"
	"go.uber.org/zap"
)

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	registry        *registry.Registry
	dispatch        *dispatcher.Dispatcher
	queue           *queueMemory.Queue
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storageClient   *storage.Client
	taskRepo        store.TaskRepository
	tracerShutdown  func(context.Context) error
	metricShutdown  func(context.Context) error
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Define a struct for logging only non-sensitive config fields
	type SanitizedConfig struct {
		ServerPort      int    `json:"server_port"`
		StorageProvider string `json:"storage_provider,omitempty"`
		Workers         int    `json:"workers,omitempty"`
	}
	safeCfg := SanitizedConfig{
		ServerPort:      cfg.Server.Port,
		StorageProvider: cfg.Storage.Provider,
		Workers:         cfg.Delivery.Workers,
	}
	logger.Info("Creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Registry exposes the task registry for embedded use.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The delivery pipeline must outlive the signal context: workers stop by
	// draining the closed queue during Close, not by cancellation.
	pipelineCtx := context.WithoutCancel(ctx)
	go func() {
		a.logger.Info("dispatcher started")
		a.dispatch.Run(pipelineCtx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application. The registry stops accepting
// tasks first, then the queue closes so the workers drain buffered records
// before the sinks and clients are released.
func (a *App) Close(ctx context.Context) error {
	if a.registry != nil {
		a.registry.Close()
	}
	if a.queue != nil {
		a.queue.Close()
	}
	if a.dispatch != nil {
		if err := a.dispatch.Wait(ctx); err != nil {
			a.logger.Warn("dispatcher drain incomplete", zap.Error(err))
		}
	}
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.taskRepo != nil {
		if pgRepo, ok := a.taskRepo.(*pgstore.TaskStore); ok {
			pgRepo.Close()
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	if a.metricShutdown != nil {
		if err := a.metricShutdown(ctx); err != nil {
			a.logger.Warn("metric shutdown failed", zap.Error(err))
		}
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}

	// Initialize tracing
	tp, mp, err := telemetry.InitTelemetry(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown
	app.metricShutdown = mp.Shutdown

	app.logger.Info("building application dependencies")

	archive, err := setupArchive(ctx, app)
	if err != nil {
		return nil, err
	}

	if err = setupDatabase(ctx, app); err != nil {
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	app.queue = queueMemory.NewQueue(cfg.Delivery.QueueDepth)
	app.registry = registry.New(registry.Config{
		EnqueueTimeout: cfg.EnqueueTimeout(),
		RetainFinished: cfg.Registry.RetainFinished,
		Logger:         logger.Named("registry"),
	}, app.queue, taskid.New())

	app.dispatch, err = setupDispatcher(app, archive, publisher)
	if err != nil {
		return nil, err
	}

	var policy api.ReportPolicy
	if cfg.RateLimit.Enabled {
		policy = ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RateLimit.DefaultRPS,
			DefaultBurst: cfg.RateLimit.DefaultBurst,
		})
		app.logger.Info("rate limiter enabled",
			zap.Float64("default_rps", cfg.RateLimit.DefaultRPS),
			zap.Int("default_burst", cfg.RateLimit.DefaultBurst),
		)
	} else {
		policy = simple.New()
		app.logger.Info("rate limiter disabled, using simple policy")
	}

	app.apiServer = api.NewServer(
		app.registry,
		policy,
		app.taskRepo,
		*cfg,
		logger.Named("api"),
	)

	return app, nil
}

func setupArchive(ctx context.Context, app *App) (store.ReportArchive, error) {
	var archive store.ReportArchive
	var err error
	switch app.cfg.Storage.Provider {
	case "gcs":
		app.logger.Info("using GCS report archive")
		app.storageClient, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		archive, err = gcsstorage.New(app.storageClient, gcsstorage.Config{
			Bucket: app.cfg.Storage.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs report store init failed: %w", err)
		}
		app.logger.Debug("GCS report archive", zap.String("bucket", app.cfg.Storage.Bucket))
	case "local":
		app.logger.Info("using local report archive")
		archive, err = localstorage.New(app.cfg.Storage.Local)
		if err != nil {
			return nil, fmt.Errorf("local report store init failed: %w", err)
		}
		app.logger.Debug("local report archive", zap.String("path", app.cfg.Storage.Local.BaseDir))
	default:
		app.logger.Info("using in-memory report archive")
		archive = memoryStorage.NewReportStore()
	}
	return archive, nil
}

func setupDatabase(ctx context.Context, app *App) error {
	if app.cfg.Database.DSN == "" {
		app.logger.Warn("No DSN specified for database, using in-memory task history repository")
		app.taskRepo = memoryStorage.NewTaskStore()
		return nil
	}
	repo, err := pgstore.NewTaskStore(ctx, pgstore.TaskStoreConfig{
		DSN:             app.cfg.Database.DSN,
		MaxConns:        app.cfg.Database.MaxConns,
		MinConns:        app.cfg.Database.MinConns,
		MaxConnLifetime: app.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("task store init failed: %w", err)
	}
	app.taskRepo = repo
	app.logger.Info("task history repository initialized")
	return nil
}

func setupPublisher(ctx context.Context, app *App) (registry.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("No Pub/Sub project configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = gcppublisher.New(app.pubsubClient)
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.pubsubPublisher, nil
}

func setupDispatcher(
	app *App,
	archive store.ReportArchive,
	publisher registry.Publisher,
) (*dispatcher.Dispatcher, error) {
	hasher := sha256.New()

	sinkList := []registry.Sink{
		sinks.NewLogSink(app.logger.Named("record_log")),
	}
	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return nil, fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)
	if app.taskRepo != nil {
		sinkList = append(sinkList, sinks.NewStoreSink(app.taskRepo, app.logger.Named("record_store")))
		app.logger.Debug("Added task store sink")
	}
	if archive != nil {
		sinkList = append(
			sinkList,
			sinks.NewArchiveSink(archive, hasher, app.cfg.Storage.Prefix, app.logger.Named("record_archive")),
		)
		app.logger.Debug("Added report archive sink")
	}
	if publisher != nil {
		sinkList = append(
			sinkList,
			sinks.NewPublisherSink(publisher, app.cfg.PubSub.TopicName, app.logger.Named("record_publish")),
		)
		app.logger.Debug("Added publisher sink")
	}

	workerCfg := worker.Config{
		SinkTimeout:      app.cfg.SinkTimeout(),
		MaxRetries:       app.cfg.Delivery.MaxRetries,
		RetryBackoffBase: app.cfg.RetryBackoff(),
	}
	app.logger.Info("worker config",
		zap.Duration("sink_timeout", workerCfg.SinkTimeout),
		zap.Int("max_retries", workerCfg.MaxRetries),
		zap.Duration("retry_backoff", workerCfg.RetryBackoffBase),
	)

	var workers []*worker.Worker
	for i := 0; i < app.cfg.Delivery.Workers; i++ {
		workers = append(workers, worker.New(i, app.queue, sinkList, workerCfg, app.logger.Named("worker")))
	}
	return dispatcher.New(workers, sinkList, app.logger.Named("dispatcher")), nil
}
