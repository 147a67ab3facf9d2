// Package server builds the application's dependencies and owns their lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/aqsharvest/internal/api"
	"github.com/JakeFAU/aqsharvest/internal/aqs"
	"github.com/JakeFAU/aqsharvest/internal/config"
	"github.com/JakeFAU/aqsharvest/internal/harvest"
	"github.com/JakeFAU/aqsharvest/internal/id/uuid"
	"github.com/JakeFAU/aqsharvest/internal/logging"
	"github.com/JakeFAU/aqsharvest/internal/metrics"
	"github.com/JakeFAU/aqsharvest/internal/policy/ratelimit"
	"github.com/JakeFAU/aqsharvest/internal/progress"
	progresssinks "github.com/JakeFAU/aqsharvest/internal/progress/sinks"
	"github.com/JakeFAU/aqsharvest/internal/publisher"
	kafkapublisher "github.com/JakeFAU/aqsharvest/internal/publisher/kafka"
	memorypublisher "github.com/JakeFAU/aqsharvest/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/aqsharvest/internal/publisher/pubsub"
	"github.com/JakeFAU/aqsharvest/internal/storage"
	gcsstorage "github.com/JakeFAU/aqsharvest/internal/storage/gcs"
	localstorage "github.com/JakeFAU/aqsharvest/internal/storage/local"
	memorystorage "github.com/JakeFAU/aqsharvest/internal/storage/memory"
	pgstore "github.com/JakeFAU/aqsharvest/internal/storage/postgres"
	"github.com/JakeFAU/aqsharvest/internal/store"
	"github.com/JakeFAU/aqsharvest/internal/telemetry"
)

// Options carries process-level collaborators that do not come from config.
type Options struct {
	// Stdout receives the console progress line. Defaults to os.Stdout.
	Stdout io.Writer
	// Logger overrides the logger built from config.
	Logger *zap.Logger
	// Clock drives request delays. Defaults to the real clock.
	Clock clockwork.Clock
	// Registerer receives the progress collectors. Defaults to the global registry.
	Registerer prometheus.Registerer
	// SpanExporter overrides the Cloud Trace exporter when tracing is enabled.
	SpanExporter sdktrace.SpanExporter
	// Version is reported on trace resources.
	Version string
}

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	clock  clockwork.Clock

	tracing   *telemetry.Tracing
	client    *aqs.Client
	blobStore storage.BlobStore
	gcsClient *gcs.Client
	manifest  *pgstore.ManifestStore

	notifier        publisher.Publisher
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	kafkaPublisher  *kafkapublisher.Publisher

	progressHub *progress.Hub
	runs        *store.MemoryRuns
	apiServer   *api.Server
	httpServer  *http.Server

	resolver *harvest.Resolver
	runner   *harvest.Runner
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the configuration the App was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Resolver returns the parameter class resolver.
func (a *App) Resolver() *harvest.Resolver { return a.resolver }

// Runner returns the sweep runner.
func (a *App) Runner() *harvest.Runner { return a.runner }

// BlobStore returns the configured CSV destination.
func (a *App) BlobStore() storage.BlobStore { return a.blobStore }

// Build creates the application's dependencies. Credentials must already be
// present in cfg.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg.AQS.Email == "" || cfg.AQS.Key == "" {
		return nil, errors.New("aqs.email and aqs.key are required")
	}
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	metrics.Init()

	app := &App{cfg: cfg, logger: logger, clock: opts.Clock}
	app.logger.Info("building application dependencies",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("notify", cfg.Notify.Backend),
		zap.Bool("manifest", cfg.DB.DSN != ""),
		zap.Bool("tracing", cfg.Tracing.Enabled),
	)

	tracing, err := telemetry.New(ctx, cfg.Tracing, opts.Version, opts.SpanExporter)
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}
	app.tracing = tracing

	app.client = aqs.NewClient(aqs.Config{
		BaseURL:     cfg.AQS.BaseURL,
		Credentials: aqs.Credentials{Email: cfg.AQS.Email, Key: cfg.AQS.Key},
		Timeout:     cfg.AQS.Timeout,
		UserAgent:   cfg.AQS.UserAgent,
		Tracer:      tracing.Tracer(),
	}, ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.AQS.RequestsPerMinute,
		Burst:             cfg.AQS.Burst,
	}), logger.Named("aqs"))

	steps := []func(context.Context) error{
		app.setupStorage,
		app.setupDatabase,
		app.setupPublisher,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			app.closeInfrastructure(ctx)
			return nil, err
		}
	}
	if err := app.setupProgress(ctx, opts); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := app.setupRunner(); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	app.apiServer = api.NewServer(app.runs, app.ready, logger.Named("api"))
	return app, nil
}

func (a *App) setupStorage(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Backend {
	case storage.BackendGCS:
		a.logger.Info("using GCS storage backend")
		a.gcsClient, err = gcs.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.blobStore, err = gcsstorage.New(a.gcsClient, gcsstorage.Config{
			Bucket:       a.cfg.Storage.GCS.Bucket,
			Prefix:       a.cfg.Storage.GCS.Prefix,
			Placeholders: a.cfg.Storage.GCS.Placeholders,
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Debug("GCS storage backend", zap.String("bucket", a.cfg.Storage.GCS.Bucket))
	case storage.BackendLocal:
		a.logger.Info("using local storage backend")
		a.blobStore, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Debug("local storage backend", zap.String("path", a.cfg.Storage.Local.BaseDir))
	default:
		a.logger.Info("using in-memory storage backend; CSV files are discarded at exit")
		a.blobStore = memorystorage.NewBlobStore()
	}
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Debug("no DSN specified for database, skipping file manifest")
		return nil
	}
	var err error
	a.manifest, err = pgstore.NewManifestStore(ctx, pgstore.ManifestStoreConfig{
		DSN:             a.cfg.DB.DSN,
		Table:           a.cfg.DB.Table,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("manifest store init failed: %w", err)
	}
	if a.cfg.DB.EnsureSchema {
		if err := a.manifest.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("manifest schema init failed: %w", err)
		}
	}
	a.logger.Info("manifest store initialized", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	var err error
	switch a.cfg.Notify.Backend {
	case publisher.BackendPubSub:
		a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.Notify.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client init failed: %w", err)
		}
		topic := a.pubsubClient.Topic(a.cfg.Notify.Topic)
		topic.EnableMessageOrdering = a.cfg.Notify.PubSub.EnableOrdering
		a.pubsubPublisher = gcppublisher.New(topic)
		a.notifier = a.pubsubPublisher
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Notify.PubSub.ProjectID),
			zap.String("topic", a.cfg.Notify.Topic),
		)
	case publisher.BackendKafka:
		a.kafkaPublisher, err = kafkapublisher.New(kafkapublisher.Config{
			Brokers: a.cfg.Notify.Kafka.Brokers,
			Topic:   a.cfg.Notify.Topic,
		})
		if err != nil {
			return fmt.Errorf("kafka publisher init failed: %w", err)
		}
		a.notifier = a.kafkaPublisher
		a.logger.Info("Kafka publisher initialized",
			zap.Strings("brokers", a.cfg.Notify.Kafka.Brokers),
			zap.String("topic", a.cfg.Notify.Topic),
		)
	case publisher.BackendMemory:
		a.logger.Info("using in-memory publisher")
		a.notifier = memorypublisher.New()
	default:
		a.logger.Debug("file notifications disabled")
	}
	return nil
}

func (a *App) setupProgress(ctx context.Context, opts Options) error {
	a.runs = store.NewMemoryRuns()
	promSink, err := progresssinks.NewPrometheusSink(opts.Registerer)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewStoreSink(a.runs, a.logger.Named("progress_store")),
		promSink,
	}
	if a.cfg.Progress.Log {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	if a.cfg.Progress.Console {
		sinkList = append(sinkList, progresssinks.NewConsoleSink(opts.Stdout, ""))
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		SinkTimeout:    a.cfg.Progress.SinkTimeout,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Debug("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

func (a *App) setupRunner() error {
	counties, err := a.cfg.Counties()
	if err != nil {
		return err
	}
	opts := harvest.DriverOptions{
		Store:       a.blobStore,
		Source:      a.client,
		State:       a.cfg.Region.State,
		IDs:         uuid.New(),
		NotifyTopic: a.cfg.Notify.Topic,
		Emitter:     a.progressHub,
		Clock:       a.clock,
		Tracer:      a.tracing.Tracer(),
		Logger:      a.logger.Named("driver"),
	}
	// Leave interface fields nil rather than holding typed nil pointers.
	if a.manifest != nil {
		opts.Manifest = a.manifest
	}
	if a.notifier != nil {
		opts.Notifier = a.notifier
	}
	driver, err := harvest.NewDriver(opts)
	if err != nil {
		return fmt.Errorf("driver init failed: %w", err)
	}
	a.resolver = harvest.NewResolver(a.client, harvest.ResolverConfig{
		Workers: a.cfg.Run.ResolveWorkers,
		Delay:   a.cfg.Run.ResolveDelay,
		Clock:   a.clock,
	}, a.logger.Named("resolve"))
	a.runner = harvest.NewRunner(a.resolver, driver, counties, a.logger.Named("runner"))
	a.logger.Debug("runner initialized",
		zap.String("state", a.cfg.Region.State),
		zap.Int("counties", len(counties)),
		zap.Int("resolve_workers", a.cfg.Run.ResolveWorkers),
	)
	return nil
}

func (a *App) ready(ctx context.Context) error {
	if a.manifest != nil {
		return a.manifest.Ping(ctx)
	}
	return nil
}

// Serve starts the status and metrics HTTP server when metrics.addr is set.
// It returns once the listener is bound; the server stops in Close.
func (a *App) Serve(_ context.Context) error {
	if a.cfg.Metrics.Addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", a.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Metrics.Addr, err)
	}
	a.httpServer = &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
		}
	}()
	return nil
}

// Handler exposes the status API for in-process use.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Warn("http server shutdown failed", zap.Error(err))
		}
	}
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	return nil
}

//nolint:gocognit // Shutdown logic is linear but extensive, ignoring complexity check
func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		if st := a.progressHub.Stats(); st.Dropped > 0 {
			a.logger.Warn("progress events dropped during run",
				zap.Int64("emitted", st.Emitted),
				zap.Int64("dropped", st.Dropped),
			)
		}
	}
	if a.pubsubPublisher != nil {
		if err := a.pubsubPublisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.kafkaPublisher != nil {
		if err := a.kafkaPublisher.Close(); err != nil {
			a.logger.Warn("kafka publisher close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.manifest != nil {
		a.manifest.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.tracing.Shutdown(ctx); err != nil {
		a.logger.Warn("tracing shutdown failed", zap.Error(err))
	}
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			a.logger.Warn("metrics textfile write failed", zap.Error(err))
		} else {
			a.logger.Info("metrics written", zap.String("path", path))
		}
	}
	// Sync fails on terminals (ENOTTY/EINVAL); nothing useful to do with it.
	_ = a.logger.Sync()
}
