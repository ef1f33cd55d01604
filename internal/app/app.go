// Package app builds the dependency graph for a scrape or transform process
// from configuration and tears it down again.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/matchweek-ingest/internal/api"
	"github.com/JakeFAU/matchweek-ingest/internal/browser"
	"github.com/JakeFAU/matchweek-ingest/internal/capture"
	"github.com/JakeFAU/matchweek-ingest/internal/config"
	"github.com/JakeFAU/matchweek-ingest/internal/coordinator"
	"github.com/JakeFAU/matchweek-ingest/internal/progress"
	progresssinks "github.com/JakeFAU/matchweek-ingest/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/matchweek-ingest/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/matchweek-ingest/internal/publisher/pubsub"
	"github.com/JakeFAU/matchweek-ingest/internal/season"
	"github.com/JakeFAU/matchweek-ingest/internal/sink"
	gcsstorage "github.com/JakeFAU/matchweek-ingest/internal/storage/gcs"
	localstorage "github.com/JakeFAU/matchweek-ingest/internal/storage/local"
	memorystorage "github.com/JakeFAU/matchweek-ingest/internal/storage/memory"
	"github.com/JakeFAU/matchweek-ingest/internal/storage/noop"
	pgstore "github.com/JakeFAU/matchweek-ingest/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/matchweek-ingest/internal/storage/sqlite"
	"github.com/JakeFAU/matchweek-ingest/internal/transform"
)

const shutdownTimeout = 10 * time.Second

// Options override parts of the graph. Zero values use the configured defaults.
type Options struct {
	// Factory replaces the Chrome session factory.
	Factory capture.SessionFactory
	// Registerer receives the progress collectors; nil uses the default registry.
	Registerer prometheus.Registerer
}

// App contains the application's dependencies.
type App struct {
	Config      config.Config
	Logger      *zap.Logger
	Catalog     *season.Catalog
	Blobs       capture.BlobStore
	Sink        *sink.Sink
	Tracker     *progresssinks.Tracker
	Coordinator *coordinator.Coordinator
	Transformer *transform.Transformer

	ledger       capture.Ledger
	ledgerReader api.LedgerReader
	publisher    capture.Publisher
	hub          *progress.Hub
	gcsClient    *storage.Client
	pubsubClient *pubsub.Client
	gcpPublisher *gcppublisher.Publisher
	pgLedger     *pgstore.Ledger
	sqliteLedger *sqlitestore.Ledger
	opsServer    *http.Server
}

// Build creates the application's dependencies. On error everything opened
// so far is closed.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.Catalog, err = season.NewCatalog(cfg.Seasons)
	if err != nil {
		return nil, fmt.Errorf("season catalog init failed: %w", err)
	}
	if err = a.setupStorage(ctx); err != nil {
		return nil, err
	}
	if a.Sink, err = sink.New(a.Blobs, cfg.Storage.Prefix, logger); err != nil {
		return nil, fmt.Errorf("sink init failed: %w", err)
	}
	if err = a.setupLedger(ctx); err != nil {
		return nil, err
	}
	if err = a.setupPublisher(ctx); err != nil {
		return nil, err
	}
	if err = a.setupProgress(opts.Registerer); err != nil {
		return nil, err
	}

	factory := opts.Factory
	if factory == nil {
		if factory, err = a.setupBrowser(); err != nil {
			return nil, err
		}
	}

	a.Coordinator, err = coordinator.New(factory, a.Sink,
		coordinator.Config{TaskTimeout: cfg.TaskTimeout, Topic: cfg.PubSub.TopicName},
		coordinator.WithLogger(logger),
		coordinator.WithLedger(a.ledger),
		coordinator.WithPublisher(a.publisher),
		coordinator.WithProgress(a.hub),
	)
	if err != nil {
		return nil, fmt.Errorf("coordinator init failed: %w", err)
	}
	a.Transformer, err = transform.New(a.Sink, a.Blobs, transform.Config{
		Prefix:      cfg.Storage.Prefix,
		Concurrency: cfg.Transform.Concurrency,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("transform init failed: %w", err)
	}
	return a, nil
}

func (a *App) setupStorage(ctx context.Context) error {
	var err error
	switch a.Config.Storage.Provider {
	case "gcs":
		a.Logger.Info("using GCS storage backend", zap.String("bucket", a.Config.Storage.GCSBucket))
		a.gcsClient, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.Blobs, err = gcsstorage.New(a.gcsClient, gcsstorage.Config{Bucket: a.Config.Storage.GCSBucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
	case "local":
		a.Logger.Info("using local storage backend", zap.String("path", a.Config.Storage.LocalDir))
		a.Blobs, err = localstorage.New(localstorage.Config{BaseDir: a.Config.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
	default:
		a.Logger.Info("using in-memory storage backend")
		a.Blobs = memorystorage.NewBlobStore()
	}
	return nil
}

func (a *App) setupLedger(ctx context.Context) error {
	cfg := a.Config.Ledger
	switch cfg.Driver {
	case "postgres":
		l, err := pgstore.NewLedger(ctx, pgstore.Config{
			DSN:             cfg.DSN,
			Table:           cfg.Table,
			MaxConns:        cfg.MaxConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres ledger init failed: %w", err)
		}
		a.pgLedger = l
		if err := l.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres ledger schema failed: %w", err)
		}
		a.ledger = l
		a.Logger.Info("postgres ledger initialized", zap.String("table", cfg.Table))
	case "sqlite":
		if dir := filepath.Dir(cfg.Path); cfg.Path != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("create ledger dir: %w", err)
			}
		}
		l, err := sqlitestore.Open(ctx, cfg.Path)
		if err != nil {
			return fmt.Errorf("sqlite ledger init failed: %w", err)
		}
		a.sqliteLedger = l
		a.ledger = l
		a.ledgerReader = l
		a.Logger.Info("sqlite ledger initialized", zap.String("path", cfg.Path))
	default:
		a.Logger.Info("ledger disabled")
		a.ledger = noop.Ledger{}
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	cfg := a.Config.PubSub
	if !cfg.Enabled {
		a.Logger.Debug("no Pub/Sub topic configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.gcpPublisher = gcppublisher.New(a.pubsubClient.Topic(cfg.TopicName))
	a.publisher = a.gcpPublisher
	a.Logger.Info("Pub/Sub publisher initialized",
		zap.String("project", cfg.ProjectID),
		zap.String("topic", cfg.TopicName),
	)
	return nil
}

func (a *App) setupProgress(reg prometheus.Registerer) error {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	a.Tracker = progresssinks.NewTracker()
	cfg := a.Config.Progress
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     cfg.BufferSize,
		MaxBatchEvents: cfg.MaxBatchEvents,
		MaxBatchWait:   cfg.MaxBatchWait,
		Logger:         a.Logger.Named("progress_hub"),
	},
		progresssinks.NewLogSink(a.Logger.Named("progress")),
		promSink,
		a.Tracker,
	)
	return nil
}

func (a *App) setupBrowser() (capture.SessionFactory, error) {
	cfg := a.Config.Browser
	if !cfg.Enabled {
		a.Logger.Warn("browser disabled, every scrape task will fail at session start")
		return browser.Noop{}, nil
	}
	factory, err := browser.NewFactory(browser.Config{
		BaseURL:         cfg.BaseURL,
		ExecPath:        cfg.ExecPath,
		Headless:        cfg.Headless,
		UserAgent:       cfg.UserAgent,
		WindowWidth:     cfg.WindowWidth,
		WindowHeight:    cfg.WindowHeight,
		ProfileRoot:     cfg.ProfileRoot,
		StartTimeout:    cfg.StartTimeout,
		PageTimeout:     cfg.PageTimeout,
		SettleDelay:     cfg.SettleDelay,
		RequestInterval: cfg.RequestInterval,
		MinMatches:      cfg.MinMatches,
	}, a.Catalog, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("browser factory init failed: %w", err)
	}
	return factory, nil
}

// Publisher returns the capture notification publisher.
func (a *App) Publisher() capture.Publisher { return a.publisher }

// OpsHandler returns the operator HTTP handler.
func (a *App) OpsHandler() http.Handler {
	return api.NewServer(api.Deps{
		Runs:   a.Tracker,
		Ledger: a.ledgerReader,
		Ready:  a.ready,
		Logger: a.Logger,
	}).Handler()
}

// StartOps serves the operator endpoints on addr until Close. It returns the
// bound address, which differs from addr when addr uses port 0.
func (a *App) StartOps(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", addr, err)
	}
	a.opsServer = &http.Server{
		Handler:           a.OpsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.opsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("ops server error", zap.Error(err))
		}
	}()
	a.Logger.Info("ops server started", zap.String("addr", ln.Addr().String()))
	return ln.Addr().String(), nil
}

func (a *App) ready(ctx context.Context) error {
	// A lookup of a key that never exists exercises the store round trip.
	if _, err := a.Blobs.Exists(ctx, ".readyz"); err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	return nil
}

// Close gracefully shuts down the application. It flushes pending progress
// events before closing stores.
func (a *App) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if a.opsServer != nil {
		if err := a.opsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ops server shutdown: %w", err))
		}
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("progress hub close: %w", err))
		}
	}
	a.closeInfrastructure(&errs)
	if len(errs) > 0 {
		a.Logger.Warn("shutdown completed with errors", zap.Errors("errors", errs))
	} else {
		a.Logger.Debug("shutdown complete")
	}
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure(errs *[]error) {
	if a.gcpPublisher != nil {
		a.gcpPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			*errs = append(*errs, fmt.Errorf("pubsub client close: %w", err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			*errs = append(*errs, fmt.Errorf("gcs client close: %w", err))
		}
	}
	if a.pgLedger != nil {
		a.pgLedger.Close()
	}
	if a.sqliteLedger != nil {
		if err := a.sqliteLedger.Close(); err != nil {
			*errs = append(*errs, fmt.Errorf("sqlite ledger close: %w", err))
		}
	}
}
