// Package app builds the long-lived services of an archive run from
// configuration and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/batch"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/clock/system"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/config"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/convert"
	collyfetcher "github.com/JakeFAU/edgar-exhibit-archiver/internal/fetcher/colly"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/id/uuid"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/ledger"
	pgledger "github.com/JakeFAU/edgar-exhibit-archiver/internal/ledger/postgres"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/publisher"
	gcppublisher "github.com/JakeFAU/edgar-exhibit-archiver/internal/publisher/pubsub"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/registry"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/storage"
	gcsstorage "github.com/JakeFAU/edgar-exhibit-archiver/internal/storage/gcs"
	localstorage "github.com/JakeFAU/edgar-exhibit-archiver/internal/storage/local"
)

// App holds the services one run needs.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	clock      *system.Clock
	registry   *registry.Client
	normalizer *convert.Normalizer
	storage    storage.Store
	ledger     ledger.Store
	publisher  publisher.Publisher

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// Option adjusts how services are built.
type Option func(*options)

type options struct {
	storageOpts []option.ClientOption
	pubsubOpts  []option.ClientOption
}

// WithStorageClientOptions passes extra options to the Cloud Storage client.
func WithStorageClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.storageOpts = append(o.storageOpts, opts...) }
}

// WithPubSubClientOptions passes extra options to the Pub/Sub client.
func WithPubSubClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.pubsubOpts = append(o.pubsubOpts, opts...) }
}

// New builds every service named by cfg. Services already built are closed
// when a later one fails.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger, clock: system.New()}
	logger.Info("building application services",
		zap.String("storage", cfg.Storage.Provider),
		zap.String("ledger", cfg.Ledger.Provider),
		zap.String("publisher", cfg.Publisher.Provider),
		zap.String("renderer", cfg.Convert.Renderer),
	)

	a.registry = a.newRegistry()
	a.normalizer = a.newNormalizer()

	steps := []func(context.Context, options) error{
		a.setupStorage,
		a.setupLedger,
		a.setupPublisher,
	}
	for _, step := range steps {
		if err := step(ctx, o); err != nil {
			if closeErr := a.Close(); closeErr != nil {
				logger.Warn("cleanup after failed build", zap.Error(closeErr))
			}
			return nil, err
		}
	}
	return a, nil
}

func (a *App) newRegistry() *registry.Client {
	transport := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Registry.UserAgent,
		Timeout:   a.cfg.Registry.Timeout,
	})
	a.logger.Debug("registry transport",
		zap.String("user_agent", a.cfg.Registry.UserAgent),
		zap.Duration("timeout", a.cfg.Registry.Timeout),
		zap.Duration("min_interval", a.cfg.Registry.MinInterval),
	)
	return registry.New(transport, registry.NewThrottle(a.cfg.Registry.MinInterval, a.clock), a.clock, registry.Options{
		BaseURL:     a.cfg.Registry.BaseURL,
		DataBaseURL: a.cfg.Registry.DataBaseURL,
		Retry: registry.RetryPolicy{
			MaxAttempts: a.cfg.Registry.MaxAttempts,
			Initial:     a.cfg.Registry.BackoffInitial,
			Max:         a.cfg.Registry.BackoffMax,
		},
		Logger: a.logger.Named("registry"),
	})
}

func (a *App) newNormalizer() *convert.Normalizer {
	if a.cfg.Convert.Renderer != "chrome" {
		return convert.NewNormalizer(nil)
	}
	renderer := convert.NewChromeRenderer(convert.ChromeConfig{Timeout: a.cfg.Convert.ChromeTimeout})
	a.addCloser("chrome renderer", func() error {
		renderer.Close()
		return nil
	})
	a.logger.Info("using chrome renderer", zap.Duration("timeout", a.cfg.Convert.ChromeTimeout))
	return convert.NewNormalizer(renderer)
}

func (a *App) setupStorage(ctx context.Context, o options) error {
	ids := uuid.NewShort()
	switch a.cfg.Storage.Provider {
	case "gcs":
		client, err := gcs.NewClient(ctx, o.storageOpts...)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.addCloser("gcs client", client.Close)
		store, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket:        a.cfg.Storage.GCS.Bucket,
			Parent:        a.cfg.Storage.Parent,
			PublicBaseURL: a.cfg.Storage.GCS.PublicBaseURL,
		}, ids, a.logger.Named("gcs"))
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.storage = store
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCS.Bucket))
	case "local":
		store, err := localstorage.New(localstorage.Config{
			BaseDir: a.cfg.LocalStorageDir(),
			Parent:  a.cfg.Storage.Parent,
		}, ids)
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.storage = store
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.LocalStorageDir()))
	default:
		return &config.ConfigurationError{Key: "storage.provider", Reason: fmt.Sprintf("unknown provider %q", a.cfg.Storage.Provider)}
	}
	return nil
}

func (a *App) setupLedger(ctx context.Context, _ options) error {
	switch a.cfg.Ledger.Provider {
	case "csv":
		a.ledger = ledger.NewCSVStore(a.cfg.ResultPath())
		a.logger.Info("using csv ledger", zap.String("path", a.cfg.ResultPath()))
	case "postgres":
		store, err := pgledger.New(ctx, pgledger.Config{
			DSN:   a.cfg.Ledger.Postgres.DSN,
			Table: a.cfg.Ledger.Postgres.Table,
		})
		if err != nil {
			return fmt.Errorf("postgres ledger init failed: %w", err)
		}
		a.addCloser("postgres ledger", func() error {
			store.Close()
			return nil
		})
		a.ledger = store
		a.logger.Info("using postgres ledger", zap.String("table", a.cfg.Ledger.Postgres.Table))
	default:
		return &config.ConfigurationError{Key: "ledger.provider", Reason: fmt.Sprintf("unknown provider %q", a.cfg.Ledger.Provider)}
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context, o options) error {
	switch a.cfg.Publisher.Provider {
	case "", "noop":
		a.publisher = publisher.Noop{}
	case "pubsub":
		pub, err := gcppublisher.New(ctx, a.cfg.Publisher.PubSub.ProjectID, a.cfg.Publisher.PubSub.Topic, o.pubsubOpts...)
		if err != nil {
			return fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.addCloser("pubsub publisher", pub.Close)
		a.publisher = pub
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Publisher.PubSub.ProjectID),
			zap.String("topic", a.cfg.Publisher.PubSub.Topic),
		)
	default:
		return &config.ConfigurationError{Key: "publisher.provider", Reason: fmt.Sprintf("unknown provider %q", a.cfg.Publisher.Provider)}
	}
	return nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Runner returns a batch runner over the app's services.
func (a *App) Runner() *batch.Runner {
	return batch.New(a.registry, a.normalizer, a.storage, a.ledger, a.publisher, a.clock,
		batch.Config{OutputDir: a.cfg.Run.OutputDir, Resume: a.cfg.Run.Resume},
		a.logger.Named("batch"))
}

// Logger returns the app logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Ledger returns the configured ledger store.
func (a *App) Ledger() ledger.Store {
	return a.ledger
}

// Close releases services in reverse build order. It is safe to call twice.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
