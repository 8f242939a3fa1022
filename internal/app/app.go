// Package app initializes and holds the long-lived services of the audit,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sejmwatch/sejmaudit/internal/api"
	"github.com/sejmwatch/sejmaudit/internal/config"
	"github.com/sejmwatch/sejmaudit/internal/crawl"
	"github.com/sejmwatch/sejmaudit/internal/extract"
	"github.com/sejmwatch/sejmaudit/internal/extract/ocr"
	"github.com/sejmwatch/sejmaudit/internal/extract/raster"
	"github.com/sejmwatch/sejmaudit/internal/fetch"
	"github.com/sejmwatch/sejmaudit/internal/logging"
	"github.com/sejmwatch/sejmaudit/internal/notify"
	"github.com/sejmwatch/sejmaudit/internal/progress"
	"github.com/sejmwatch/sejmaudit/internal/progress/sinks"
	"github.com/sejmwatch/sejmaudit/internal/results"
	"github.com/sejmwatch/sejmaudit/internal/results/postgres"
	"github.com/sejmwatch/sejmaudit/internal/scan"
	"github.com/sejmwatch/sejmaudit/internal/sejm"
	"github.com/sejmwatch/sejmaudit/internal/storage"
)

// App holds the shared, long-lived services. It is built once at startup and
// fails fast if any critical service cannot be initialized.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	tesseract *ocr.Tesseract
	writer    *results.Writer
	store     *postgres.Store
	mirror    *storage.GCSMirror
	notifier  notify.Provider
	hub       *progress.Hub
	runner    *crawl.Runner
	server    *api.Server
}

// New reads configuration and wires every service the audit needs.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.Info("initializing audit services")

	a := &App{cfg: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	logger.Info("audit services initialized")
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg

	// OCR first: a broken Tesseract installation should abort before any
	// network traffic.
	tess, err := ocr.NewTesseract(cfg.OCR.Languages)
	if err != nil {
		return fmt.Errorf("init ocr engine: %w", err)
	}
	a.tesseract = tess
	extractor := extract.New(tess, raster.New(cfg.OCR.DPI), a.logger)

	fetcher, err := fetch.New(fetch.Config{
		Timeout:             cfg.HTTPTimeout(),
		MaxRetries:          cfg.HTTP.MaxRetries,
		RateLimitMaxRetries: cfg.HTTP.RateLimitMaxRetries,
		BackoffInitial:      time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
		BackoffMax:          time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
		RateLimitWait:       time.Duration(cfg.HTTP.RateLimitWaitMs) * time.Millisecond,
		RequestsPerSecond:   cfg.HTTP.RequestsPerSecond,
		ProxyURL:            cfg.HTTP.ProxyURL,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("init http client: %w", err)
	}
	client := sejm.NewClient(cfg.API.BaseURL, fetcher)

	var mirrors []results.Mirror
	if cfg.Output.GCSBucket != "" {
		mirror, err := storage.NewGCSMirror(ctx, cfg.Output.GCSBucket, "segments", a.logger)
		if err != nil {
			return fmt.Errorf("init segment mirror: %w", err)
		}
		a.mirror = mirror
		mirrors = append(mirrors, mirror)
		a.logger.Info("mirroring segments", zap.String("bucket", cfg.Output.GCSBucket))
	}

	var rowSinks []results.Sink
	if cfg.Output.PostgresDSN != "" {
		store, err := postgres.NewStore(ctx, postgres.Config{DSN: cfg.Output.PostgresDSN})
		if err != nil {
			return fmt.Errorf("init finding store: %w", err)
		}
		a.store = store
		rowSinks = append(rowSinks, store)
		a.logger.Info("persisting findings to postgres")
	}

	// Segment names carry a run-unique tag so consecutive runs into the
	// same directory never collide.
	writer, err := results.NewWriter(results.Options{
		Dir:           cfg.Output.Dir,
		BaseName:      "audyt_" + uuid.NewString()[:8],
		FlushInterval: cfg.FlushInterval(),
		FlushEvery:    cfg.Output.FlushEveryProcesses,
		Logger:        a.logger,
		Mirrors:       mirrors,
		Sinks:         rowSinks,
	})
	if err != nil {
		return fmt.Errorf("init result writer: %w", err)
	}
	a.writer = writer

	switch cfg.Notify.Provider {
	case "pubsub":
		notifier, err := notify.NewPubSub(ctx, cfg.Notify.ProjectID, cfg.Notify.TopicID, a.logger)
		if err != nil {
			return fmt.Errorf("init notifier: %w", err)
		}
		a.notifier = notifier
		a.logger.Info("publishing high-risk findings", zap.String("topic", cfg.Notify.TopicID))
	case "noop", "":
		a.notifier = notify.NoOp{}
	default:
		return fmt.Errorf("unknown notify provider %q", cfg.Notify.Provider)
	}

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return fmt.Errorf("init metrics sink: %w", err)
	}
	a.hub = progress.NewHub(
		progress.Config{Logger: a.logger},
		sinks.NewLogSink(a.logger, cfg.Notify.MinRisk, 10),
		promSink,
	)

	runner, err := crawl.NewRunner(crawl.Options{
		API:           client,
		Extractor:     extractor,
		Scorer:        scan.NewScorer(scanOptions(cfg.Scan)),
		Writer:        writer,
		Notifier:      a.notifier,
		Progress:      a.hub,
		Logger:        a.logger,
		Terms:         cfg.API.Terms,
		Workers:       cfg.Crawl.Workers,
		LockedRisk:    cfg.Scan.LockedRisk,
		NotifyMinRisk: cfg.Notify.MinRisk,
	})
	if err != nil {
		return fmt.Errorf("init crawl runner: %w", err)
	}
	a.runner = runner

	if cfg.Server.Enabled {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		a.server = api.NewServer(addr, runner.Snapshot, registry, a.logger)
	}
	return nil
}

func scanOptions(cfg config.ScanConfig) scan.Options {
	return scan.Options{
		Triggers:              cfg.Triggers,
		FuzzyThreshold:        cfg.FuzzyThreshold,
		MatchIncrement:        cfg.MatchIncrement,
		DiffIncrement:         cfg.DiffIncrement,
		CorrelationBonus:      cfg.CorrelationBonus,
		CorrelationCategories: cfg.CorrelationCategories,
	}
}

// Logger returns the shared structured logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Runner returns the crawl runner for this audit run.
func (a *App) Runner() *crawl.Runner {
	return a.runner
}

// Writer returns the checkpointed result writer.
func (a *App) Writer() *results.Writer {
	return a.writer
}

// Server returns the status server, or nil when it is disabled.
func (a *App) Server() *api.Server {
	return a.server
}

// Close shuts the services down in reverse dependency order. Safe to call on
// a partially built App.
func (a *App) Close(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("close progress hub", zap.Error(err))
		}
	}
	if pubsub, ok := a.notifier.(*notify.PubSub); ok {
		if err := pubsub.Close(); err != nil {
			a.logger.Warn("close notifier", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.logger.Warn("close segment mirror", zap.Error(err))
		}
	}
	if a.tesseract != nil {
		if err := a.tesseract.Close(); err != nil {
			a.logger.Warn("close ocr engine", zap.Error(err))
		}
	}
	// Best effort: stderr sync fails on some platforms.
	_ = a.logger.Sync()
}
