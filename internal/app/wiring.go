package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/hotel-directory-crawler/internal/config"
	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
	"github.com/JakeFAU/hotel-directory-crawler/internal/dataset"
	"github.com/JakeFAU/hotel-directory-crawler/internal/failures"
	collyfetcher "github.com/JakeFAU/hotel-directory-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/hotel-directory-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/hotel-directory-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/hotel-directory-crawler/internal/policy/robots"
	"github.com/JakeFAU/hotel-directory-crawler/internal/progress"
	"github.com/JakeFAU/hotel-directory-crawler/internal/progress/sinks"
	recordpub "github.com/JakeFAU/hotel-directory-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/hotel-directory-crawler/internal/storage/gcs"
	"github.com/JakeFAU/hotel-directory-crawler/internal/storage/local"
	"github.com/JakeFAU/hotel-directory-crawler/internal/storage/postgres"
	"github.com/JakeFAU/hotel-directory-crawler/internal/telemetry"
)

func (a *App) buildFetcher() (crawler.Fetcher, error) {
	cfg := a.cfg
	var fetcher crawler.Fetcher
	switch cfg.Fetcher.Kind {
	case config.FetcherHeadless:
		browser, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.Fetcher.Timeout,
			WaitVisible:       cfg.Headless.WaitVisible,
		})
		if err != nil {
			return nil, fmt.Errorf("start headless fetcher: %w", err)
		}
		a.onClose(func(context.Context) error {
			browser.Close()
			return nil
		})
		fetcher = browser
	default:
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.Fetcher.Timeout,
		})
	}

	if cfg.Crawler.RespectRobots {
		enforcer := robots.New(robots.Config{UserAgent: cfg.Crawler.UserAgent}, a.logger.Named("robots"))
		fetcher = robots.Wrap(fetcher, enforcer)
	}
	if cfg.Crawler.RequestsPerSecond > 0 {
		fetcher = ratelimit.Wrap(fetcher, ratelimit.New(ratelimit.Config{RPS: cfg.Crawler.RequestsPerSecond}))
	}
	return fetcher, nil
}

func (a *App) buildDataset(ctx context.Context) (_ *dataset.Sink, err error) {
	cfg := a.cfg.Dataset
	var stores []dataset.LineStore
	var notifier dataset.Notifier
	// Until the sink owns them, partially built outputs are closed here.
	defer func() {
		if err == nil {
			return
		}
		for _, s := range stores {
			err = errors.Join(err, s.Close(ctx))
		}
		if notifier != nil {
			err = errors.Join(err, notifier.Close(ctx))
		}
	}()

	if cfg.Path != "" {
		file, err := local.New(local.Config{Path: cfg.Path})
		if err != nil {
			return nil, fmt.Errorf("open dataset file: %w", err)
		}
		stores = append(stores, file)
		a.logger.Info("Writing dataset", zap.String("uri", file.URI()))
	}

	if cfg.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.onClose(func(context.Context) error { return client.Close() })
		object, err := gcs.New(context.WithoutCancel(ctx), client, gcs.Config{
			Bucket: cfg.GCSBucket,
			Object: cfg.GCSObject,
		})
		if err != nil {
			return nil, fmt.Errorf("open dataset object: %w", err)
		}
		stores = append(stores, object)
		a.logger.Info("Exporting dataset", zap.String("uri", object.URI()))
	}

	if cfg.PubSubProject != "" {
		pub, err := recordpub.Open(ctx, cfg.PubSubProject, cfg.PubSubTopic)
		if err != nil {
			return nil, fmt.Errorf("open record topic: %w", err)
		}
		notifier = pub
		a.logger.Info("Publishing records", zap.String("topic", cfg.PubSubTopic))
	}

	if len(stores) == 0 {
		a.logger.Warn("No dataset output configured; records are only counted")
	}

	sink := dataset.New(dataset.Config{Buffer: cfg.Buffer, Logger: a.logger.Named("dataset")}, notifier, stores...)
	a.onClose(func(ctx context.Context) error {
		if err := sink.Close(ctx); err != nil {
			return fmt.Errorf("close dataset: %w", err)
		}
		a.logger.Info("Dataset closed", zap.Int64("records", sink.Written()))
		return nil
	})
	return sink, nil
}

func (a *App) buildFailures(ctx context.Context) (*failures.Handler, error) {
	cfg := a.cfg.Failures
	var stores []failures.Store

	if cfg.Path != "" {
		file, err := local.New(local.Config{Path: cfg.Path})
		if err != nil {
			return nil, fmt.Errorf("open failure log: %w", err)
		}
		a.onClose(file.Close)
		stores = append(stores, failures.NewJSONLines(file))
	}

	if cfg.PostgresDSN != "" {
		pg, err := postgres.NewFailureStore(ctx, postgres.FailureStoreConfig{
			DSN:   cfg.PostgresDSN,
			Table: cfg.Table,
			RunID: a.runID,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error {
			pg.Close()
			return nil
		})
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		stores = append(stores, failures.StoreFunc(pg.Insert))
	}

	return failures.NewHandler(a.logger.Named("failures"), stores...), nil
}

func (a *App) buildProgress(ctx context.Context, reg prometheus.Registerer) (*progress.Hub, error) {
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("register progress metrics: %w", err)
	}
	hub := progress.NewHub(progress.Config{
		BaseContext: context.WithoutCancel(ctx),
		Logger:      a.logger.Named("progress"),
	}, sinks.NewLogSink(a.logger.Named("progress")), promSink)
	a.onClose(hub.Close)
	return hub, nil
}

func (a *App) buildTracer(ctx context.Context) (trace.Tracer, error) {
	cfg := a.cfg.Telemetry
	if !cfg.Enabled {
		return nil, nil
	}
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: cfg.ServiceName,
		Version:     cfg.Version,
		ProjectID:   cfg.ProjectID,
		SampleRatio: cfg.SampleRatio,
	})
	if err != nil {
		return nil, err
	}
	a.onClose(func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer provider: %w", err)
		}
		return nil
	})
	return tp.Tracer("github.com/JakeFAU/hotel-directory-crawler/internal/worker"), nil
}
