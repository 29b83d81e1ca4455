// Package app builds the long-lived services of one crawl run from
// configuration and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/hotel-directory-crawler/internal/api"
	"github.com/JakeFAU/hotel-directory-crawler/internal/clock/system"
	"github.com/JakeFAU/hotel-directory-crawler/internal/config"
	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
	"github.com/JakeFAU/hotel-directory-crawler/internal/dataset"
	"github.com/JakeFAU/hotel-directory-crawler/internal/dispatcher"
	"github.com/JakeFAU/hotel-directory-crawler/internal/extract"
	"github.com/JakeFAU/hotel-directory-crawler/internal/failures"
	"github.com/JakeFAU/hotel-directory-crawler/internal/frontier"
	"github.com/JakeFAU/hotel-directory-crawler/internal/id/uuid"
	"github.com/JakeFAU/hotel-directory-crawler/internal/metrics"
	"github.com/JakeFAU/hotel-directory-crawler/internal/progress"
	"github.com/JakeFAU/hotel-directory-crawler/internal/worker"
)

// Options carries dependencies that are not part of the configuration file.
type Options struct {
	// Registerer receives the progress collectors. Nil means the default
	// Prometheus registry.
	Registerer prometheus.Registerer
	// Fetcher replaces the configured fetcher.
	Fetcher crawler.Fetcher
	Clock   crawler.Clock
}

// App holds everything one crawl run needs. Build it with New, call Run
// once and Close afterwards.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	runID      string
	runBytes   [16]byte
	clock      crawler.Clock
	frontier   *frontier.Frontier
	dispatcher *dispatcher.Dispatcher
	sink       *dataset.Sink
	failures   *failures.Handler
	hub        *progress.Hub
	server     *api.Server

	// closers release resources in reverse order of acquisition.
	closers []func(context.Context) error
}

// New wires the crawl pipeline described by cfg. Any error is a
// *crawler.FatalInitError; resources acquired before the failure are
// released.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger, clock: opts.Clock}
	if a.clock == nil {
		a.clock = system.New()
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, a.release(context.WithoutCancel(ctx)))
			err = &crawler.FatalInitError{Err: err}
		}
	}()

	seeds, err := cfg.Crawler.SeedRequests()
	if err != nil {
		return nil, err
	}

	if a.runID, err = uuid.New().NewID(); err != nil {
		return nil, err
	}
	if a.runBytes, err = progress.ParseRunID(a.runID); err != nil {
		return nil, err
	}
	a.logger = logger.With(zap.String("run_id", a.runID))

	fetcher := opts.Fetcher
	if fetcher == nil {
		if fetcher, err = a.buildFetcher(); err != nil {
			return nil, err
		}
	}

	registry, err := extract.Default()
	if err != nil {
		return nil, fmt.Errorf("build extractors: %w", err)
	}

	if a.sink, err = a.buildDataset(ctx); err != nil {
		return nil, err
	}
	if a.failures, err = a.buildFailures(ctx); err != nil {
		return nil, err
	}
	if a.hub, err = a.buildProgress(ctx, opts.Registerer); err != nil {
		return nil, err
	}

	tracer, err := a.buildTracer(ctx)
	if err != nil {
		return nil, err
	}

	a.frontier = frontier.New(frontier.Config{MaxRequests: cfg.Crawler.MaxRequests})
	if err := a.frontier.AddSeeds(seeds); err != nil {
		return nil, fmt.Errorf("seed frontier: %w", err)
	}

	policy := crawler.NewExponentialRetryPolicy(
		cfg.Crawler.MaxRetries,
		cfg.Crawler.BackoffInitial,
		cfg.Crawler.BackoffMax,
	)
	counters := &worker.Counters{}
	workers := make([]*worker.Worker, cfg.Crawler.Concurrency)
	for i := range workers {
		workers[i] = worker.New(
			a.frontier,
			fetcher,
			registry,
			a.sink,
			a.failures,
			policy,
			a.clock,
			a.hub,
			counters,
			worker.Config{PageDelay: cfg.Crawler.PageDelay, RunID: a.runBytes, Tracer: tracer},
			a.logger.Named("worker").With(zap.Int("index", i)),
		)
	}
	a.dispatcher = dispatcher.New(a.frontier, workers, counters, a.failures, a.clock, a.logger.Named("dispatcher"))

	if cfg.Server.Addr != "" {
		a.server = api.NewServer(a.runID, a.dispatcher, a.failures, a.logger.Named("api"))
	}

	a.logger.Info("Crawler initialized.",
		zap.Int("seeds", len(seeds)),
		zap.Int("concurrency", cfg.Crawler.Concurrency),
		zap.String("fetcher", cfg.Fetcher.Kind),
	)
	return a, nil
}

// RunID returns the identifier stamped on this run's events and failure rows.
func (a *App) RunID() string {
	return a.runID
}

// Run crawls until the frontier drains, the request budget is spent or ctx
// is canceled. Failed requests do not make Run fail.
func (a *App) Run(ctx context.Context) (dispatcher.Summary, error) {
	start := a.clock.Now()
	a.hub.Emit(progress.Event{RunID: a.runBytes, TS: start, Kind: progress.KindRunStart})

	serverDone := make(chan error, 1)
	serverCtx, stopServer := context.WithCancel(context.WithoutCancel(ctx))
	defer stopServer()
	if a.server != nil {
		go func() { serverDone <- a.server.Serve(serverCtx, a.cfg.Server.Addr) }()
	} else {
		serverDone <- nil
	}

	summary := a.dispatcher.Run(ctx)

	a.hub.Emit(progress.Event{
		RunID: a.runBytes,
		TS:    a.clock.Now(),
		Kind:  progress.KindRunDone,
		Dur:   summary.Duration,
		Note:  fmt.Sprintf("records=%d failures=%d", summary.Records, summary.Failures),
	})

	a.logger.Info("Crawler finished.",
		zap.Int("dispatched", summary.Dispatched),
		zap.Int64("processed", summary.Processed),
		zap.Int64("records", summary.Records),
		zap.Int64("retries", summary.Retries),
		zap.Int64("failures", summary.Failures),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("abandoned", summary.Abandoned),
		zap.Bool("stopped", summary.Stopped),
		zap.Duration("duration", summary.Duration),
	)

	if a.server != nil {
		a.server.MarkFinished()
	}
	stopServer()
	if err := <-serverDone; err != nil {
		return summary, fmt.Errorf("ops server: %w", err)
	}
	return summary, nil
}

// Close flushes the dataset and releases every store, client and browser.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("Shutting down crawler services...")
	err := a.release(ctx)
	_ = a.logger.Sync()
	return err
}

func (a *App) release(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}
