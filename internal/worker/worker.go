// Package worker implements the per-request crawl loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
	"github.com/JakeFAU/hotel-directory-crawler/internal/frontier"
	"github.com/JakeFAU/hotel-directory-crawler/internal/metrics"
	"github.com/JakeFAU/hotel-directory-crawler/internal/progress"
)

// Config controls Worker behavior.
type Config struct {
	// PageDelay pauses before every fetch; meant for debugging.
	PageDelay time.Duration
	RunID     [16]byte
	// Tracer starts one span per request. Nil uses the global provider.
	Tracer trace.Tracer
}

const tracerName = "github.com/JakeFAU/hotel-directory-crawler/internal/worker"

// Counters aggregates outcomes across all workers of a run.
type Counters struct {
	Processed atomic.Int64
	Records   atomic.Int64
	Retries   atomic.Int64
	Failures  atomic.Int64
}

// Worker takes requests from the frontier and runs them through
// fetch, extract and persist until the frontier has no more work.
type Worker struct {
	frontier crawler.Frontier
	fetcher  crawler.Fetcher
	registry *crawler.Registry
	sink     crawler.RecordSink
	failures crawler.FailureHandler
	policy   crawler.RetryPolicy
	clock    crawler.Clock
	emitter  progress.Emitter
	counters *Counters
	tracer   trace.Tracer
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker. emitter and counters may be nil.
func New(
	front crawler.Frontier,
	fetcher crawler.Fetcher,
	registry *crawler.Registry,
	sink crawler.RecordSink,
	failures crawler.FailureHandler,
	policy crawler.RetryPolicy,
	clock crawler.Clock,
	emitter progress.Emitter,
	counters *Counters,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if counters == nil {
		counters = &Counters{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Worker{
		frontier: front,
		fetcher:  fetcher,
		registry: registry,
		sink:     sink,
		failures: failures,
		policy:   policy,
		clock:    clock,
		emitter:  emitter,
		counters: counters,
		tracer:   tracer,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run processes requests until the frontier is drained or stopped, or ctx
// ends. A request already taken from the frontier is finished with a
// context detached from ctx cancellation.
func (w *Worker) Run(ctx context.Context) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	for {
		req, err := w.frontier.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, frontier.ErrDrained), errors.Is(err, frontier.ErrStopped):
				w.logger.Debug("worker exiting", zap.Error(err))
			case ctx.Err() != nil:
				w.logger.Debug("worker canceled", zap.Error(err))
			default:
				w.logger.Error("frontier next failed", zap.Error(err))
			}
			return
		}
		w.pause(ctx)
		w.process(context.WithoutCancel(ctx), req)
	}
}

func (w *Worker) pause(ctx context.Context) {
	if w.cfg.PageDelay <= 0 {
		return
	}
	timer := time.NewTimer(w.cfg.PageDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *Worker) process(ctx context.Context, req crawler.Request) {
	ctx, span := w.tracer.Start(ctx, "crawl.request", trace.WithAttributes(
		attribute.String("url.full", req.URL),
		attribute.String("crawl.stage", req.Stage.String()),
		attribute.Int("crawl.attempt", req.Attempt),
	))
	defer span.End()

	start := w.clock.Now()
	w.counters.Processed.Add(1)
	w.emit(progress.KindRequestStart, req, 0, "")
	w.logger.Debug("processing request",
		zap.String("url", req.URL),
		zap.Stringer("stage", req.Stage),
		zap.Int("attempt", req.Attempt),
	)

	_, discovered, err := w.execute(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		w.handleFailure(ctx, req, err, start)
		return
	}
	span.SetAttributes(attribute.Int("crawl.discovered", len(discovered)))
	w.counters.Records.Add(1)
	w.emit(progress.KindRecord, req, 0, "")

	w.enqueue(req, discovered)
	w.emit(progress.KindRequestDone, req, w.clock.Now().Sub(start), "")
	w.frontier.Done(req)
}

func (w *Worker) execute(ctx context.Context, req crawler.Request) (crawler.Record, []crawler.Discovered, error) {
	doc, err := w.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", crawler.ErrFetch, err)
	}
	record, discovered, err := w.registry.Extract(doc, req)
	if err != nil {
		if !errors.Is(err, crawler.ErrExtract) {
			err = fmt.Errorf("%w: %w", crawler.ErrExtract, err)
		}
		return nil, nil, err
	}
	if err := w.sink.Append(ctx, record); err != nil {
		w.logger.Error("append record failed", zap.String("url", req.URL), zap.Error(err))
		return nil, nil, fmt.Errorf("%w: append record: %w", crawler.ErrExtract, err)
	}
	return record, discovered, nil
}

func (w *Worker) enqueue(req crawler.Request, discovered []crawler.Discovered) {
	if len(discovered) == 0 {
		return
	}
	added := 0
	for _, link := range discovered {
		ok, err := w.frontier.AddDiscovered(link.URL, link.Stage, req.UserData, req.URL)
		if err != nil {
			w.logger.Debug("skipping link", zap.String("url", link.URL), zap.String("referrer", req.URL), zap.Error(err))
			continue
		}
		if ok {
			added++
		}
	}
	w.logger.Debug("links enqueued",
		zap.String("url", req.URL),
		zap.Int("discovered", len(discovered)),
		zap.Int("added", added),
	)
}

func (w *Worker) handleFailure(ctx context.Context, req crawler.Request, err error, start time.Time) {
	req.Attempt++
	if w.policy.ShouldRetry(err, req.Attempt) {
		delay := w.policy.Backoff(req.Attempt)
		if w.frontier.Retry(req, delay) {
			w.counters.Retries.Add(1)
			w.emit(progress.KindRequestRetry, req, 0, err.Error())
			w.logger.Info("retrying request",
				zap.String("url", req.URL),
				zap.Stringer("stage", req.Stage),
				zap.Int("attempt", req.Attempt),
				zap.Duration("backoff", delay),
				zap.Error(err),
			)
			return
		}
		w.fail(ctx, req, fmt.Errorf("retry abandoned on stop: %w", err), start)
		return
	}
	w.fail(ctx, req, err, start)
	w.frontier.Done(req)
}

// fail hands req to the failure handler. The frontier slot is released by
// the caller.
func (w *Worker) fail(ctx context.Context, req crawler.Request, err error, start time.Time) {
	w.counters.Failures.Add(1)
	w.emit(progress.KindRequestFailed, req, w.clock.Now().Sub(start), err.Error())
	if recErr := w.failures.Record(ctx, crawler.NewFailure(req, err, w.clock.Now())); recErr != nil {
		w.logger.Error("record failure failed", zap.String("url", req.URL), zap.Error(recErr))
	}
}

func (w *Worker) emit(kind progress.Kind, req crawler.Request, dur time.Duration, note string) {
	if dur < 0 {
		dur = 0
	}
	w.emitter.Emit(progress.Event{
		RunID:   w.cfg.RunID,
		TS:      w.clock.Now(),
		Kind:    kind,
		Stage:   req.Stage,
		URL:     req.URL,
		Attempt: req.Attempt,
		Dur:     dur,
		Note:    note,
	})
}
