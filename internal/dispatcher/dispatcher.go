// Package dispatcher runs a bounded pool of workers over one crawl.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
	"github.com/JakeFAU/hotel-directory-crawler/internal/frontier"
	"github.com/JakeFAU/hotel-directory-crawler/internal/worker"
)

// errRetryAbandoned is recorded for requests whose retry was pending when
// the crawl stopped.
var errRetryAbandoned = errors.New("retry abandoned: crawl stopped")

// Summary describes a finished run.
type Summary struct {
	Dispatched int           `json:"dispatched"`
	Processed  int64         `json:"processed"`
	Records    int64         `json:"records"`
	Retries    int64         `json:"retries"`
	Failures   int64         `json:"failures"`
	Duplicates int           `json:"duplicates"`
	Abandoned  int           `json:"abandoned"`
	Stopped    bool          `json:"stopped"`
	Duration   time.Duration `json:"duration"`
}

// Dispatcher fans frontier work out to a pool of workers.
type Dispatcher struct {
	frontier *frontier.Frontier
	workers  []*worker.Worker
	counters *worker.Counters
	failures crawler.FailureHandler
	clock    crawler.Clock
	logger   *zap.Logger
}

// New creates a Dispatcher. counters must be the instance shared with the
// workers.
func New(
	front *frontier.Frontier,
	workers []*worker.Worker,
	counters *worker.Counters,
	failures crawler.FailureHandler,
	clock crawler.Clock,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		frontier: front,
		workers:  workers,
		counters: counters,
		failures: failures,
		clock:    clock,
		logger:   logger,
	}
}

// Run starts all workers and blocks until they exit: either the frontier
// drains, the request budget is spent, or ctx is canceled. Requests already
// in flight when ctx ends are finished before Run returns.
func (d *Dispatcher) Run(ctx context.Context) Summary {
	start := d.clock.Now()
	stop := context.AfterFunc(ctx, func() {
		d.logger.Info("stop requested, finishing in-flight requests")
		d.frontier.Stop()
	})
	defer stop()

	var wg sync.WaitGroup
	for i, w := range d.workers {
		wg.Add(1)
		go func(idx int, wk *worker.Worker) {
			defer wg.Done()
			d.logger.Debug("worker started", zap.Int("index", idx))
			wk.Run(ctx)
		}(i, w)
	}
	wg.Wait()
	if ctx.Err() != nil {
		// Workers may exit on ctx before the stop callback has run.
		d.frontier.Stop()
	}

	d.recordAbandoned(context.WithoutCancel(ctx))

	stats := d.frontier.Stats()
	return Summary{
		Dispatched: stats.Dispatched,
		Processed:  d.counters.Processed.Load(),
		Records:    d.counters.Records.Load(),
		Retries:    d.counters.Retries.Load(),
		Failures:   d.counters.Failures.Load(),
		Duplicates: stats.Duplicates,
		Abandoned:  stats.Abandoned,
		Stopped:    stats.Stopped,
		Duration:   d.clock.Now().Sub(start),
	}
}

// Stats exposes the live frontier snapshot.
func (d *Dispatcher) Stats() frontier.Stats {
	return d.frontier.Stats()
}

func (d *Dispatcher) recordAbandoned(ctx context.Context) {
	for _, req := range d.frontier.AbandonedRetries() {
		d.counters.Failures.Add(1)
		failure := crawler.NewFailure(req, errRetryAbandoned, d.clock.Now())
		if err := d.failures.Record(ctx, failure); err != nil {
			d.logger.Error("record abandoned retry failed", zap.String("url", req.URL), zap.Error(err))
		}
	}
}
