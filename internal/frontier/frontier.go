// Package frontier implements the deduplicating work queue that feeds the
// crawl workers.
package frontier

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
)

var (
	// ErrDrained is returned by Next once no queued, in-flight or pending
	// retry work remains.
	ErrDrained = errors.New("frontier drained")
	// ErrStopped is returned by Next after Stop or once the request budget
	// is spent.
	ErrStopped = errors.New("frontier stopped")
)

// Config controls frontier limits.
type Config struct {
	// MaxRequests caps first-attempt dispatches; zero means unlimited.
	MaxRequests int
}

// Stats is a point-in-time snapshot of the frontier.
type Stats struct {
	Queued         int  `json:"queued"`
	InFlight       int  `json:"in_flight"`
	PendingRetries int  `json:"pending_retries"`
	Seen           int  `json:"seen"`
	Dispatched     int  `json:"dispatched"`
	Duplicates     int  `json:"duplicates"`
	Abandoned      int  `json:"abandoned"`
	Stopped        bool `json:"stopped"`
}

// Frontier is a FIFO of crawl requests deduplicated by canonical URL. All
// methods are safe for concurrent use.
type Frontier struct {
	mu          sync.Mutex
	queue       *list.List
	seen        map[string]struct{}
	retryTimers map[*time.Timer]crawler.Request
	inFlight    int
	dispatched  int
	duplicates  int
	abandoned   int
	maxRequests int
	seeded      bool
	stopped     bool
	// abandonedRetries holds failed requests whose retry was cut off by Stop.
	abandonedRetries []crawler.Request
	changed          chan struct{}
}

// New creates an empty frontier.
func New(cfg Config) *Frontier {
	return &Frontier{
		queue:       list.New(),
		seen:        make(map[string]struct{}),
		retryTimers: make(map[*time.Timer]crawler.Request),
		maxRequests: cfg.MaxRequests,
		changed:     make(chan struct{}),
	}
}

// AddSeeds enqueues the initial requests in order. It may be called once,
// before any worker starts. Repeated seed URLs are enqueued once.
func (f *Frontier) AddSeeds(seeds []crawler.Request) error {
	if len(seeds) == 0 {
		return crawler.ErrNoSeeds
	}
	prepared := make([]crawler.Request, 0, len(seeds))
	for i, seed := range seeds {
		if !seed.Stage.Valid() {
			return fmt.Errorf("%w: seed %d has unknown stage %d", crawler.ErrInvalidSeed, i, int(seed.Stage))
		}
		abs, key, err := crawler.ResolveURL(seed.URL, "")
		if err != nil {
			return fmt.Errorf("%w: seed %d: %w", crawler.ErrInvalidSeed, i, err)
		}
		seed.URL = abs
		seed.Key = key
		seed.Attempt = 0
		seed.UserData = withLabel(seed.UserData, seed.Stage)
		prepared = append(prepared, seed)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seeded {
		return errors.New("frontier already seeded")
	}
	f.seeded = true
	for _, seed := range prepared {
		if _, dup := f.seen[seed.Key]; dup {
			f.duplicates++
			continue
		}
		f.seen[seed.Key] = struct{}{}
		f.queue.PushBack(seed)
	}
	f.notifyLocked()
	return nil
}

// AddDiscovered resolves rawURL against referrer and enqueues it for stage
// unless its canonical URL was seen before. It reports whether a request
// was enqueued; a duplicate is not an error.
func (f *Frontier) AddDiscovered(
	rawURL string,
	stage crawler.Stage,
	userData map[string]string,
	referrer string,
) (bool, error) {
	if !stage.Valid() {
		return false, fmt.Errorf("add %q: unknown stage %d", rawURL, int(stage))
	}
	abs, key, err := crawler.ResolveURL(rawURL, referrer)
	if err != nil {
		return false, fmt.Errorf("add %q: %w", rawURL, err)
	}
	req := crawler.Request{
		URL:      abs,
		Key:      key,
		Stage:    stage,
		UserData: withLabel(userData, stage),
		Referrer: referrer,
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.seen[key]; dup {
		f.duplicates++
		return false, nil
	}
	f.seen[key] = struct{}{}
	if f.stopped {
		f.abandoned++
		return false, nil
	}
	f.queue.PushBack(req)
	f.notifyLocked()
	return true, nil
}

// Next hands out the next request in FIFO order. While the queue is empty
// but work is still in flight or waiting to be retried, Next blocks, since
// that work may enqueue more requests. Nothing is handed out once ctx is done.
func (f *Frontier) Next(ctx context.Context) (crawler.Request, error) {
	for {
		if err := ctx.Err(); err != nil {
			return crawler.Request{}, fmt.Errorf("frontier next: %w", err)
		}
		f.mu.Lock()
		if f.stopped {
			f.mu.Unlock()
			return crawler.Request{}, ErrStopped
		}
		if front := f.queue.Front(); front != nil {
			req, _ := front.Value.(crawler.Request)
			if req.Attempt == 0 && f.maxRequests > 0 && f.dispatched >= f.maxRequests {
				f.stopLocked()
				f.mu.Unlock()
				return crawler.Request{}, ErrStopped
			}
			f.queue.Remove(front)
			if req.Attempt == 0 {
				f.dispatched++
			}
			f.inFlight++
			f.mu.Unlock()
			return req, nil
		}
		if f.inFlight == 0 && len(f.retryTimers) == 0 {
			f.mu.Unlock()
			return crawler.Request{}, ErrDrained
		}
		wait := f.changed
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return crawler.Request{}, fmt.Errorf("frontier next: %w", ctx.Err())
		case <-wait:
		}
	}
}

// Done releases the in-flight slot held by req.
func (f *Frontier) Done(crawler.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseLocked()
	f.notifyLocked()
}

// Retry releases the in-flight slot held by req and puts it back at the tail
// of the queue once delay has elapsed. It returns false when the frontier is
// stopped and the request was not rescheduled.
func (f *Frontier) Retry(req crawler.Request, delay time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseLocked()
	defer f.notifyLocked()
	if f.stopped {
		f.abandoned++
		return false
	}
	if delay <= 0 {
		f.queue.PushBack(req)
		return true
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, pending := f.retryTimers[timer]; !pending {
			return
		}
		delete(f.retryTimers, timer)
		f.queue.PushBack(req)
		f.notifyLocked()
	})
	f.retryTimers[timer] = req
	return true
}

// Stop prevents further dequeues and empties the queue. Requests that already
// failed at least once are kept for AbandonedRetries.
func (f *Frontier) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
}

// AbandonedRetries returns the failed requests whose retry was cancelled by
// Stop and clears the list.
func (f *Frontier) AbandonedRetries() []crawler.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.abandonedRetries
	f.abandonedRetries = nil
	return out
}

// Drained reports whether no queued, in-flight or pending retry work remains.
func (f *Frontier) Drained() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len() == 0 && f.inFlight == 0 && len(f.retryTimers) == 0
}

// Stats returns a snapshot of the frontier counters.
func (f *Frontier) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		Queued:         f.queue.Len(),
		InFlight:       f.inFlight,
		PendingRetries: len(f.retryTimers),
		Seen:           len(f.seen),
		Dispatched:     f.dispatched,
		Duplicates:     f.duplicates,
		Abandoned:      f.abandoned,
		Stopped:        f.stopped,
	}
}

func (f *Frontier) stopLocked() {
	if f.stopped {
		return
	}
	f.stopped = true
	f.abandoned += f.queue.Len() + len(f.retryTimers)
	for e := f.queue.Front(); e != nil; e = e.Next() {
		if req, _ := e.Value.(crawler.Request); req.Attempt > 0 {
			f.abandonedRetries = append(f.abandonedRetries, req)
		}
	}
	f.queue.Init()
	for timer, req := range f.retryTimers {
		timer.Stop()
		f.abandonedRetries = append(f.abandonedRetries, req)
		delete(f.retryTimers, timer)
	}
	f.notifyLocked()
}

func (f *Frontier) releaseLocked() {
	if f.inFlight > 0 {
		f.inFlight--
	}
}

// notifyLocked wakes every goroutine blocked in Next.
func (f *Frontier) notifyLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}

func withLabel(userData map[string]string, stage crawler.Stage) map[string]string {
	out := make(map[string]string, len(userData)+1)
	for k, v := range userData {
		out[k] = v
	}
	out["label"] = stage.Label()
	return out
}
