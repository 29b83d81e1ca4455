package crawler

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Fetcher loads a URL and returns a queryable document. The document is
// only used for the duration of the extraction that follows.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
}

// Frontier schedules requests for the workers. Retry reports false when the
// request could not be rescheduled because the crawl is stopping.
type Frontier interface {
	Next(ctx context.Context) (Request, error)
	AddDiscovered(rawURL string, stage Stage, userData map[string]string, referrer string) (bool, error)
	Done(req Request)
	Retry(req Request, delay time.Duration) bool
}

// RecordSink receives extracted records in completion order.
type RecordSink interface {
	Append(ctx context.Context, record Record) error
}

// FailureHandler receives requests whose retry budget is exhausted.
type FailureHandler interface {
	Record(ctx context.Context, failure Failure) error
}

// RetryPolicy decides whether and when a failed request is retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
