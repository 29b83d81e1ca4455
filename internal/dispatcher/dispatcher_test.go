package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
	"github.com/JakeFAU/hotel-directory-crawler/internal/dataset"
	"github.com/JakeFAU/hotel-directory-crawler/internal/extract"
	"github.com/JakeFAU/hotel-directory-crawler/internal/failures"
	"github.com/JakeFAU/hotel-directory-crawler/internal/frontier"
	"github.com/JakeFAU/hotel-directory-crawler/internal/worker"
)

const root = "https://hotels.test/"

func TestStartPageQueuesGlossaries(t *testing.T) {
	t.Parallel()

	site := newSite(t)
	site.page(root, startPage("/glossar/a", "/glossar/b"))

	run := newRun(t, site, runOptions{concurrency: 1, maxRequests: 1})
	summary := run.crawl(context.Background())

	require.Equal(t, 1, summary.Dispatched)
	require.Equal(t, 2, summary.Abandoned, "both glossary requests were queued when the budget ran out")
	require.True(t, summary.Stopped)

	records := run.records(t)
	require.Len(t, records, 1)
	require.Equal(t, "start", records[0]["type"])
	require.Len(t, records[0]["glossaries"], 2)
	require.Zero(t, run.failures.Count())
}

func TestCrawlWalksEveryStage(t *testing.T) {
	t.Parallel()

	site := fullSite(t)
	run := newRun(t, site, runOptions{concurrency: 4, maxRetries: 2})
	summary := run.crawl(context.Background())

	require.False(t, summary.Stopped)
	require.Zero(t, summary.Failures)
	require.EqualValues(t, 10, summary.Records)

	byType := map[string]int{}
	var pirna map[string]any
	for _, rec := range run.records(t) {
		byType[rec["type"].(string)]++
		if rec["type"] == "city" && rec["city"] == "Pirna" {
			pirna = rec
		}
	}
	require.Equal(t, map[string]int{"start": 1, "glossary": 2, "city": 3, "hotel": 4}, byType)
	require.NotNil(t, pirna)
	require.Len(t, pirna["hotels"], 3)

	for key, calls := range site.calls() {
		require.Equal(t, 1, calls, "page %s fetched more than once", key)
	}
}

func TestFlakyHotelRecoversWithinRetryBudget(t *testing.T) {
	t.Parallel()

	site := fullSite(t)
	site.failFirst(root+"pirna/h1", 2)
	run := newRun(t, site, runOptions{concurrency: 3, maxRetries: 2})
	summary := run.crawl(context.Background())

	require.Zero(t, summary.Failures)
	require.EqualValues(t, 2, summary.Retries)
	require.Equal(t, 1, run.countURL(t, root+"pirna/h1"))
	require.Equal(t, 3, site.callsFor(root+"pirna/h1"))
}

func TestHotelFailingPastBudgetIsReported(t *testing.T) {
	t.Parallel()

	site := fullSite(t)
	site.failFirst(root+"pirna/h2", 3)
	run := newRun(t, site, runOptions{concurrency: 3, maxRetries: 2})
	summary := run.crawl(context.Background())

	require.EqualValues(t, 1, summary.Failures)
	require.Zero(t, run.countURL(t, root+"pirna/h2"))

	failed := run.failures.Snapshot()
	require.Len(t, failed, 1)
	require.Equal(t, root+"pirna/h2", failed[0].URL)
	require.Equal(t, crawler.StageHotel, failed[0].Stage)
	require.Equal(t, 3, failed[0].Attempts)
	require.EqualValues(t, 9, summary.Records)
}

func TestCyclicLinksTerminate(t *testing.T) {
	t.Parallel()

	site := newSite(t)
	site.page(root, startPage("/glossar/a", "/", "/glossar/a/"))
	site.page(root+"glossar/a", glossaryPage("A", "/glossar/a", "/stadt", "/stadt/", "//hotels.test/stadt#top"))
	site.page(root+"stadt", cityPage("Stadt", "/stadt", "/stadt/h"))
	site.page(root+"stadt/h", hotelPage("Kreis"))

	run := newRun(t, site, runOptions{concurrency: 8})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	summary := run.crawl(ctx)

	require.NoError(t, ctx.Err())
	require.False(t, summary.Stopped)
	require.Equal(t, 4, summary.Dispatched)
	require.Positive(t, summary.Duplicates)
	for key, calls := range site.calls() {
		require.Equal(t, 1, calls, "page %s fetched more than once", key)
	}
}

func TestCancelFinishesInFlightAndReportsPendingRetries(t *testing.T) {
	t.Parallel()

	site := newSite(t)
	site.page(root, startPage("/glossar/a", "/glossar/b"))
	site.page(root+"glossar/a", glossaryPage("A"))
	site.page(root+"glossar/b", glossaryPage("B", "/pirna"))
	site.failFirst(root+"glossar/a", 1)
	release := site.block(root + "glossar/b")

	run := newRun(t, site, runOptions{concurrency: 2, maxRetries: 3, backoff: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Summary, 1)
	go func() { done <- run.crawl(ctx) }()

	require.Eventually(t, func() bool {
		stats := run.frontier.Stats()
		return stats.PendingRetries == 1 && stats.InFlight == 1
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	close(release)

	var summary Summary
	select {
	case summary = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	require.True(t, summary.Stopped)
	require.Equal(t, 1, run.countURL(t, root+"glossar/b"), "in-flight request completes after cancel")

	failed := run.failures.Snapshot()
	require.Len(t, failed, 1)
	require.Equal(t, root+"glossar/a", failed[0].URL)
	require.Equal(t, 1, failed[0].Attempts)
	require.Contains(t, failed[0].Error, errRetryAbandoned.Error())
	require.EqualValues(t, 1, summary.Failures)
}

// fullSite has 2 glossaries, 3 cities and 4 hotels. Glossary B repeats a
// city from glossary A.
func fullSite(t *testing.T) *site {
	t.Helper()
	s := newSite(t)
	s.page(root, startPage("/glossar/a", "/glossar/b"))
	s.page(root+"glossar/a", glossaryPage("A", "/pirna/", "/altenberg"))
	s.page(root+"glossar/b", glossaryPage("B", "/pirna", "/bautzen", "mailto:info@hotels.test"))
	s.page(root+"pirna", cityPage("Pirna", "/pirna/h1", "/pirna/h2", "/pirna/h3"))
	s.page(root+"altenberg", cityPage("Altenberg", "/altenberg/h1"))
	s.page(root+"bautzen", cityPage("Bautzen"))
	s.page(root+"pirna/h1", hotelPage("Zur Post"))
	s.page(root+"pirna/h2", hotelPage("Elbblick"))
	s.page(root+"pirna/h3", hotelPage("Am Markt"))
	s.page(root+"altenberg/h1", hotelPage("Bergblick"))
	return s
}

type runOptions struct {
	concurrency int
	maxRetries  int
	maxRequests int
	backoff     time.Duration
}

type testRun struct {
	frontier   *frontier.Frontier
	dispatcher *Dispatcher
	sink       *dataset.Sink
	lines      *lineStore
	failures   *failures.Handler
}

func newRun(t *testing.T, s *site, opts runOptions) *testRun {
	t.Helper()
	registry, err := extract.Default()
	require.NoError(t, err)

	backoff := opts.backoff
	if backoff == 0 {
		backoff = time.Millisecond
	}
	front := frontier.New(frontier.Config{MaxRequests: opts.maxRequests})
	require.NoError(t, front.AddSeeds([]crawler.Request{{URL: root, Stage: crawler.StageStart}}))

	lines := &lineStore{}
	sink := dataset.New(dataset.Config{Buffer: 2}, nil, lines)
	handler := failures.NewHandler(nil)
	policy := crawler.NewExponentialRetryPolicy(opts.maxRetries, backoff, backoff)
	counters := &worker.Counters{}

	workers := make([]*worker.Worker, opts.concurrency)
	for i := range workers {
		workers[i] = worker.New(front, s, registry, sink, handler, policy, wallClock{}, nil, counters,
			worker.Config{}, zap.NewNop())
	}
	return &testRun{
		frontier:   front,
		dispatcher: New(front, workers, counters, handler, wallClock{}, zap.NewNop()),
		sink:       sink,
		lines:      lines,
		failures:   handler,
	}
}

func (r *testRun) crawl(ctx context.Context) Summary {
	summary := r.dispatcher.Run(ctx)
	_ = r.sink.Close(context.Background())
	return summary
}

func (r *testRun) records(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range r.lines.all() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		out = append(out, rec)
	}
	return out
}

func (r *testRun) countURL(t *testing.T, url string) int {
	t.Helper()
	n := 0
	for _, rec := range r.records(t) {
		if rec["url"] == url {
			n++
		}
	}
	return n
}

type lineStore struct {
	mu    sync.Mutex
	lines [][]byte
}

func (l *lineStore) WriteLine(_ context.Context, line []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, append([]byte(nil), line...))
	return nil
}

func (l *lineStore) Close(context.Context) error { return nil }

func (l *lineStore) all() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.lines...)
}

// site is a fake fetcher serving pages by canonical URL.
type site struct {
	t      *testing.T
	mu     sync.Mutex
	pages  map[string]string
	fail   map[string]int
	blocks map[string]chan struct{}
	count  map[string]int
}

func newSite(t *testing.T) *site {
	return &site{
		t:      t,
		pages:  map[string]string{},
		fail:   map[string]int{},
		blocks: map[string]chan struct{}{},
		count:  map[string]int{},
	}
}

func (s *site) key(url string) string {
	key, err := crawler.CanonicalizeURL(url)
	require.NoError(s.t, err)
	return key
}

func (s *site) page(url, html string) {
	s.pages[s.key(url)] = html
}

func (s *site) failFirst(url string, n int) {
	s.fail[s.key(url)] = n
}

func (s *site) block(url string) chan struct{} {
	ch := make(chan struct{})
	s.blocks[s.key(url)] = ch
	return ch
}

func (s *site) calls() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.count))
	for k, v := range s.count {
		out[k] = v
	}
	return out
}

func (s *site) callsFor(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count[s.key(url)]
}

func (s *site) Fetch(_ context.Context, url string) (*goquery.Document, error) {
	key, err := crawler.CanonicalizeURL(url)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.count[key]++
	failing := s.count[key] <= s.fail[key]
	html, ok := s.pages[key]
	gate := s.blocks[key]
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if failing {
		return nil, errors.New("status 503")
	}
	if !ok {
		return nil, fmt.Errorf("status 404 for %s", url)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func anchors(hrefs []string) string {
	var b strings.Builder
	for i, h := range hrefs {
		fmt.Fprintf(&b, `<li><a href="%s">Link %d</a></li>`, h, i)
	}
	return b.String()
}

func startPage(hrefs ...string) string {
	return `<html><body><div class="container"><ul id="navigation">` + anchors(hrefs) + `</ul></div></body></html>`
}

func glossaryPage(letter string, hrefs ...string) string {
	return `<html><body><div class="container"><div class="row full-rel-left content">` +
		`<div class="full-rel-left"><h1>Orte mit <span>` + letter + `</span></h1></div>` +
		`<div class="full-rel-left list-of-places mb15 mt20"><ul>` + anchors(hrefs) + `</ul></div>` +
		`</div></div></body></html>`
}

func cityPage(name string, hrefs ...string) string {
	var b strings.Builder
	for i, h := range hrefs {
		fmt.Fprintf(&b, `<li><div class="content"><div class="title-address"><a href="%s">Hotel %d</a></div></div></li>`, h, i)
	}
	return `<html><body><div class="container"><div class="row full-rel-left content">` +
		`<div class="full-rel-left"><h1>` + name + `</h1><ul class="hotels-list">` + b.String() + `</ul></div>` +
		`</div></div></body></html>`
}

func hotelPage(name string) string {
	return `<html><body><div class="hotel-view"><h1>` + name + `</h1>` +
		`<div class="address"><p>Markt 1, 01796 Pirna</p>Telefon: 03501 1234</div></div></body></html>`
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }
