// Package robots enforces robots.txt directives in front of a fetcher.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
)

const (
	defaultTimeout = 10 * time.Second
	maxRobotsBytes = 1 << 20
)

// Config controls robots.txt lookups.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Client overrides the HTTP client used for robots.txt (tests).
	Client *http.Client
}

// Enforcer answers whether a URL may be fetched. robots.txt is loaded once
// per host and cached for the life of the Enforcer.
type Enforcer struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger

	mu    sync.Mutex
	hosts map[string]*hostEntry
}

type hostEntry struct {
	once sync.Once
	data *robotstxt.RobotsData
	err  error
}

// New builds an Enforcer.
func New(cfg Config, logger *zap.Logger) *Enforcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Enforcer{
		client:    client,
		userAgent: cfg.UserAgent,
		logger:    logger,
		hosts:     make(map[string]*hostEntry),
	}
}

// Allowed reports whether rawURL may be fetched. An unreachable or broken
// robots.txt allows access.
func (e *Enforcer) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	data, err := e.load(ctx, parsed)
	if err != nil {
		e.logger.Warn("robots fetch failed; allowing access", zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	group := data.FindGroup(e.userAgent)
	if group == nil {
		return true
	}
	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (e *Enforcer) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	key := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	e.mu.Lock()
	entry, ok := e.hosts[key]
	if !ok {
		entry = &hostEntry{}
		e.hosts[key] = entry
	}
	e.mu.Unlock()

	entry.once.Do(func() {
		entry.data, entry.err = e.fetch(ctx, key+"/robots.txt")
	})
	return entry.data, entry.err
}

func (e *Enforcer) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			e.logger.Debug("Failed to close robots response body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}

// Fetcher refuses URLs the Enforcer disallows and delegates the rest.
type Fetcher struct {
	next     crawler.Fetcher
	enforcer *Enforcer
}

// Wrap returns a Fetcher that checks enforcer before every fetch.
func Wrap(next crawler.Fetcher, enforcer *Enforcer) *Fetcher {
	return &Fetcher{next: next, enforcer: enforcer}
}

// Fetch implements crawler.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	if !f.enforcer.Allowed(ctx, url) {
		return nil, fmt.Errorf("%s: %w", url, crawler.ErrDisallowed)
	}
	return f.next.Fetch(ctx, url)
}
