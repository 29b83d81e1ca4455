// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
)

// Fetcher kinds accepted by fetcher.kind.
const (
	FetcherHTTP     = "http"
	FetcherHeadless = "headless"
)

// DefaultSeedURL is the hotel page the directory crawl starts from.
const DefaultSeedURL = "https://www.preiswert-uebernachten.de/pirna/hotel-zur-post/34"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Dataset  DatasetConfig  `mapstructure:"dataset"`
	Failures FailuresConfig `mapstructure:"failures"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// SeedConfig is one starting request.
type SeedConfig struct {
	URL   string `mapstructure:"url"`
	Stage string `mapstructure:"stage"`
}

// CrawlerConfig governs the frontier, workers and retry policy.
type CrawlerConfig struct {
	Seeds             []SeedConfig  `mapstructure:"seeds"`
	Concurrency       int           `mapstructure:"concurrency"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BackoffInitial    time.Duration `mapstructure:"backoff_initial"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	PageDelay         time.Duration `mapstructure:"page_delay"`
	MaxRequests       int           `mapstructure:"max_requests"`
	UserAgent         string        `mapstructure:"user_agent"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
}

// FetcherConfig selects the page fetcher.
type FetcherConfig struct {
	Kind    string        `mapstructure:"kind"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// HeadlessConfig configures the chromedp fetcher.
type HeadlessConfig struct {
	MaxParallel int    `mapstructure:"max_parallel"`
	WaitVisible string `mapstructure:"wait_visible"`
}

// DatasetConfig sets where records are written.
type DatasetConfig struct {
	Path          string `mapstructure:"path"`
	Buffer        int    `mapstructure:"buffer"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	GCSObject     string `mapstructure:"gcs_object"`
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
}

// FailuresConfig sets where exhausted requests are logged.
type FailuresConfig struct {
	Path        string `mapstructure:"path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Table       string `mapstructure:"table"`
}

// ServerConfig controls the optional ops HTTP server.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls OpenTelemetry request tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Version     string  `mapstructure:"version"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk and environment. With an empty path the
// usual locations are searched for config.{yaml,json,toml}; a missing file
// there is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hotelcrawler/")
		v.AddConfigPath("$HOME/.hotelcrawler")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.seeds", []map[string]any{
		{"url": DefaultSeedURL, "stage": crawler.StageStart.String()},
	})
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.max_retries", crawler.DefaultMaxRetries)
	v.SetDefault("crawler.backoff_initial", crawler.DefaultBaseBackoff)
	v.SetDefault("crawler.backoff_max", crawler.DefaultMaxBackoff)
	v.SetDefault("crawler.page_delay", time.Duration(0))
	v.SetDefault("crawler.max_requests", 0)
	v.SetDefault("crawler.user_agent", "hotelcrawler/1.0")
	v.SetDefault("crawler.requests_per_second", 2.0)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("fetcher.kind", FetcherHTTP)
	v.SetDefault("fetcher.timeout", 30*time.Second)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.wait_visible", "body")
	v.SetDefault("dataset.path", "data/dataset.jsonl")
	v.SetDefault("dataset.buffer", 256)
	v.SetDefault("dataset.gcs_object", "datasets/hotels.jsonl")
	v.SetDefault("failures.path", "data/failures.jsonl")
	v.SetDefault("failures.table", "crawl_failures")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "hotelcrawler")
	v.SetDefault("telemetry.version", "dev")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := c.Crawler.SeedRequests(); err != nil {
		return err
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0")
	}
	if c.Crawler.BackoffInitial <= 0 || c.Crawler.BackoffMax < c.Crawler.BackoffInitial {
		return fmt.Errorf("crawler.backoff_initial must be > 0 and <= crawler.backoff_max")
	}
	if c.Crawler.PageDelay < 0 {
		return fmt.Errorf("crawler.page_delay must be >= 0")
	}
	if c.Crawler.MaxRequests < 0 {
		return fmt.Errorf("crawler.max_requests must be >= 0")
	}
	if c.Crawler.RequestsPerSecond < 0 {
		return fmt.Errorf("crawler.requests_per_second must be >= 0")
	}
	switch c.Fetcher.Kind {
	case FetcherHTTP:
	case FetcherHeadless:
		if c.Headless.MaxParallel <= 0 {
			return fmt.Errorf("headless.max_parallel must be > 0 when fetcher.kind is headless")
		}
	default:
		return fmt.Errorf("fetcher.kind must be %q or %q, got %q", FetcherHTTP, FetcherHeadless, c.Fetcher.Kind)
	}
	if c.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be > 0")
	}
	if c.Dataset.Buffer <= 0 {
		return fmt.Errorf("dataset.buffer must be > 0")
	}
	if c.Dataset.GCSBucket != "" && c.Dataset.GCSObject == "" {
		return fmt.Errorf("dataset.gcs_object must be set when dataset.gcs_bucket is set")
	}
	if (c.Dataset.PubSubProject == "") != (c.Dataset.PubSubTopic == "") {
		return fmt.Errorf("dataset.pubsub_project and dataset.pubsub_topic must be set together")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	if c.Failures.PostgresDSN != "" && !tableName.MatchString(c.Failures.Table) {
		return fmt.Errorf("failures.table %q is not a valid table name", c.Failures.Table)
	}
	return nil
}

// SeedRequests converts the configured seeds into crawl requests. Stage names
// accept the page labels ("start-page") as well.
func (c CrawlerConfig) SeedRequests() ([]crawler.Request, error) {
	if len(c.Seeds) == 0 {
		return nil, crawler.ErrNoSeeds
	}
	out := make([]crawler.Request, 0, len(c.Seeds))
	for i, seed := range c.Seeds {
		if strings.TrimSpace(seed.URL) == "" {
			return nil, fmt.Errorf("%w: crawler.seeds[%d] has no url", crawler.ErrInvalidSeed, i)
		}
		stage, err := crawler.ParseStage(seed.Stage)
		if err != nil {
			return nil, fmt.Errorf("%w: crawler.seeds[%d]: %w", crawler.ErrInvalidSeed, i, err)
		}
		out = append(out, crawler.Request{URL: strings.TrimSpace(seed.URL), Stage: stage})
	}
	return out, nil
}
