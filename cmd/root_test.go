package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hotel-directory-crawler/internal/config"
	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
	"github.com/JakeFAU/hotel-directory-crawler/internal/dispatcher"
)

type fakeApp struct {
	summary  dispatcher.Summary
	runErr   error
	closeErr error
	ran      bool
	closed   bool
}

func (f *fakeApp) Run(context.Context) (dispatcher.Summary, error) {
	f.ran = true
	return f.summary, f.runErr
}

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return f.closeErr
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const validConfig = `
crawler:
  seeds:
    - url: https://hotels.test/
      stage: start-page
  concurrency: 2
logging:
  level: error
`

func factoryFor(fake *fakeApp, seen *config.Config) appFactory {
	return func(_ context.Context, cfg config.Config, _ *zap.Logger) (crawlApp, error) {
		if seen != nil {
			*seen = cfg
		}
		return fake, nil
	}
}

func TestExecuteRunsCrawlAndExitsZeroDespiteFailures(t *testing.T) {
	t.Parallel()

	fake := &fakeApp{summary: dispatcher.Summary{Records: 3, Failures: 2}}
	var seen config.Config
	var stderr bytes.Buffer
	code := execute(context.Background(), []string{"--config", writeConfig(t, validConfig)}, &stderr, factoryFor(fake, &seen))

	require.Equal(t, exitOK, code, stderr.String())
	require.True(t, fake.ran)
	require.True(t, fake.closed)
	require.Equal(t, 2, seen.Crawler.Concurrency)
	require.Equal(t, "https://hotels.test/", seen.Crawler.Seeds[0].URL)
}

func TestExecuteRejectsPositionalArgs(t *testing.T) {
	t.Parallel()

	fake := &fakeApp{}
	var stderr bytes.Buffer
	code := execute(context.Background(), []string{"https://hotels.test/"}, &stderr, factoryFor(fake, nil))

	require.Equal(t, exitRunFailed, code)
	require.False(t, fake.ran)
	require.Contains(t, stderr.String(), "unknown command")
}

func TestExecuteFatalInit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  string
		factory appFactory
	}{
		{
			name:    "empty seeds",
			config:  "crawler:\n  seeds: []\n",
			factory: factoryFor(&fakeApp{}, nil),
		},
		{
			name:    "malformed seed stage",
			config:  "crawler:\n  seeds:\n    - url: https://hotels.test/\n      stage: lobby\n",
			factory: factoryFor(&fakeApp{}, nil),
		},
		{
			name:   "store init failure",
			config: validConfig,
			factory: func(context.Context, config.Config, *zap.Logger) (crawlApp, error) {
				return nil, errors.New("connect postgres: refused")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var stderr bytes.Buffer
			code := execute(context.Background(), []string{"--config", writeConfig(t, tt.config)}, &stderr, tt.factory)
			require.Equal(t, exitFatalInit, code, stderr.String())
			require.Contains(t, stderr.String(), "fatal init")
		})
	}
}

func TestExecuteMissingConfigFile(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	missing := filepath.Join(t.TempDir(), "absent.yaml")
	code := execute(context.Background(), []string{"--config", missing}, &stderr, factoryFor(&fakeApp{}, nil))
	require.Equal(t, exitFatalInit, code)
}

func TestRunCrawlSurfacesLostOutput(t *testing.T) {
	t.Parallel()

	fake := &fakeApp{closeErr: errors.New("flush dataset: disk full")}
	err := runCrawl(context.Background(), writeConfig(t, validConfig), factoryFor(fake, nil))

	require.ErrorContains(t, err, "disk full")
	var fatal *crawler.FatalInitError
	require.False(t, errors.As(err, &fatal))
	require.True(t, fake.closed)
}
