package headless

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	defer fetcher.Close()

	require.NotNil(t, fetcher.tabs)
	require.Equal(t, "body", fetcher.cfg.WaitVisible)
	require.Equal(t, defaultNavigationTimeout, fetcher.cfg.NavigationTimeout)

	unbounded, err := NewChromedp(Config{NavigationTimeout: time.Second})
	require.NoError(t, err)
	defer unbounded.Close()
	require.Nil(t, unbounded.tabs)
	require.Equal(t, time.Second, unbounded.cfg.NavigationTimeout)
}

func TestFetchWaitsForFreeTab(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{tabs: semaphore.NewWeighted(1)}
	require.True(t, fetcher.tabs.TryAcquire(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := fetcher.Fetch(ctx, "https://hotels.test/")
	require.ErrorContains(t, err, "wait for browser tab")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResponseMetaCapturesDocumentStatus(t *testing.T) {
	t.Parallel()

	meta := &responseMeta{}
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404},
	})
	require.Zero(t, meta.status(), "non-document responses are ignored")

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 503, URL: "https://hotels.test/"},
	})
	require.Equal(t, 503, meta.status())

	meta.captureEvent("unrelated event")
	require.Equal(t, 503, meta.status())
}
