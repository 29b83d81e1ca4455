package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hotel-directory-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("MissingPath", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("CreatesParentDirectories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a", "b", "out.jsonl")
		store, err := local.New(local.Config{Path: path})
		require.NoError(t, err)
		require.NoError(t, store.Close(context.Background()))
		assert.FileExists(t, path)
		assert.Equal(t, "file://"+path, store.URI())
	})

	t.Run("PathIsADirectory", func(t *testing.T) {
		_, err := local.New(local.Config{Path: t.TempDir()})
		assert.Error(t, err)
	})
}

func TestWriteLine(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dataset.jsonl")

	store, err := local.New(local.Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, store.WriteLine(ctx, []byte(`{"n":1}`)))
	require.NoError(t, store.WriteLine(ctx, []byte(`{"n":2}`)))
	require.NoError(t, store.Flush(ctx))

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"n\":1}\n{\"n\":2}\n", string(data))

	require.NoError(t, store.Close(ctx))
	require.NoError(t, store.Close(ctx), "second close is a no-op")
	assert.Error(t, store.WriteLine(ctx, []byte(`{}`)))
}

func TestTruncateAndAppend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "failures.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o600))

	appender, err := local.New(local.Config{Path: path, Append: true})
	require.NoError(t, err)
	require.NoError(t, appender.WriteLine(ctx, []byte("new")))
	require.NoError(t, appender.Close(ctx))

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))

	truncating, err := local.New(local.Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, truncating.Close(ctx))

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}
