package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FSStore {
	t.Helper()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestFSStore_WriteCompleteRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sink, err := store.OpenWrite(ctx, "clips/out.mp3", "audio/mpeg", map[string]string{"title": "demo"})
	require.NoError(t, err)

	_, err = sink.Write([]byte("audio-bytes"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	// Producer closed, but the object is not visible until Complete.
	exists, err := store.Exists(ctx, "clips/out.mp3")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, sink.Complete(ctx))

	exists, err = store.Exists(ctx, "clips/out.mp3")
	require.NoError(t, err)
	assert.True(t, exists)

	dest := filepath.Join(t.TempDir(), "copy.mp3")
	require.NoError(t, store.Download(ctx, "clips/out.mp3", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
}

func TestFSStore_Abort(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sink, err := store.OpenWrite(ctx, "clips/aborted.mp3", "audio/mpeg", nil)
	require.NoError(t, err)

	_, err = sink.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, sink.Abort())

	exists, err := store.Exists(ctx, "clips/aborted.mp3")
	require.NoError(t, err)
	assert.False(t, exists)

	// Completing an aborted sink fails.
	assert.Error(t, sink.Complete(ctx))

	// No stray staged files left behind.
	entries, err := os.ReadDir(filepath.Join(store.BaseDir(), "clips"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFSStore_CompleteIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sink, err := store.OpenWrite(ctx, "a.bin", "", nil)
	require.NoError(t, err)
	require.NoError(t, sink.Complete(ctx))
	require.NoError(t, sink.Complete(ctx))

	// Abort after Complete is a no-op; the object stays.
	require.NoError(t, sink.Abort())
	exists, err := store.Exists(ctx, "a.bin")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFSStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sink, err := store.OpenWrite(ctx, "victim.bin", "application/octet-stream", map[string]string{"k": "v"})
	require.NoError(t, err)
	_, err = sink.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, sink.Complete(ctx))

	require.NoError(t, store.Delete(ctx, "victim.bin"))
	exists, err := store.Exists(ctx, "victim.bin")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFSStore_DownloadMissing(t *testing.T) {
	store := newTestStore(t)
	err := store.Download(context.Background(), "nope.bin", filepath.Join(t.TempDir(), "d"))
	assert.Error(t, err)
}

func TestSandbox_ResolvePath(t *testing.T) {
	sandbox, err := NewSandbox(t.TempDir())
	require.NoError(t, err)

	_, err = sandbox.ResolvePath("ok/file.txt")
	assert.NoError(t, err)

	_, err = sandbox.ResolvePath("../escape.txt")
	assert.Error(t, err)

	_, err = sandbox.ResolvePath("/abs/path.txt")
	assert.Error(t, err)
}
