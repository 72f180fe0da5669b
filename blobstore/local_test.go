package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/acton/internal/fs"
)

func TestLocalStore_Lifecycle(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalStore(tmpDir)
	ctx := context.Background()

	_, err := store.Get(ctx, "data.acton")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "data.acton", []byte("v1")))
	require.NoError(t, store.Put(ctx, "data.acton", []byte("v2")))

	got, err := store.Get(ctx, "data.acton")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not linger")

	require.NoError(t, store.Delete(ctx, "data.acton"))
	require.NoError(t, store.Delete(ctx, "data.acton"))
	_, err = os.Stat(filepath.Join(tmpDir, "data.acton"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStore_PutFailureKeepsPrevious(t *testing.T) {
	tmpDir := t.TempDir()
	ffs := fs.NewFaultyFS(nil)
	store := NewLocalStore(tmpDir, WithFileSystem(ffs))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "data.acton", []byte("good")))

	ffs.AddRule(".tmp-", fs.Fault{FailAfterBytes: -1, FailOnSync: true})
	err := store.Put(ctx, "data.acton", []byte("never visible"))
	require.ErrorIs(t, err, fs.ErrInjected)

	got, err := store.Get(ctx, "data.acton")
	require.NoError(t, err)
	assert.Equal(t, "good", string(got))

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalStore_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewLocalStore(t.TempDir())
	require.ErrorIs(t, store.Put(ctx, "x", nil), context.Canceled)
	_, err := store.Get(ctx, "x")
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	_, err := m.Get(ctx, "a")
	require.ErrorIs(t, err, ErrNotFound)

	data := []byte("abc")
	require.NoError(t, m.Put(ctx, "a", data))
	data[0] = 'x'

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1, m.Puts())

	require.NoError(t, m.Delete(ctx, "a"))
	assert.Equal(t, 0, m.Len())
}
