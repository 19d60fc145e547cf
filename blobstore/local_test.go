package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	vfs "github.com/hupe1980/vqcodec/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Layout(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewLocalStore(root)
	assert.Equal(t, root, store.Root())

	require.NoError(t, store.Put(ctx, "sets/x/codebooks.vqa", []byte("frame")))
	got, err := os.ReadFile(filepath.Join(root, "sets", "x", "codebooks.vqa"))
	require.NoError(t, err)
	assert.Equal(t, "frame", string(got))

	// In-flight writes are invisible.
	w, err := store.Create(ctx, "sets/x/pending.vqc")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"sets/x/codebooks.vqa"}, names)

	require.NoError(t, w.Close())
	names, err = store.List(ctx, "sets/")
	require.NoError(t, err)
	assert.Equal(t, []string{"sets/x/codebooks.vqa", "sets/x/pending.vqc"}, names)
}

func TestLocalStore_MissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "absent"))
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStore_MappedBytes(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())
	require.NoError(t, store.Put(ctx, "blob", []byte("mapped")))

	b, err := store.Open(ctx, "blob")
	require.NoError(t, err)
	m, ok := b.(Mappable)
	require.True(t, ok)
	data, err := m.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "mapped", string(data))

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	_, err = m.Bytes()
	assert.ErrorIs(t, err, os.ErrClosed)
	_, err = b.ReadAt(ctx, make([]byte, 1), 0)
	assert.ErrorIs(t, err, os.ErrClosed)
	_, err = b.ReadRange(ctx, 0, 1)
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestLocalStore_MappedReads(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())
	content := []byte("VQCA codebook frame")
	require.NoError(t, store.Put(ctx, "sets/a.vqa", content))

	b, err := store.Open(ctx, "sets/a.vqa")
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, int64(len(content)), b.Size())

	buf := make([]byte, 5)
	n, err := b.ReadAt(ctx, buf, 14)
	require.NoError(t, err)
	assert.Equal(t, "frame", string(buf[:n]))

	n, err = b.ReadAt(ctx, make([]byte, 10), 14)
	assert.Equal(t, 5, n)
	assert.ErrorIs(t, err, io.EOF)

	_, err = b.ReadAt(ctx, buf, 100)
	assert.ErrorIs(t, err, io.EOF)
	_, err = b.ReadAt(ctx, buf, -1)
	assert.Error(t, err)

	rc, err := b.ReadRange(ctx, 5, 100)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "codebook frame", string(got))
	require.NoError(t, b.Close())
	assert.Equal(t, "codebook frame", string(got), "ranges are copied out of the mapping")

	_, err = b.ReadRange(ctx, 100, 1)
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestLocalStore_EmptyBlobNotMapped(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())
	require.NoError(t, store.Put(ctx, "empty", nil))

	b, err := store.Open(ctx, "empty")
	require.NoError(t, err)
	assert.Zero(t, b.Size())
	data, err := b.(Mappable).Bytes()
	require.NoError(t, err)
	assert.Empty(t, data)

	rc, err := b.ReadRange(ctx, 0, 10)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, b.Close())

	_, err = store.Open(ctx, "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewLocalStore(t.TempDir())
	_, err := store.Open(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, store.Put(ctx, "x", []byte("y")), context.Canceled)
}

func TestLocalStore_FailedWritesLeaveNoTrace(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	ffs := vfs.NewFaultyFS(nil)
	ffs.AddRule("short", vfs.Fault{FailAfterBytes: 3})
	ffs.AddRule("unsynced", vfs.Fault{FailAfterBytes: -1, FailOnSync: true})
	ffs.AddRule("unrenamed", vfs.Fault{FailAfterBytes: -1, FailOnRename: true})
	store := newLocalStoreFS(root, ffs)

	require.NoError(t, store.Put(ctx, "images/ok", []byte("payload")))

	for _, name := range []string{"images/short", "images/unsynced", "images/unrenamed"} {
		err := store.Put(ctx, name, []byte("payload"))
		assert.ErrorIs(t, err, vfs.ErrInjected, name)
	}

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"images/ok"}, names)

	entries, err := os.ReadDir(filepath.Join(root, "images"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are removed")
	assert.Equal(t, int64(3*len("payload")), ffs.Written())
}

func TestLocalStore_PutIfNotExists(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	ffs := vfs.NewFaultyFS(nil)
	ffs.AddRule("unlinked", vfs.Fault{FailAfterBytes: -1, FailOnRename: true})
	store := newLocalStoreFS(root, ffs)

	require.NoError(t, store.PutIfNotExists(ctx, "commits/1", []byte("first")))
	err := store.PutIfNotExists(ctx, "commits/1", []byte("second"))
	assert.ErrorIs(t, err, ErrExists)

	data, err := ReadAll(ctx, store, "commits/1")
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	assert.ErrorIs(t, store.PutIfNotExists(ctx, "commits/unlinked", []byte("x")), vfs.ErrInjected)

	entries, err := os.ReadDir(filepath.Join(root, "commits"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are removed")
}
