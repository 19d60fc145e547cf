package blobstore

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/hupe1980/vqcodec/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records the reads that reach the inner store.
type countingStore struct {
	*MemoryStore
	mu    sync.Mutex
	reads int
	bytes int
}

func (s *countingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.MemoryStore.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &countingBlob{Blob: b, s: s}, nil
}

type countingBlob struct {
	Blob
	s *countingStore
}

func (b *countingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	n, err := b.Blob.ReadAt(ctx, p, off)
	b.s.mu.Lock()
	b.s.reads++
	b.s.bytes += n
	b.s.mu.Unlock()
	return n, err
}

func TestCachingStore_ReadAt(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	data := bytes.Repeat([]byte("0123456789"), 10) // 100 bytes
	require.NoError(t, inner.Put(ctx, "blob", data))

	lru := cache.NewLRU(1<<10, nil)
	store := NewCachingStore(inner, lru, 16)

	b, err := store.Open(ctx, "blob")
	require.NoError(t, err)
	defer b.Close()

	buf := make([]byte, 40)
	n, err := b.ReadAt(ctx, buf, 10)
	require.NoError(t, err)
	assert.Equal(t, 40, n)
	assert.Equal(t, data[10:50], buf)
	assert.Equal(t, 1, inner.reads, "contiguous missing blocks are fetched in one read")

	n, err = b.ReadAt(ctx, buf[:20], 20)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, data[20:40], buf[:20])
	assert.Equal(t, 1, inner.reads, "cached blocks are served without the inner store")

	tail := make([]byte, 20)
	n, err = b.ReadAt(ctx, tail, 90)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 10, n)
	assert.Equal(t, data[90:], tail[:10])

	_, err = b.ReadAt(ctx, tail, 100)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCachingStore_ReadAllAndInvalidate(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	require.NoError(t, inner.Put(ctx, "blob", []byte("first version of the blob")))

	store := NewCachingStore(inner, cache.NewLRU(1<<10, nil), 8)

	got, err := ReadAll(ctx, store, "blob")
	require.NoError(t, err)
	assert.Equal(t, "first version of the blob", string(got))

	require.NoError(t, store.Put(ctx, "blob", []byte("second")))
	got, err = ReadAll(ctx, store, "blob")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	w, err := store.Create(ctx, "blob")
	require.NoError(t, err)
	_, err = w.Write([]byte("third!"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	got, err = ReadAll(ctx, store, "blob")
	require.NoError(t, err)
	assert.Equal(t, "third!", string(got))

	require.NoError(t, store.Delete(ctx, "blob"))
	_, err = store.Open(ctx, "blob")
	assert.ErrorIs(t, err, ErrNotFound)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestCachingStore_CacheRefusesBlocks(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	data := bytes.Repeat([]byte("ab"), 32)
	require.NoError(t, inner.Put(ctx, "blob", data))

	// Capacity below the block size: every block is read directly.
	store := NewCachingStore(inner, cache.NewLRU(4, nil), 16)
	got, err := ReadAll(ctx, store, "blob")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

// plainStore hides the conditional writes of the store it wraps.
type plainStore struct {
	Store
}

func TestCachingStore_PutIfNotExists(t *testing.T) {
	ctx := context.Background()

	for name, inner := range map[string]Store{
		"conditional": NewMemoryStore(),
		"plain":       plainStore{NewMemoryStore()},
	} {
		t.Run(name, func(t *testing.T) {
			store := NewCachingStore(inner, cache.NewLRU(1<<10, nil), 16)

			require.NoError(t, store.PutIfNotExists(ctx, "sets/a", []byte("first")))

			// Warm the cache, then make sure a refused write leaves it intact.
			got, err := ReadAll(ctx, store, "sets/a")
			require.NoError(t, err)
			assert.Equal(t, "first", string(got))

			err = store.PutIfNotExists(ctx, "sets/a", []byte("second"))
			assert.ErrorIs(t, err, ErrExists)

			got, err = ReadAll(ctx, store, "sets/a")
			require.NoError(t, err)
			assert.Equal(t, "first", string(got))
		})
	}

	// The default committer on a cached store detects conflicts.
	c := NewStoreCommitter(NewCachingStore(NewMemoryStore(), cache.NewLRU(1<<10, nil), 0), "")
	require.NoError(t, c.Commit(ctx, 1, "m1"))
	assert.ErrorIs(t, c.Commit(ctx, 1, "m2"), ErrConflict)
}
