package catalog

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/vqcodec"
	"github.com/hupe1980/vqcodec/blobstore"
	"github.com/hupe1980/vqcodec/colorspace"
	"github.com/hupe1980/vqcodec/container"
	"github.com/hupe1980/vqcodec/resource"
	"github.com/hupe1980/vqcodec/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	codec *vqcodec.Codec
	set   *vqcodec.CodebookSet
	img   image.Image
	comp  *vqcodec.Compressed
}

func newFixture(t *testing.T, kind colorspace.Kind) fixture {
	t.Helper()
	ctx := context.Background()
	img := testutil.NewRNG(7).Noise(12, 10)

	c, err := vqcodec.New(vqcodec.WithPipeline(kind), vqcodec.WithCodebookSize(16))
	require.NoError(t, err)
	set, err := c.Train(ctx, []image.Image{img})
	require.NoError(t, err)
	comp, err := c.Compress(ctx, set, img)
	require.NoError(t, err)
	return fixture{codec: c, set: set, img: img, comp: comp}
}

func fixedClock(t time.Time) Option {
	return func(o *options) { o.now = func() time.Time { return t } }
}

// latestManifest returns the blob name of the committed manifest.
func latestManifest(t *testing.T, store blobstore.Store) string {
	t.Helper()
	gen, name, err := blobstore.NewStoreCommitter(store, "").Latest(context.Background())
	require.NoError(t, err)
	require.NotZero(t, gen)
	return name
}

func list(t *testing.T, store blobstore.Store, prefix string) []string {
	t.Helper()
	names, err := store.List(context.Background(), prefix)
	require.NoError(t, err)
	return names
}

func TestCatalog_RoundTrip(t *testing.T) {
	for name, store := range map[string]blobstore.Store{
		"memory": blobstore.NewMemoryStore(),
		"local":  blobstore.NewLocalStore(t.TempDir()),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, colorspace.KindLumaChroma)

			cat, err := New(ctx, store)
			require.NoError(t, err)
			assert.Empty(t, cat.Sets())

			setEntry, err := cat.PutCodebookSet(ctx, f.set)
			require.NoError(t, err)
			assert.Equal(t, f.set.ID, setEntry.ID)
			assert.Equal(t, 16, setEntry.CodebookSize)
			assert.Equal(t, []string{"Y", "U", "V"}, setEntry.Roles)
			assert.Equal(t, "sets/"+f.set.ID+".vqa", setEntry.Blob)

			imgEntry, err := cat.PutCompressed(ctx, "noise/a", f.comp)
			require.NoError(t, err)
			assert.Equal(t, "images/noise/a.vqc", imgEntry.Blob)
			assert.Equal(t, f.comp.Blocks(), imgEntry.Blocks)
			assert.Equal(t, f.comp.Blocks()*4, imgEntry.PayloadBits)

			// A fresh catalog sees everything through the manifest.
			reopened, err := New(ctx, store)
			require.NoError(t, err)
			require.Len(t, reopened.Sets(), 1)
			require.Len(t, reopened.Images(), 1)

			comp, set, err := reopened.Load(ctx, "noise/a")
			require.NoError(t, err)
			assert.Equal(t, f.set.ID, set.ID)

			want, err := f.codec.Decompress(ctx, f.set, f.comp)
			require.NoError(t, err)
			got, err := f.codec.Decompress(ctx, set, comp)
			require.NoError(t, err)
			assert.Equal(t, want.Pix, got.Pix)

			assert.Equal(t, []string{"images/noise/a.vqc"}, list(t, store, imagePrefix))
			assert.Equal(t, []string{"sets/" + f.set.ID + ".vqa"}, list(t, store, setPrefix))
			assert.Len(t, list(t, store, manifestPrefix), 2)
			assert.Equal(t, uint64(2), reopened.Manifest().Generation)
		})
	}
}

func TestCatalog_PutCodebookSetIdempotent(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	f := newFixture(t, colorspace.KindDirect)

	cat, err := New(ctx, store, fixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	require.NoError(t, err)

	first, err := cat.PutCodebookSet(ctx, f.set)
	require.NoError(t, err)
	second, err := cat.PutCodebookSet(ctx, f.set)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), first.CreatedAt)
	assert.Equal(t, 3, store.Len(), "set, manifest and commit marker")

	// A catalog without the set in its manifest finds the blob in place.
	other := blobstore.NewMemoryStore()
	blob, err := blobstore.ReadAll(ctx, store, first.Blob)
	require.NoError(t, err)
	require.NoError(t, other.Put(ctx, first.Blob, blob))

	cat2, err := New(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, cat2.Sets())
	_, err = cat2.PutCodebookSet(ctx, f.set)
	require.NoError(t, err)
	assert.Len(t, cat2.Sets(), 1)
	assert.Equal(t, 3, other.Len())
}

func TestCatalog_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, colorspace.KindDirect)
	cat, err := New(ctx, blobstore.NewMemoryStore())
	require.NoError(t, err)

	_, err = cat.PutCompressed(ctx, "img", f.comp)
	assert.ErrorIs(t, err, ErrNotFound, "set must be stored first")

	forged := *f.set
	forged.ID = "not-the-fingerprint"
	_, err = cat.PutCodebookSet(ctx, &forged)
	assert.ErrorIs(t, err, vqcodec.ErrCodebookMismatch)

	_, err = cat.PutCodebookSet(ctx, nil)
	assert.ErrorIs(t, err, vqcodec.ErrMissingInput)

	_, err = cat.PutCodebookSet(ctx, f.set)
	require.NoError(t, err)

	_, err = cat.PutCompressed(ctx, "../escape", f.comp)
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = cat.PutCompressed(ctx, "img", nil)
	assert.ErrorIs(t, err, vqcodec.ErrMissingInput)

	mismatched := *f.comp
	mismatched.Pipeline = colorspace.KindLumaChroma
	_, err = cat.PutCompressed(ctx, "img", &mismatched)
	assert.ErrorIs(t, err, vqcodec.ErrCodebookMismatch)

	_, err = cat.GetCompressed(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = cat.GetCodebookSet(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = cat.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_Delete(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	f := newFixture(t, colorspace.KindDirect)
	cat, err := New(ctx, store)
	require.NoError(t, err)

	_, err = cat.PutCodebookSet(ctx, f.set)
	require.NoError(t, err)
	_, err = cat.PutCompressed(ctx, "img", f.comp)
	require.NoError(t, err)

	assert.ErrorIs(t, cat.DeleteCodebookSet(ctx, f.set.ID), ErrInUse)

	require.NoError(t, cat.DeleteCompressed(ctx, "img"))
	assert.ErrorIs(t, cat.DeleteCompressed(ctx, "img"), ErrNotFound)
	require.NoError(t, cat.DeleteCodebookSet(ctx, f.set.ID))
	assert.ErrorIs(t, cat.DeleteCodebookSet(ctx, f.set.ID), ErrNotFound)

	assert.Empty(t, list(t, store, setPrefix))
	assert.Empty(t, list(t, store, imagePrefix))
	assert.Empty(t, cat.Manifest().Sets)

	reopened, err := New(ctx, store)
	require.NoError(t, err)
	assert.Empty(t, reopened.Sets())
	assert.Empty(t, reopened.Images())
}

func TestCatalog_ManifestFormat(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	f := newFixture(t, colorspace.KindDirect)

	cat, err := New(ctx, store, WithManifestFormat(FormatIndented), WithCompression(container.CompressionLZ4))
	require.NoError(t, err)
	_, err = cat.PutCodebookSet(ctx, f.set)
	require.NoError(t, err)

	current := latestManifest(t, store)
	raw, err := blobstore.ReadAll(ctx, store, current)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "indented\n{\n  "))
	assert.Contains(t, string(raw), `"pipeline": "direct"`)

	// Written indented, read back by a catalog writing compact manifests.
	reopened, err := New(ctx, store)
	require.NoError(t, err)
	require.Len(t, reopened.Sets(), 1)
	assert.Equal(t, colorspace.KindDirect, reopened.Sets()[0].Pipeline)

	_, err = reopened.PutCompressed(ctx, "a", f.comp)
	require.NoError(t, err)
	raw, err = blobstore.ReadAll(ctx, store, latestManifest(t, store))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "compact\n{\""))

	require.NoError(t, store.Put(ctx, latestManifest(t, store), []byte("msgpack\n\x80")))
	_, err = New(ctx, store)
	assert.ErrorIs(t, err, ErrUnknownFormat)

	require.NoError(t, store.Put(ctx, latestManifest(t, store), []byte("compact\n"+`{"version":99}`)))
	_, err = New(ctx, store)
	assert.ErrorIs(t, err, ErrManifestVersion)
}

func TestParseManifestFormat(t *testing.T) {
	for _, name := range []string{"compact", "indented"} {
		f, err := ParseManifestFormat(name)
		require.NoError(t, err)
		assert.Equal(t, name, string(f))
	}
	_, err := ParseManifestFormat("json")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestCatalog_CorruptBlob(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	f := newFixture(t, colorspace.KindDirect)
	cat, err := New(ctx, store)
	require.NoError(t, err)

	entry, err := cat.PutCodebookSet(ctx, f.set)
	require.NoError(t, err)

	data, err := blobstore.ReadAll(ctx, store, entry.Blob)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, store.Put(ctx, entry.Blob, data))

	reopened, err := New(ctx, store)
	require.NoError(t, err)
	_, err = reopened.GetCodebookSet(ctx, f.set.ID)
	assert.ErrorIs(t, err, container.ErrChecksum)
}

func TestCatalog_RateLimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, colorspace.KindDirect)
	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 30})

	cat, err := New(ctx, blobstore.NewMemoryStore(), WithResourceController(rc))
	require.NoError(t, err)
	_, err = cat.PutCodebookSet(ctx, f.set)
	require.NoError(t, err)
	_, err = cat.PutCompressed(ctx, "img", f.comp)
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = cat.PutCompressed(cancelled, "img2", f.comp)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, cat.Images(), 1)
}

func TestCatalog_WritersMergeManifests(t *testing.T) {
	ctx := context.Background()
	direct := newFixture(t, colorspace.KindDirect)
	lumaChroma := newFixture(t, colorspace.KindLumaChroma)

	for name, store := range map[string]blobstore.Store{
		"memory": blobstore.NewMemoryStore(),
		"local":  blobstore.NewLocalStore(t.TempDir()),
	} {
		t.Run(name, func(t *testing.T) {
			// Both writers load the same empty manifest.
			a, err := New(ctx, store)
			require.NoError(t, err)
			b, err := New(ctx, store)
			require.NoError(t, err)

			_, err = a.PutCodebookSet(ctx, direct.set)
			require.NoError(t, err)
			_, err = b.PutCodebookSet(ctx, lumaChroma.set)
			require.NoError(t, err)
			assert.Len(t, b.Sets(), 2, "the second writer picks up the first writer's set")

			reopened, err := New(ctx, store)
			require.NoError(t, err)
			assert.Len(t, reopened.Sets(), 2)
			assert.Equal(t, uint64(2), reopened.Manifest().Generation)

			// The stale writer still refuses work the manifest forbids.
			_, err = a.PutCompressed(ctx, "lc", lumaChroma.comp)
			assert.ErrorIs(t, err, ErrNotFound, "a has not seen the luma-chroma set")
			require.NoError(t, a.Refresh(ctx))
			_, err = a.PutCompressed(ctx, "lc", lumaChroma.comp)
			require.NoError(t, err)

			assert.ErrorIs(t, b.DeleteCodebookSet(ctx, lumaChroma.set.ID), ErrInUse,
				"the reloaded manifest shows the image")
		})
	}
}

func TestCatalog_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	f := newFixture(t, colorspace.KindDirect)

	seed, err := New(ctx, store)
	require.NoError(t, err)
	_, err = seed.PutCodebookSet(ctx, f.set)
	require.NoError(t, err)

	const writers = 6
	var wg sync.WaitGroup
	for i := range writers {
		cat, err := New(ctx, store, WithCommitAttempts(2*writers))
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cat.PutCompressed(ctx, fmt.Sprintf("img/%d", i), f.comp)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	reopened, err := New(ctx, store)
	require.NoError(t, err)
	assert.Len(t, reopened.Images(), writers)
	assert.Equal(t, uint64(1+writers), reopened.Manifest().Generation)
	assert.LessOrEqual(t, len(list(t, store, manifestPrefix)), writers)
}

type conflictingCommitter struct {
	blobstore.Committer
	commits int
}

func (c *conflictingCommitter) Commit(context.Context, uint64, string) error {
	c.commits++
	return blobstore.ErrConflict
}

func TestCatalog_CommitAttemptsExhausted(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	f := newFixture(t, colorspace.KindDirect)

	committer := &conflictingCommitter{Committer: blobstore.NewStoreCommitter(store, "")}
	cat, err := New(ctx, store, WithCommitter(committer), WithCommitAttempts(3))
	require.NoError(t, err)

	_, err = cat.PutCodebookSet(ctx, f.set)
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.ErrorIs(t, err, blobstore.ErrConflict)
	assert.Equal(t, 3, committer.commits)
	assert.Empty(t, cat.Sets())
	assert.Empty(t, list(t, store, manifestPrefix), "losing manifests are removed")
}

func TestCatalog_RetainManifests(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	f := newFixture(t, colorspace.KindDirect)

	cat, err := New(ctx, store, WithRetainManifests(3))
	require.NoError(t, err)
	_, err = cat.PutCodebookSet(ctx, f.set)
	require.NoError(t, err)
	for i := range 5 {
		_, err = cat.PutCompressed(ctx, fmt.Sprintf("img/%d", i), f.comp)
		require.NoError(t, err)
	}

	manifests := list(t, store, manifestPrefix)
	require.Len(t, manifests, 3)
	gen, ok := parseManifestGeneration(manifests[0])
	require.True(t, ok)
	assert.Equal(t, uint64(4), gen)
	assert.Len(t, list(t, store, blobstore.DefaultCommitPrefix), 3)
	assert.Equal(t, manifests[2], latestManifest(t, store))
}
