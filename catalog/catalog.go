// Package catalog stores codebook sets and compressed images in a blob
// store and indexes them in a manifest.
//
// Layout inside the store:
//
//	manifests/<gen>-<uuid>.json  format name line, then the encoded Manifest
//	commits/<gen>                manifest name of each generation
//	sets/<id>.vqa                container frame of a codebook set
//	images/<name>.vqc            container frame of a compressed image
//
// Every update writes a new manifest blob and commits its generation through
// a blobstore.Committer. A writer that loses the race for a generation
// reloads the winner's manifest, reapplies its change and tries the next
// generation. The default committer keeps markers under commits/ in the same
// store; S3 catalogs shared between processes can commit through DynamoDB
// with blobstore/s3.DDBCommitter.
//
// Codebook set IDs are derived from their content, so storing the same set
// twice is a no-op. A compressed image can only be stored once the set it
// references is in the catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hupe1980/vqcodec"
	"github.com/hupe1980/vqcodec/blobstore"
	"github.com/hupe1980/vqcodec/container"
	"github.com/hupe1980/vqcodec/resource"
)

const (
	manifestPrefix = "manifests/"
	setPrefix      = "sets/"
	imagePrefix    = "images/"
)

var (
	// ErrNotFound is returned for sets or images missing from the manifest.
	ErrNotFound = errors.New("catalog: not found")
	// ErrInvalidName is returned for image names that are not clean relative
	// paths.
	ErrInvalidName = errors.New("catalog: invalid image name")
	// ErrInUse is returned when deleting a set that images still reference.
	ErrInUse = errors.New("catalog: codebook set in use")
	// ErrConcurrentUpdate is returned when every commit attempt lost to
	// another writer.
	ErrConcurrentUpdate = errors.New("catalog: concurrent update")
)

// Catalog is safe for concurrent use. Writers in different processes
// coordinate through the committer.
type Catalog struct {
	store     blobstore.Store
	committer blobstore.Committer
	opts      options

	mu       sync.RWMutex
	manifest *Manifest

	// decoded sets by ID; sets are immutable once stored
	sets sync.Map
}

// New opens the catalog in store, loading its manifest if one exists.
func New(ctx context.Context, store blobstore.Store, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		store: store,
		opts:  applyOptions(opts),
	}
	c.committer = c.opts.committer
	if c.committer == nil {
		c.committer = blobstore.NewStoreCommitter(store, blobstore.DefaultCommitPrefix)
	}
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Refresh reloads the latest committed manifest.
func (c *Catalog) Refresh(ctx context.Context) error {
	m, err := c.load(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.manifest = m
	c.mu.Unlock()
	return nil
}

// load reads the manifest of the latest committed generation. A manifest
// pruned between reading the pointer and the blob is retried while newer
// generations keep appearing.
func (c *Catalog) load(ctx context.Context) (*Manifest, error) {
	gen, name, err := c.committer.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if gen == 0 {
		return newManifest(), nil
	}
	data, err := c.read(ctx, name)
	for errors.Is(err, blobstore.ErrNotFound) {
		next, nextName, lerr := c.committer.Latest(ctx)
		if lerr != nil || next <= gen {
			break
		}
		gen, name = next, nextName
		data, err = c.read(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: manifest generation %d: %w", gen, err)
	}
	m, err := decodeManifest(data)
	if err != nil {
		return nil, err
	}
	m.Generation = gen
	return m, nil
}

// Manifest returns a snapshot of the manifest.
func (c *Catalog) Manifest() *Manifest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.manifest.clone()
}

// Sets returns the stored codebook sets ordered by ID.
func (c *Catalog) Sets() []SetEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.manifest.SortedSets()
}

// Images returns the stored images ordered by name.
func (c *Catalog) Images() []ImageEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.manifest.SortedImages()
}

// PutCodebookSet stores set under its ID. Storing a set that is already in
// the catalog returns the existing entry.
func (c *Catalog) PutCodebookSet(ctx context.Context, set *vqcodec.CodebookSet) (SetEntry, error) {
	if err := set.Validate(); err != nil {
		return SetEntry{}, err
	}
	id, err := set.Fingerprint()
	if err != nil {
		return SetEntry{}, err
	}
	if set.ID != id {
		return SetEntry{}, fmt.Errorf("%w: set id %q does not match content %s", vqcodec.ErrCodebookMismatch, set.ID, id)
	}

	c.mu.RLock()
	existing, ok := c.manifest.Sets[id]
	c.mu.RUnlock()
	if ok {
		return existing, nil
	}

	data, err := container.EncodeCodebookSet(set, c.opts.compression)
	if err != nil {
		return SetEntry{}, err
	}
	entry := SetEntry{
		ID:           id,
		Pipeline:     set.Pipeline,
		Block:        set.Block,
		CodebookSize: set.Size(),
		Roles:        append([]string(nil), set.Roles...),
		Blob:         setPrefix + id + ".vqa",
		Size:         int64(len(data)),
		CreatedAt:    c.opts.now().UTC(),
	}
	if err := c.write(ctx, entry.Blob, data, true); err != nil {
		return SetEntry{}, err
	}
	err = c.update(ctx, func(m *Manifest) error {
		if stored, ok := m.Sets[id]; ok {
			entry = stored
			return nil
		}
		m.Sets[id] = entry
		return nil
	})
	if err != nil {
		return SetEntry{}, err
	}
	c.sets.Store(id, set)

	c.opts.logger.InfoContext(ctx, "stored codebook set",
		"id", id, "pipeline", set.Pipeline.String(), "bytes", len(data))
	return entry, nil
}

// GetCodebookSet loads the set with the given ID.
func (c *Catalog) GetCodebookSet(ctx context.Context, id string) (*vqcodec.CodebookSet, error) {
	if v, ok := c.sets.Load(id); ok {
		return v.(*vqcodec.CodebookSet), nil
	}

	c.mu.RLock()
	entry, ok := c.manifest.Sets[id]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: codebook set %s", ErrNotFound, id)
	}

	data, err := c.read(ctx, entry.Blob)
	if err != nil {
		return nil, err
	}
	set, err := container.DecodeCodebookSet(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", entry.Blob, err)
	}
	if set.ID != id {
		return nil, fmt.Errorf("%w: blob %s holds set %s", vqcodec.ErrCodebookMismatch, entry.Blob, set.ID)
	}

	v, _ := c.sets.LoadOrStore(id, set)
	return v.(*vqcodec.CodebookSet), nil
}

// DeleteCodebookSet removes a set no stored image references.
func (c *Catalog) DeleteCodebookSet(ctx context.Context, id string) error {
	var entry SetEntry
	err := c.update(ctx, func(m *Manifest) error {
		var ok bool
		if entry, ok = m.Sets[id]; !ok {
			return fmt.Errorf("%w: codebook set %s", ErrNotFound, id)
		}
		var users int
		for _, img := range m.Images {
			if img.CodebookID == id {
				users++
			}
		}
		if users > 0 {
			return fmt.Errorf("%w: %s is referenced by %d images", ErrInUse, id, users)
		}
		delete(m.Sets, id)
		return nil
	})
	if err != nil {
		return err
	}
	c.sets.Delete(id)
	return c.store.Delete(ctx, entry.Blob)
}

// PutCompressed stores comp under name, replacing any image of that name.
// The referenced codebook set must already be in the catalog.
func (c *Catalog) PutCompressed(ctx context.Context, name string, comp *vqcodec.Compressed) (ImageEntry, error) {
	if err := blobstore.ValidateName(name); err != nil {
		return ImageEntry{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if comp == nil {
		return ImageEntry{}, fmt.Errorf("%w: nil compressed image", vqcodec.ErrMissingInput)
	}

	c.mu.RLock()
	set, ok := c.manifest.Sets[comp.CodebookID]
	c.mu.RUnlock()
	if !ok {
		return ImageEntry{}, fmt.Errorf("%w: codebook set %s", ErrNotFound, comp.CodebookID)
	}
	if set.Pipeline != comp.Pipeline || set.Block != comp.Block || len(set.Roles) != len(comp.Grids) {
		return ImageEntry{}, fmt.Errorf("%w: image does not match set %s", vqcodec.ErrCodebookMismatch, set.ID)
	}

	data, err := container.EncodeCompressed(comp, c.opts.compression)
	if err != nil {
		return ImageEntry{}, err
	}
	entry := ImageEntry{
		Name:        name,
		CodebookID:  comp.CodebookID,
		Pipeline:    comp.Pipeline,
		Width:       comp.Width,
		Height:      comp.Height,
		Blocks:      comp.Blocks(),
		PayloadBits: comp.PayloadBits(set.CodebookSize),
		Blob:        imagePrefix + name + ".vqc",
		Size:        int64(len(data)),
		CreatedAt:   c.opts.now().UTC(),
	}
	if err := c.write(ctx, entry.Blob, data, false); err != nil {
		return ImageEntry{}, err
	}
	err = c.update(ctx, func(m *Manifest) error {
		if _, ok := m.Sets[comp.CodebookID]; !ok {
			return fmt.Errorf("%w: codebook set %s", ErrNotFound, comp.CodebookID)
		}
		m.Images[name] = entry
		return nil
	})
	if err != nil {
		return ImageEntry{}, err
	}

	c.opts.logger.DebugContext(ctx, "stored compressed image",
		"name", name, "codebook_id", comp.CodebookID, "bytes", len(data))
	return entry, nil
}

// GetCompressed loads the image stored under name.
func (c *Catalog) GetCompressed(ctx context.Context, name string) (*vqcodec.Compressed, error) {
	c.mu.RLock()
	entry, ok := c.manifest.Images[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: image %s", ErrNotFound, name)
	}

	data, err := c.read(ctx, entry.Blob)
	if err != nil {
		return nil, err
	}
	comp, err := container.DecodeCompressed(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", entry.Blob, err)
	}
	return comp, nil
}

// Load returns the image stored under name together with its codebook set.
func (c *Catalog) Load(ctx context.Context, name string) (*vqcodec.Compressed, *vqcodec.CodebookSet, error) {
	comp, err := c.GetCompressed(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	set, err := c.GetCodebookSet(ctx, comp.CodebookID)
	if err != nil {
		return nil, nil, err
	}
	return comp, set, nil
}

// DeleteCompressed removes the image stored under name.
func (c *Catalog) DeleteCompressed(ctx context.Context, name string) error {
	var entry ImageEntry
	err := c.update(ctx, func(m *Manifest) error {
		var ok bool
		if entry, ok = m.Images[name]; !ok {
			return fmt.Errorf("%w: image %s", ErrNotFound, name)
		}
		delete(m.Images, name)
		return nil
	})
	if err != nil {
		return err
	}
	return c.store.Delete(ctx, entry.Blob)
}

// update applies fn to a copy of the manifest, writes it as the next
// generation and commits it. On a commit conflict the latest manifest is
// reloaded and fn applied again; fn must therefore only depend on the
// manifest it is given.
func (c *Catalog) update(ctx context.Context, fn func(*Manifest) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	base := c.manifest
	for attempt := 1; ; attempt++ {
		next := base.clone()
		if err := fn(next); err != nil {
			return err
		}
		next.Version = ManifestVersion
		next.Generation = base.Generation + 1
		next.UpdatedAt = c.opts.now().UTC()

		data, err := encodeManifest(c.opts.format, next)
		if err != nil {
			return err
		}
		name := manifestBlobName(next.Generation)
		if err := c.write(ctx, name, data, false); err != nil {
			return err
		}

		err = c.committer.Commit(ctx, next.Generation, name)
		if err == nil {
			c.manifest = next
			c.prune(ctx, next.Generation)
			return nil
		}
		_ = c.store.Delete(ctx, name)
		if !errors.Is(err, blobstore.ErrConflict) {
			return err
		}
		if attempt >= c.opts.commitAttempts {
			return fmt.Errorf("%w: %d attempts: %w", ErrConcurrentUpdate, attempt, err)
		}

		c.opts.logger.DebugContext(ctx, "manifest commit conflict",
			"generation", next.Generation, "attempt", attempt)
		if base, err = c.load(ctx); err != nil {
			return err
		}
		c.manifest = base
	}
}

// prune removes manifests and commit markers older than the retained
// generations. Failures only leave garbage behind.
func (c *Catalog) prune(ctx context.Context, gen uint64) {
	if gen <= uint64(c.opts.retain) {
		return
	}
	keep := gen - uint64(c.opts.retain) + 1

	names, err := c.store.List(ctx, manifestPrefix)
	if err != nil {
		c.opts.logger.WarnContext(ctx, "list manifests", "error", err)
		return
	}
	for _, name := range names {
		if g, ok := parseManifestGeneration(name); ok && g < keep {
			if err := c.store.Delete(ctx, name); err != nil {
				c.opts.logger.WarnContext(ctx, "delete old manifest", "name", name, "error", err)
			}
		}
	}
	if p, ok := c.committer.(interface {
		Prune(ctx context.Context, version uint64) error
	}); ok {
		if err := p.Prune(ctx, keep); err != nil {
			c.opts.logger.WarnContext(ctx, "prune commits", "error", err)
		}
	}
}

// write streams data into name through the IO limit. With createOnly, a
// store that supports conditional writes keeps an existing blob.
func (c *Catalog) write(ctx context.Context, name string, data []byte, createOnly bool) error {
	if cs, ok := c.store.(blobstore.ConditionalStore); ok && createOnly {
		if err := c.opts.rc.AcquireIO(ctx, len(data)); err != nil {
			return err
		}
		if err := cs.PutIfNotExists(ctx, name, data); err != nil && !errors.Is(err, blobstore.ErrExists) {
			return err
		}
		return nil
	}

	w, err := c.store.Create(ctx, name)
	if err != nil {
		return err
	}
	if _, err := resource.NewRateLimitedWriter(ctx, w, c.opts.rc).Write(data); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Close()
}

// read returns the content of name through the IO limit.
func (c *Catalog) read(ctx context.Context, name string) ([]byte, error) {
	b, err := c.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	r, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(resource.NewRateLimitedReader(ctx, r, c.opts.rc))
}
