package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrConflict is returned by Committer.Commit when the version was already
// committed by another writer.
var ErrConflict = errors.New("blobstore: commit conflict")

// Committer publishes versions of a pointer, typically the name of the
// current manifest blob. Versions start at 1 and increase by one per commit.
type Committer interface {
	// Latest returns the highest committed version and the name stored with
	// it. Version 0 means nothing has been committed.
	Latest(ctx context.Context) (version uint64, name string, err error)
	// Commit records name as version. It returns an error matching
	// ErrConflict when version is already taken.
	Commit(ctx context.Context, version uint64, name string) error
}

// DefaultCommitPrefix is where StoreCommitter keeps its version markers.
const DefaultCommitPrefix = "commits/"

// StoreCommitter keeps one marker blob per version in a Store. On a
// ConditionalStore the marker is created with PutIfNotExists, so concurrent
// writers of the same version see ErrConflict. Other stores only detect
// conflicts between writers that do not race on the marker itself.
type StoreCommitter struct {
	store  Store
	prefix string
}

var _ Committer = (*StoreCommitter)(nil)

// NewStoreCommitter creates a Committer whose markers live under prefix.
// An empty prefix selects DefaultCommitPrefix.
func NewStoreCommitter(store Store, prefix string) *StoreCommitter {
	if prefix == "" {
		prefix = DefaultCommitPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &StoreCommitter{store: store, prefix: prefix}
}

// markerName zero-pads the version so lexical order is numeric order.
func (c *StoreCommitter) markerName(version uint64) string {
	return fmt.Sprintf("%s%020d", c.prefix, version)
}

// Latest implements Committer. A marker pruned while it is being read is
// older than the newest one, so the listing is repeated.
func (c *StoreCommitter) Latest(ctx context.Context) (uint64, string, error) {
	for {
		version, name, err := c.latest(ctx)
		if !errors.Is(err, ErrNotFound) {
			return version, name, err
		}
		if err := ctx.Err(); err != nil {
			return 0, "", err
		}
	}
}

func (c *StoreCommitter) latest(ctx context.Context) (uint64, string, error) {
	names, err := c.store.List(ctx, c.prefix)
	if err != nil {
		return 0, "", err
	}
	for i := len(names) - 1; i >= 0; i-- {
		version, err := strconv.ParseUint(strings.TrimPrefix(names[i], c.prefix), 10, 64)
		if err != nil {
			continue
		}
		data, err := ReadAll(ctx, c.store, names[i])
		if err != nil {
			return 0, "", err
		}
		return version, string(data), nil
	}
	return 0, "", nil
}

// Commit implements Committer.
func (c *StoreCommitter) Commit(ctx context.Context, version uint64, name string) error {
	if version == 0 {
		return fmt.Errorf("blobstore: commit version must be positive")
	}
	marker := c.markerName(version)

	if cs, ok := c.store.(ConditionalStore); ok {
		err := cs.PutIfNotExists(ctx, marker, []byte(name))
		if errors.Is(err, ErrExists) {
			return fmt.Errorf("%w: version %d", ErrConflict, version)
		}
		return err
	}

	latest, _, err := c.Latest(ctx)
	if err != nil {
		return err
	}
	if latest >= version {
		return fmt.Errorf("%w: version %d, latest %d", ErrConflict, version, latest)
	}
	return c.store.Put(ctx, marker, []byte(name))
}

// Prune removes markers below version.
func (c *StoreCommitter) Prune(ctx context.Context, version uint64) error {
	names, err := c.store.List(ctx, c.prefix)
	if err != nil {
		return err
	}
	for _, n := range names {
		v, err := strconv.ParseUint(strings.TrimPrefix(n, c.prefix), 10, 64)
		if err != nil || v >= version {
			continue
		}
		if err := c.store.Delete(ctx, n); err != nil {
			return err
		}
	}
	return nil
}
