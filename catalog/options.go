package catalog

import (
	"io"
	"log/slog"
	"time"

	"github.com/hupe1980/vqcodec/blobstore"
	"github.com/hupe1980/vqcodec/container"
	"github.com/hupe1980/vqcodec/resource"
)

type options struct {
	format      ManifestFormat
	compression container.Compression
	rc          *resource.Controller
	logger      *slog.Logger
	now         func() time.Time

	committer      blobstore.Committer
	commitAttempts int
	retain         int
}

const (
	// DefaultCommitAttempts bounds the retries of a conflicting update.
	DefaultCommitAttempts = 8
	// DefaultRetainManifests is the number of manifest generations kept.
	DefaultRetainManifests = 2
)

// Option configures a Catalog.
type Option func(*options)

// WithManifestFormat sets the format of written manifests. Existing
// manifests are read in the format they name.
func WithManifestFormat(f ManifestFormat) Option {
	return func(o *options) { o.format = f }
}

// WithCompression sets the payload compression of written artifacts.
func WithCompression(c container.Compression) Option {
	return func(o *options) { o.compression = c }
}

// WithResourceController rate-limits artifact IO through rc.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) { o.rc = rc }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCommitter publishes manifest generations through c instead of the
// commit markers kept in the catalog's own store.
func WithCommitter(c blobstore.Committer) Option {
	return func(o *options) { o.committer = c }
}

// WithCommitAttempts sets how often a conflicting update is retried.
func WithCommitAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.commitAttempts = n
		}
	}
}

// WithRetainManifests sets how many manifest generations stay in the store.
// Readers holding an older generation may find its blob gone.
func WithRetainManifests(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.retain = n
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{
		format:      FormatCompact,
		compression: container.CompressionZSTD,
		now:         time.Now,

		commitAttempts: DefaultCommitAttempts,
		retain:         DefaultRetainManifests,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.format == "" {
		o.format = FormatCompact
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}
