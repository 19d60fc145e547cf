// Package corpus loads training and test images from directories.
//
// A corpus root holds one subdirectory per category:
//
//	training/
//	  nature/ faces/ animals/
//
// Only .png, .jpg and .jpeg files are read, in lexical order.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	// JPEG decoder for image.Decode; PNG is registered by image/png.
	_ "image/jpeg"

	"github.com/hupe1980/vqcodec"
	"golang.org/x/sync/errgroup"
)

const (
	// TrainingPerCategory is the number of training images taken from each
	// category.
	TrainingPerCategory = 10
	// TestingPerCategory is the number of test images taken from each
	// category.
	TestingPerCategory = 5
)

// ErrNotEnoughImages is returned when a category holds fewer images than
// requested.
var ErrNotEnoughImages = fmt.Errorf("corpus: not enough images: %w", vqcodec.ErrMissingInput)

// ErrInvalidLimit is returned for a negative per-category limit.
var ErrInvalidLimit = fmt.Errorf("corpus: invalid limit: %w", vqcodec.ErrInvalidConfig)

// Image is a decoded corpus file.
type Image struct {
	// Name is the path relative to the loaded root, slash-separated.
	Name  string
	Image image.Image
}

type options struct {
	logger  *slog.Logger
	workers int
}

// Option configures loading.
type Option func(*options)

// WithLogger logs skipped files to l.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithWorkers bounds the number of files decoded concurrently.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

func applyOptions(optFns []Option) options {
	o := options{workers: runtime.GOMAXPROCS(0)}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// IsImageFile reports whether name has a supported image extension.
func IsImageFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// LoadDir decodes every image file directly inside dir.
func LoadDir(ctx context.Context, dir string, optFns ...Option) ([]Image, error) {
	return LoadFS(ctx, os.DirFS(dir), ".", optFns...)
}

// LoadFS decodes every image file directly inside dir of fsys. Files that
// fail to decode are skipped and logged.
func LoadFS(ctx context.Context, fsys fs.FS, dir string, optFns ...Option) ([]Image, error) {
	opts := applyOptions(optFns)

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("corpus: read %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsImageFile(e.Name()) {
			names = append(names, path.Join(dir, e.Name()))
		}
	}
	slices.Sort(names)

	decoded := make([]image.Image, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := decodeFile(fsys, name)
			if err != nil {
				opts.logger.WarnContext(gctx, "skipping unreadable image", "file", name, "error", err)
				return nil
			}
			decoded[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Image, 0, len(names))
	for i, img := range decoded {
		if img != nil {
			out = append(out, Image{Name: names[i], Image: img})
		}
	}
	opts.logger.DebugContext(ctx, "loaded images", "dir", dir, "count", len(out))
	return out, nil
}

func decodeFile(fsys fs.FS, name string) (image.Image, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

// LoadCategories loads the first limit images of every category under
// root, in category order. A missing or short category yields
// ErrNotEnoughImages.
func LoadCategories(ctx context.Context, root string, categories []string, limit int, optFns ...Option) ([]Image, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	fsys := os.DirFS(root)

	var out []Image
	for _, cat := range categories {
		imgs, err := LoadFS(ctx, fsys, cat, optFns...)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: category %s does not exist under %s", ErrNotEnoughImages, cat, root)
			}
			return nil, err
		}
		if len(imgs) < limit {
			return nil, fmt.Errorf("%w: category %s has %d, need %d", ErrNotEnoughImages, cat, len(imgs), limit)
		}
		out = append(out, imgs[:limit]...)
	}
	return out, nil
}

// Images returns the decoded images of list.
func Images(list []Image) []image.Image {
	out := make([]image.Image, len(list))
	for i, img := range list {
		out[i] = img.Image
	}
	return out
}

// Names returns the names of list.
func Names(list []Image) []string {
	out := make([]string, len(list))
	for i, img := range list {
		out[i] = img.Name
	}
	return out
}

// WritePNG encodes img to path, creating parent directories.
func WritePNG(name string, img image.Image) (err error) {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return png.Encode(f, img)
}
