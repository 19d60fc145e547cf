package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sync/atomic"
)

// localBlob is a read-only memory mapping of one blob file. Codebook sets
// and compressed images are decoded straight from the mapping through
// Mappable. Empty files are not mapped.
type localBlob struct {
	data   []byte
	unmap  func([]byte) error
	closed atomic.Bool
}

func openLocalBlob(path string) (*localBlob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size > math.MaxInt {
		return nil, fmt.Errorf("blobstore: %s is too large to map (%d bytes)", path, size)
	}
	if size == 0 {
		return &localBlob{}, nil
	}

	data, unmap, err := mapFile(f, int(size))
	if err != nil {
		return nil, fmt.Errorf("blobstore: map %s: %w", path, err)
	}
	return &localBlob{data: data, unmap: unmap}, nil
}

func (b *localBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if b.closed.Load() {
		return 0, os.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("blobstore: negative offset %d", off)
	}
	if off >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// ReadRange copies the range so the reader survives Close.
func (b *localBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	if b.closed.Load() {
		return nil, os.ErrClosed
	}
	size := b.Size()
	if off < 0 || off > size {
		return nil, io.EOF
	}
	section := b.data[off : off+min(max(length, 0), size-off)]
	adviseSequential(section)
	return io.NopCloser(bytes.NewReader(bytes.Clone(section))), nil
}

// Close unmaps the file. It is idempotent.
func (b *localBlob) Close() error {
	if b.closed.Swap(true) || b.unmap == nil {
		return nil
	}
	return b.unmap(b.data)
}

func (b *localBlob) Size() int64 {
	return int64(len(b.data))
}

func (b *localBlob) Bytes() ([]byte, error) {
	if b.closed.Load() {
		return nil, os.ErrClosed
	}
	return b.data, nil
}
