package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/hupe1980/vqcodec/blobstore"
	"github.com/minio/minio-go/v7"
)

// DefaultInlineReadLimit is the largest object Open downloads whole.
const DefaultInlineReadLimit = 4 << 20

// Store implements blobstore.Store for MinIO and S3-compatible storage.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
	inline int64
}

var _ blobstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithInlineReadLimit sets the largest object Open downloads whole. Larger
// objects are read with ranged GETs.
func WithInlineReadLimit(n int64) Option {
	return func(s *Store) { s.inline = n }
}

// NewStore creates a new MinIO blob store.
// rootPrefix is prepended to all keys (e.g. "vqcodec/").
func NewStore(client *minio.Client, bucket, rootPrefix string, opts ...Option) *Store {
	s := &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
		inline: DefaultInlineReadLimit,
	}
	for _, fn := range opts {
		fn(s)
	}
	return s
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

// Open fetches the object. Artifacts up to the inline read limit are read
// in the opening request and implement blobstore.Mappable.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	// GetObject is lazy; Stat issues the request.
	info, err := obj.Stat()
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", blobstore.ErrNotFound, s.bucket, key)
		}
		return nil, err
	}
	if info.Size > s.inline {
		return &rangedObject{
			client: s.client,
			bucket: s.bucket,
			key:    key,
			etag:   info.ETag,
			size:   info.Size,
		}, nil
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("minio: read %s: %w", key, err)
	}
	return blobstore.NewBytesBlob(data), nil
}

// Put writes a blob with a known length in a single request.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

// Create buffers the blob and writes it with Put on Close.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	if err := blobstore.ValidateName(name); err != nil {
		return nil, err
	}
	return &bufferedWriter{put: func(data []byte) error { return s.Put(ctx, name, data) }}, nil
}

// Delete removes a blob.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// List returns all blob names with the given prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.key(prefix)
	if strings.HasSuffix(prefix, "/") {
		fullPrefix += "/"
	}

	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    fullPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("minio: list %s: %w", fullPrefix, obj.Err)
		}
		if name := strings.TrimPrefix(strings.TrimPrefix(obj.Key, s.prefix), "/"); name != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// rangedObject reads a large object with ranged GETs pinned to the ETag
// seen by Open.
type rangedObject struct {
	client *minio.Client
	bucket string
	key    string
	etag   string
	size   int64
}

func (o *rangedObject) Size() int64 { return o.size }

func (o *rangedObject) Close() error { return nil }

// get returns [off, end], both inclusive.
func (o *rangedObject) get(ctx context.Context, off, end int64) (*minio.Object, error) {
	var opts minio.GetObjectOptions
	if err := opts.SetRange(off, end); err != nil {
		return nil, err
	}
	if o.etag != "" {
		if err := opts.SetMatchETag(o.etag); err != nil {
			return nil, err
		}
	}
	return o.client.GetObject(ctx, o.bucket, o.key, opts)
}

func (o *rangedObject) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("minio: negative offset %d", off)
	}
	if off >= o.size {
		return 0, io.EOF
	}

	want := min(int64(len(p)), o.size-off)
	obj, err := o.get(ctx, off, off+want-1)
	if err != nil {
		return 0, err
	}
	defer obj.Close()

	n, err := io.ReadFull(obj, p[:want])
	if err != nil {
		return n, err
	}
	if int(want) < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (o *rangedObject) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || off > o.size {
		return nil, io.EOF
	}
	length = min(max(length, 0), o.size-off)
	if length == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return o.get(ctx, off, off+length-1)
}

// bufferedWriter collects an artifact and hands it to put on Close.
type bufferedWriter struct {
	put  func([]byte) error
	buf  bytes.Buffer
	done bool
	err  error
}

func (w *bufferedWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

// Close writes the buffered content. Repeated calls return the first
// result.
func (w *bufferedWriter) Close() error {
	if w.done {
		return w.err
	}
	w.done = true
	w.err = w.put(w.buf.Bytes())
	return w.err
}

func (w *bufferedWriter) Abort() error {
	w.done = true
	w.buf.Reset()
	return nil
}
