package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/vqcodec/blobstore"
)

// DefaultInlineReadLimit is the largest object Open downloads whole.
// Codebook sets and compressed images are decoded from the complete frame,
// so fetching them in the opening GET saves a round trip per range.
const DefaultInlineReadLimit = 4 << 20

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

// openObject issues one GET for key. Objects up to inlineLimit are read
// into memory; for larger ones the body is dropped and a rangedObject pinned
// to the returned ETag is handed out.
func openObject(ctx context.Context, client Client, bucket, key string, inlineLimit int64) (blobstore.Blob, error) {
	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s", blobstore.ErrNotFound, bucket, key)
		}
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if size := aws.ToInt64(resp.ContentLength); resp.ContentLength != nil && size > inlineLimit {
		return &rangedObject{
			client: client,
			bucket: bucket,
			key:    key,
			etag:   resp.ETag,
			size:   size,
		}, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: read %s: %w", key, err)
	}
	if resp.ContentLength != nil && int64(len(data)) != *resp.ContentLength {
		return nil, fmt.Errorf("s3: read %s: got %d of %d bytes", key, len(data), *resp.ContentLength)
	}
	return blobstore.NewBytesBlob(data), nil
}

// rangedObject reads a large object with ranged GETs. A non-nil etag makes
// every range conditional, so a replaced object fails instead of mixing
// generations.
type rangedObject struct {
	client Client
	bucket string
	key    string
	etag   *string
	size   int64
}

func (o *rangedObject) Close() error { return nil }

func (o *rangedObject) Size() int64 { return o.size }

// get returns the body of [off, end], both inclusive.
func (o *rangedObject) get(ctx context.Context, off, end int64) (io.ReadCloser, error) {
	resp, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket:  aws.String(o.bucket),
		Key:     aws.String(o.key),
		Range:   aws.String(fmt.Sprintf("bytes=%d-%d", off, end)),
		IfMatch: o.etag,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: read %s bytes %d-%d: %w", o.key, off, end, err)
	}
	return resp.Body, nil
}

func (o *rangedObject) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("s3: negative offset %d", off)
	}
	if off >= o.size {
		return 0, io.EOF
	}

	want := min(int64(len(p)), o.size-off)
	body, err := o.get(ctx, off, off+want-1)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()

	n, err := io.ReadFull(body, p[:want])
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
