package s3

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// UploadConfig configures how Put sends objects.
type UploadConfig struct {
	// PartSize is the multipart part size and the size from which Put hands
	// the object to the multipart uploader. Default: 8MB.
	PartSize int64

	// Concurrency is the number of parts uploaded in parallel. Default: 5.
	Concurrency int

	// EnableChecksum requests CRC32C validation of multipart uploads.
	// Single PUTs always carry a CRC32C. Default: true.
	EnableChecksum bool

	// LeavePartsOnError keeps uploaded parts when a multipart upload fails.
	LeavePartsOnError bool
}

// DefaultUploadConfig returns the default upload settings.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		PartSize:       8 << 20,
		Concurrency:    5,
		EnableChecksum: true,
	}
}

func newUploader(client Client, cfg UploadConfig) *manager.Uploader {
	return manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.PartSize >= manager.MinUploadPartSize {
			u.PartSize = cfg.PartSize
		}
		if cfg.Concurrency > 0 {
			u.Concurrency = cfg.Concurrency
		}
		u.LeavePartsOnError = cfg.LeavePartsOnError
	})
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// computeCRC32C returns the checksum in the S3 header format: base64 of the
// big-endian bytes.
func computeCRC32C(data []byte) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], crc32.Checksum(data, castagnoli))
	return base64.StdEncoding.EncodeToString(b[:])
}

// putObject sends data as one PUT with a CRC32C. A non-nil ifNoneMatch makes
// the write conditional.
func putObject(ctx context.Context, client Client, bucket, key string, data []byte, ifNoneMatch *string) error {
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:         aws.String(bucket),
		Key:            aws.String(key),
		Body:           bytes.NewReader(data),
		ContentLength:  aws.Int64(int64(len(data))),
		ChecksumCRC32C: aws.String(computeCRC32C(data)),
		IfNoneMatch:    ifNoneMatch,
	})
	return err
}

// uploadObject sends data through the multipart uploader.
func uploadObject(ctx context.Context, uploader *manager.Uploader, bucket, key string, data []byte, checksum bool) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if checksum {
		input.ChecksumAlgorithm = types.ChecksumAlgorithmCrc32c
	}
	_, err := uploader.Upload(ctx, input)
	return err
}

// artifactWriter buffers an artifact and uploads it with Put on Close.
// Artifacts are encoded in memory before they are written, so buffering
// costs no extra copy of note and lets small ones go out as a single
// checksummed PUT.
type artifactWriter struct {
	ctx   context.Context
	store *Store
	name  string
	buf   bytes.Buffer
	done  bool
	err   error
}

func (w *artifactWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

// Close uploads the buffered content. Repeated calls return the first
// result.
func (w *artifactWriter) Close() error {
	if w.done {
		return w.err
	}
	w.done = true
	w.err = w.store.Put(w.ctx, w.name, w.buf.Bytes())
	return w.err
}

// Abort drops the buffer; nothing has been sent yet.
func (w *artifactWriter) Abort() error {
	w.done = true
	w.buf.Reset()
	return nil
}
