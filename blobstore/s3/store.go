package s3

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/hupe1980/vqcodec/blobstore"
)

// ErrConflict is returned by PutIfNotExists when the object already exists.
// It matches blobstore.ErrExists.
var ErrConflict = fmt.Errorf("s3: object already exists: %w", blobstore.ErrExists)

// Options configures a Store.
type Options struct {
	Prefix       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	Upload       UploadConfig
	// InlineReadLimit is the largest object Open downloads whole.
	InlineReadLimit int64
}

// Option mutates Options.
type Option func(*Options)

// WithPrefix prepends prefix to every key.
func WithPrefix(prefix string) Option { return func(o *Options) { o.Prefix = prefix } }

// WithRegion overrides the region from the shared AWS config.
func WithRegion(region string) Option { return func(o *Options) { o.Region = region } }

// WithEndpoint points the client at a custom endpoint (e.g. LocalStack).
func WithEndpoint(endpoint string) Option { return func(o *Options) { o.Endpoint = endpoint } }

// WithPathStyle enables path-style addressing.
func WithPathStyle(enabled bool) Option { return func(o *Options) { o.UsePathStyle = enabled } }

// WithUploadConfig replaces the upload settings.
func WithUploadConfig(cfg UploadConfig) Option { return func(o *Options) { o.Upload = cfg } }

// WithInlineReadLimit sets the largest object Open downloads whole. Larger
// objects are read with ranged GETs.
func WithInlineReadLimit(n int64) Option { return func(o *Options) { o.InlineReadLimit = n } }

func applyOptions(optFns []Option) Options {
	o := Options{Upload: DefaultUploadConfig(), InlineReadLimit: DefaultInlineReadLimit}
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}

// Store implements blobstore.Store for S3.
type Store struct {
	client   Client
	bucket   string
	prefix   string
	upload   UploadConfig
	uploader *manager.Uploader
	inline   int64
}

var (
	_ blobstore.Store            = (*Store)(nil)
	_ blobstore.ConditionalStore = (*Store)(nil)
)

// New loads the default AWS configuration and creates a Store for bucket.
func New(ctx context.Context, bucket string, optFns ...Option) (*Store, error) {
	o := applyOptions(optFns)

	var loadOpts []func(*config.LoadOptions) error
	if o.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(o.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
		}
		so.UsePathStyle = o.UsePathStyle
	})
	return NewStore(client, bucket, o.Prefix, WithUploadConfig(o.Upload), WithInlineReadLimit(o.InlineReadLimit)), nil
}

// NewStore creates a Store on an existing client.
// rootPrefix is prepended to all keys (e.g. "vqcodec/").
func NewStore(client Client, bucket, rootPrefix string, optFns ...Option) *Store {
	o := applyOptions(optFns)
	return &Store{
		client:   client,
		bucket:   bucket,
		prefix:   rootPrefix,
		upload:   o.Upload,
		uploader: newUploader(client, o.Upload),
		inline:   o.InlineReadLimit,
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Open fetches the object. Objects up to the inline read limit are held in
// memory and implement blobstore.Mappable.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	return openObject(ctx, s.client, s.bucket, s.key(name), s.inline)
}

// Create buffers the blob and uploads it with Put on Close.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	if err := blobstore.ValidateName(name); err != nil {
		return nil, err
	}
	return &artifactWriter{ctx: ctx, store: s, name: name}, nil
}

// Put uploads data. Blobs below the part size go out as a single PUT with a
// CRC32C checksum; larger ones use the multipart uploader.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	key := s.key(name)
	if int64(len(data)) < s.upload.PartSize {
		return putObject(ctx, s.client, s.bucket, key, data, nil)
	}
	return uploadObject(ctx, s.uploader, s.bucket, key, data, s.upload.EnableChecksum)
}

// PutIfNotExists writes a blob only if the key is free. It returns
// ErrConflict when the object already exists.
func (s *Store) PutIfNotExists(ctx context.Context, name string, data []byte) error {
	err := putObject(ctx, s.client, s.bucket, s.key(name), data, aws.String("*"))
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "PreconditionFailed", "ConditionalRequestConflict":
				return ErrConflict
			}
		}
		return err
	}
	return nil
}

// Delete removes a blob.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	return err
}

// List returns the names below the root prefix that start with prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	full := s.key(prefix)
	if strings.HasSuffix(prefix, "/") {
		full += "/"
	}

	var names []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(full),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: list %s: %w", full, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(strings.TrimPrefix(aws.ToString(obj.Key), s.prefix), "/")
			if name != "" {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return names, nil
}
