package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/hupe1980/vqcodec/blobstore"
	vqminio "github.com/hupe1980/vqcodec/blobstore/minio"
	vqs3 "github.com/hupe1980/vqcodec/blobstore/s3"
	"github.com/hupe1980/vqcodec/internal/cache"
	"github.com/hupe1980/vqcodec/resource"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// openStore resolves a store location:
//
//	mem://                                      in-process store
//	/path/to/dir, file:///path/to/dir           local directory
//	s3://bucket/prefix?region=..&endpoint=..&path_style=true&ddb_table=..
//	minio://host:port/bucket/prefix?secure=false
//
// MinIO credentials come from MINIO_ACCESS_KEY and MINIO_SECRET_KEY.
// A positive cacheBytes wraps remote stores in a block cache charged to rc.
// With ddb_table, S3 catalogs commit manifests through DynamoDB; otherwise
// the returned committer is nil and the catalog keeps markers in the store.
func openStore(ctx context.Context, location string, cacheBytes int64, rc *resource.Controller) (blobstore.Store, blobstore.Committer, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, nil, fmt.Errorf("store %q: %w", location, err)
	}

	var (
		store     blobstore.Store
		committer blobstore.Committer
		remote    bool
	)
	switch u.Scheme {
	case "mem":
		store = blobstore.NewMemoryStore()
	case "", "file":
		dir := u.Path
		if u.Scheme == "" {
			dir = location
		}
		if dir == "" {
			return nil, nil, fmt.Errorf("store %q: missing directory", location)
		}
		store = blobstore.NewLocalStore(dir)
	case "s3":
		q := u.Query()
		opts := []vqs3.Option{vqs3.WithPrefix(prefixOf(u))}
		if v := q.Get("region"); v != "" {
			opts = append(opts, vqs3.WithRegion(v))
		}
		if v := q.Get("endpoint"); v != "" {
			opts = append(opts, vqs3.WithEndpoint(v))
		}
		if v, _ := strconv.ParseBool(q.Get("path_style")); v {
			opts = append(opts, vqs3.WithPathStyle(true))
		}
		store, err = vqs3.New(ctx, u.Host, opts...)
		if err != nil {
			return nil, nil, err
		}
		if table := q.Get("ddb_table"); table != "" {
			baseURI := "s3://" + u.Host + "/" + prefixOf(u)
			committer, err = vqs3.NewDDBCommitterFromConfig(ctx, table, baseURI, q.Get("region"))
			if err != nil {
				return nil, nil, err
			}
		}
		remote = true
	case "minio":
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		if bucket == "" {
			return nil, nil, fmt.Errorf("store %q: missing bucket", location)
		}
		secure := true
		if v := u.Query().Get("secure"); v != "" {
			secure, _ = strconv.ParseBool(v)
		}
		client, err := minio.New(u.Host, &minio.Options{
			Creds:  credentials.NewStaticV4(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), ""),
			Secure: secure,
		})
		if err != nil {
			return nil, nil, err
		}
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		store = vqminio.NewStore(client, bucket, prefix)
		remote = true
	default:
		return nil, nil, fmt.Errorf("store %q: unsupported scheme %q", location, u.Scheme)
	}

	if remote && cacheBytes > 0 {
		store = blobstore.NewCachingStore(store, cache.NewLRU(cacheBytes, rc), blobstore.DefaultCacheBlockSize)
	}
	return store, committer, nil
}

func prefixOf(u *url.URL) string {
	p := strings.TrimPrefix(u.Path, "/")
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}
