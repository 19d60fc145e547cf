// Package blobstore provides storage for codec artifacts.
//
// Store is the interface for reading and writing immutable blobs (codebook
// sets, compressed images, catalog manifests). Implementations must be safe
// for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests and short-lived pipelines
//   - LocalStore: local filesystem with atomic renames and mmap reads
//   - CachingStore: block cache in front of any other Store
//   - s3.Store: Amazon S3 with range reads and managed uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Implementations
//
//	type Store interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Missing blobs are reported with an error matching ErrNotFound.
//
// # Conditional Writes and Commits
//
// Stores that can refuse to overwrite implement ConditionalStore. A
// Committer publishes numbered versions of a pointer, such as the current
// catalog manifest, and reports ErrConflict to the loser of a race.
// StoreCommitter keeps one marker blob per version in any Store.
package blobstore
