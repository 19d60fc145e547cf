// Package minio provides a blobstore.Store implementation using the MinIO
// client.
//
// It works with MinIO and other S3-compatible systems (Ceph, SeaweedFS,
// Garage) without pulling in the AWS SDK.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "artifacts", "vqcodec/")
//	cat, err := catalog.New(ctx, store)
//
// Create buffers the artifact and writes it with a known length on Close.
// Open reads objects up to the inline read limit in one request; larger ones
// are read in ranges pinned to the ETag seen by Open.
package minio
