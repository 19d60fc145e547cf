// Package s3 provides an Amazon S3 implementation of blobstore.Store.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("vqcodec/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//	cat, err := catalog.New(ctx, store)
//
// Artifacts up to the inline read limit (4MB by default) are downloaded by
// the GET that opens them, so decoding a codebook set or compressed image
// costs one request. Larger objects are read in ranges pinned to the ETag
// seen by Open.
//
// Writes below the part size are a single PUT carrying a CRC32C; larger ones
// go through the multipart uploader. PutIfNotExists uses If-None-Match for
// content-addressed artifacts and catalog commit markers. Catalogs shared by
// several processes can commit manifests through DDBCommitter instead.
package s3
