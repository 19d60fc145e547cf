// Package vqcodec provides a lossy image codec based on block vector
// quantization.
//
// Images are split into planes (R, G, B for the direct pipeline, or Y, U, V
// with half-resolution chroma for the luma/chroma pipeline). Each plane is cut
// into fixed-size blocks, a codebook of K prototype blocks is learned per
// plane with k-means, and every block of an image is replaced by the index of
// its nearest prototype.
//
// # Quick Start
//
//	ctx := context.Background()
//	c, _ := vqcodec.New()
//	set, _ := c.Train(ctx, trainingImages)
//
//	comp, _ := c.Compress(ctx, set, img)
//	out, _ := c.Decompress(ctx, set, comp)
//
//	report, _ := c.Evaluate(ctx, set, testImages, nil)
//	fmt.Println(report.Mean(), c.CompressionRatio())
//
// # Pipelines
//
//	c, _ := vqcodec.New(vqcodec.WithPipeline(colorspace.KindLumaChroma))
//
// The direct pipeline trains on zero-padded planes and truncates partial
// edge blocks when compressing, leaving them black on reconstruction. The
// luma/chroma pipeline replicates edges in both stages. Both can be
// overridden with WithEdgePolicies.
//
// # Artifacts
//
// Codebook sets and compressed images serialize to a checksummed binary
// container (package container) and can be stored in any blob store through
// package catalog:
//
//	store := blobstore.NewLocalStore("./artifacts")
//	cat, _ := catalog.New(ctx, store)
//	_, _ = cat.PutCodebookSet(ctx, set)
//	_, _ = cat.PutCompressed(ctx, "holiday/beach", comp)
//
// # Key Features
//
//   - Pluggable clustering (codebook.Clusterer)
//   - Configurable block geometry, codebook size and edge policies
//   - Parallel block search and per-plane training
//   - Structured logging (slog) and pluggable metrics (Prometheus adapter)
//   - Local, in-memory, S3 and MinIO artifact storage
package vqcodec
