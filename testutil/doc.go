// Package testutil provides testing utilities for the codec.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded random source and generators for synthetic images
// and block vectors.
//
// # Random Block Vectors
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.BlockVectors(1000, 4) // samples in [0, 256)
//
// # Synthetic Images
//
//	img := testutil.Solid(16, 16, color.RGBA{R: 200, G: 40, B: 90, A: 255})
//	img = rng.Noise(64, 48)
//	img = testutil.Gradient(64, 48)
package testutil
