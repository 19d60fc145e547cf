// Package kmeans implements k-means clustering for codebook training.
//
// Seeding uses k-means++ with a caller-provided seed so training is
// reproducible. Clusters that end up without members are dropped, so the
// number of returned centroids may be smaller than requested.
package kmeans
