// Package distance provides the vector distances used for codebook search.
//
// Nearest-prototype search only needs the relative order of distances, so the
// squared Euclidean distance is used everywhere a comparison is made. L2 is
// provided for reporting.
//
// # Usage
//
//	d2 := distance.SquaredL2(a, b)
//	fn, _ := distance.Provider(distance.MetricL2)
package distance
