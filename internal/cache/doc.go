// Package cache provides a byte-bounded LRU for immutable blob blocks.
//
// Remote blob stores read codebook sets once per decompression; the cache
// keeps their blocks in memory. Memory is optionally accounted against a
// resource.Controller so that cached blocks and training share one budget.
package cache
