package vqcodec

import (
	"math/bits"

	"github.com/hupe1980/vqcodec/block"
	"github.com/hupe1980/vqcodec/colorspace"
	"github.com/hupe1980/vqcodec/vq"
)

// Compressed is a compressed image: one index grid per plane plus what is
// needed to rebuild it with the referenced codebook set.
type Compressed struct {
	CodebookID string
	Pipeline   colorspace.Kind
	Block      block.Geometry
	Width      int
	Height     int
	Grids      []*vq.IndexGrid
}

// Blocks returns the total number of indices.
func (c *Compressed) Blocks() int {
	n := 0
	for _, g := range c.Grids {
		if g != nil {
			n += g.Len()
		}
	}
	return n
}

// Utilization returns the number of distinct codebook entries each grid
// references.
func (c *Compressed) Utilization() []uint64 {
	out := make([]uint64, len(c.Grids))
	for i, g := range c.Grids {
		if g != nil {
			out[i] = g.Used().GetCardinality()
		}
	}
	return out
}

// PayloadBits returns the size of the index payload for codebooks of k
// entries, packing every index into the minimum number of bits.
func (c *Compressed) PayloadBits(k int) int {
	return c.Blocks() * indexBits(k)
}

func indexBits(k int) int {
	return max(bits.Len(uint(max(k, 1)-1)), 1)
}
