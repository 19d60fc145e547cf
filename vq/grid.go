// Package vq implements nearest-prototype block encoding and index-grid decoding.
//
// Encoding replaces every block of a channel by the index of its nearest
// codebook prototype. Decoding expands an index grid back into a channel using
// only the grid, the codebook and the target dimensions.
package vq

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// ErrCorruptGrid is returned by UnmarshalBinary for malformed data.
var ErrCorruptGrid = errors.New("corrupt index grid")

// IndexGrid is the compressed form of one channel: one codebook index per
// block position, in raster order.
type IndexGrid struct {
	Rows    int
	Cols    int
	Indices []int32
}

// NewIndexGrid allocates a zeroed rows x cols grid.
func NewIndexGrid(rows, cols int) *IndexGrid {
	return &IndexGrid{
		Rows:    rows,
		Cols:    cols,
		Indices: make([]int32, rows*cols),
	}
}

// At returns the index stored for block (r, c).
func (g *IndexGrid) At(r, c int) int {
	return int(g.Indices[r*g.Cols+c])
}

// Set stores idx for block (r, c).
func (g *IndexGrid) Set(r, c, idx int) {
	g.Indices[r*g.Cols+c] = int32(idx)
}

// Len returns the number of blocks.
func (g *IndexGrid) Len() int {
	return len(g.Indices)
}

// Used returns the set of distinct in-range indices in the grid.
func (g *IndexGrid) Used() *roaring.Bitmap {
	bm := roaring.New()
	for _, idx := range g.Indices {
		if idx >= 0 {
			bm.Add(uint32(idx))
		}
	}
	return bm
}

// OutOfRange counts indices outside [0, k).
func (g *IndexGrid) OutOfRange(k int) int {
	n := 0
	for _, idx := range g.Indices {
		if idx < 0 || int(idx) >= k {
			n++
		}
	}
	return n
}

// Equal reports whether both grids are identical.
func (g *IndexGrid) Equal(o *IndexGrid) bool {
	if g.Rows != o.Rows || g.Cols != o.Cols || len(g.Indices) != len(o.Indices) {
		return false
	}
	for i, v := range g.Indices {
		if v != o.Indices[i] {
			return false
		}
	}
	return true
}

// MarshalBinary implements encoding.BinaryMarshaler.
// Format (little-endian): [rows:uint32][cols:uint32][rows*cols int32]
func (g *IndexGrid) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8+4*len(g.Indices))
	binary.LittleEndian.PutUint32(b[0:4], uint32(g.Rows))
	binary.LittleEndian.PutUint32(b[4:8], uint32(g.Cols))
	for i, v := range g.Indices {
		binary.LittleEndian.PutUint32(b[8+4*i:], uint32(v))
	}
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (g *IndexGrid) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: short header", ErrCorruptGrid)
	}
	rows := int(binary.LittleEndian.Uint32(data[0:4]))
	cols := int(binary.LittleEndian.Uint32(data[4:8]))
	if (len(data)-8)%4 != 0 || (len(data)-8)/4 != rows*cols {
		return fmt.Errorf("%w: %dx%d grid with %d payload bytes", ErrCorruptGrid, rows, cols, len(data)-8)
	}
	idx := make([]int32, rows*cols)
	for i := range idx {
		idx[i] = int32(binary.LittleEndian.Uint32(data[8+4*i:]))
	}
	g.Rows, g.Cols, g.Indices = rows, cols, idx
	return nil
}
