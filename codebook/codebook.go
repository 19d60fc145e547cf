// Package codebook holds trained block prototypes and the trainer that learns them.
//
// A Codebook is an ordered, immutable set of K prototype vectors of equal
// length. It is created once per channel role and then shared read-only by
// every encode and decode call.
package codebook

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/vqcodec/internal/kmeans"
)

var (
	// ErrInvalidSize is returned for a codebook size below one.
	ErrInvalidSize = errors.New("codebook size must be positive")

	// ErrNoTrainingVectors is returned when training receives no vectors.
	ErrNoTrainingVectors = errors.New("no training vectors")

	// ErrCorrupt is returned by UnmarshalBinary for malformed data.
	ErrCorrupt = errors.New("corrupt codebook data")
)

// DimensionMismatchError reports vectors whose length differs from the
// codebook (or block) dimension.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Codebook is an immutable list of prototypes stored in one flat slice.
type Codebook struct {
	dim     int
	vectors []float32 // Len() * dim
}

// New creates a codebook from flattened prototypes. The slice is copied.
func New(dim int, flat []float32) (*Codebook, error) {
	if dim <= 0 {
		return nil, &DimensionMismatchError{Expected: 1, Actual: dim}
	}
	if len(flat) == 0 {
		return nil, ErrInvalidSize
	}
	if len(flat)%dim != 0 {
		return nil, &DimensionMismatchError{Expected: dim, Actual: len(flat) % dim}
	}
	vecs := make([]float32, len(flat))
	copy(vecs, flat)
	return &Codebook{dim: dim, vectors: vecs}, nil
}

// FromVectors creates a codebook from individual prototypes.
func FromVectors(vectors [][]float32) (*Codebook, error) {
	if len(vectors) == 0 {
		return nil, ErrInvalidSize
	}
	dim := len(vectors[0])
	flat := make([]float32, 0, len(vectors)*dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, &DimensionMismatchError{Expected: dim, Actual: len(v)}
		}
		flat = append(flat, v...)
	}
	return New(dim, flat)
}

// Len returns K, the number of prototypes.
func (c *Codebook) Len() int {
	return len(c.vectors) / c.dim
}

// Dim returns the prototype length.
func (c *Codebook) Dim() int {
	return c.dim
}

// Vector returns prototype i. The returned slice must not be modified.
func (c *Codebook) Vector(i int) []float32 {
	return c.vectors[i*c.dim : (i+1)*c.dim : (i+1)*c.dim]
}

// Flat returns a copy of all prototypes in one slice.
func (c *Codebook) Flat() []float32 {
	out := make([]float32, len(c.vectors))
	copy(out, c.vectors)
	return out
}

// Nearest returns the index of the prototype with the smallest squared
// Euclidean distance to v, and that distance. The scan runs in index order
// with a strict comparison, so the lowest index wins ties.
func (c *Codebook) Nearest(v []float32) (int, float32) {
	return kmeans.Nearest(v, c.vectors, c.dim)
}

// Clamp maps i into [0, Len()) and reports whether it had to.
func (c *Codebook) Clamp(i int) (int, bool) {
	switch {
	case i < 0:
		return 0, true
	case i >= c.Len():
		return c.Len() - 1, true
	default:
		return i, false
	}
}

// Equal reports whether both codebooks hold identical prototypes.
func (c *Codebook) Equal(o *Codebook) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.dim != o.dim || len(c.vectors) != len(o.vectors) {
		return false
	}
	for i, v := range c.vectors {
		if v != o.vectors[i] {
			return false
		}
	}
	return true
}

// MarshalBinary implements encoding.BinaryMarshaler.
// Format (little-endian): [dim:uint32][k:uint32][k*dim float32]
func (c *Codebook) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8+4*len(c.vectors))
	binary.LittleEndian.PutUint32(b[0:4], uint32(c.dim))
	binary.LittleEndian.PutUint32(b[4:8], uint32(c.Len()))
	for i, v := range c.vectors {
		binary.LittleEndian.PutUint32(b[8+4*i:], math.Float32bits(v))
	}
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *Codebook) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: short header", ErrCorrupt)
	}
	dim := int(binary.LittleEndian.Uint32(data[0:4]))
	k := int(binary.LittleEndian.Uint32(data[4:8]))
	if dim <= 0 || k <= 0 {
		return fmt.Errorf("%w: dim=%d k=%d", ErrCorrupt, dim, k)
	}
	if len(data)-8 != 4*dim*k {
		return fmt.Errorf("%w: expected %d payload bytes, got %d", ErrCorrupt, 4*dim*k, len(data)-8)
	}
	vecs := make([]float32, dim*k)
	for i := range vecs {
		vecs[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[8+4*i:]))
	}
	c.dim = dim
	c.vectors = vecs
	return nil
}

// SizeBytes returns the serialized size.
func (c *Codebook) SizeBytes() int {
	return 8 + 4*len(c.vectors)
}
