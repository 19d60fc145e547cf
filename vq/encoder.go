package vq

import (
	"context"
	"runtime"

	"github.com/hupe1980/vqcodec/block"
	"github.com/hupe1980/vqcodec/channel"
	"github.com/hupe1980/vqcodec/codebook"
	"golang.org/x/sync/errgroup"
)

// EncodeBlock returns the index of the codebook entry closest to v.
// Ties resolve to the lowest index.
func EncodeBlock(v []float32, cb *codebook.Codebook) int {
	idx, _ := cb.Nearest(v)
	return idx
}

// Encoder maps channels to index grids.
type Encoder struct {
	// Workers bounds the number of goroutines scanning block rows.
	// 0 means GOMAXPROCS; 1 encodes on the calling goroutine.
	Workers int
}

// NewEncoder returns an encoder using GOMAXPROCS workers.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// EncodeChannel extracts the blocks of ch under policy and encodes each
// against cb.
func (e *Encoder) EncodeChannel(ctx context.Context, ch *channel.Channel, cb *codebook.Codebook, g block.Geometry, policy block.EdgePolicy) (*IndexGrid, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if cb.Dim() != g.Area() {
		return nil, &codebook.DimensionMismatchError{Expected: cb.Dim(), Actual: g.Area()}
	}
	blocks, err := block.Extract(ch, g, policy)
	if err != nil {
		return nil, err
	}
	return e.EncodeGrid(ctx, blocks, cb)
}

// EncodeGrid encodes already extracted blocks. Block rows are partitioned
// across workers; each worker writes a disjoint range of the result.
func (e *Encoder) EncodeGrid(ctx context.Context, blocks *block.Grid, cb *codebook.Codebook) (*IndexGrid, error) {
	if cb.Dim() != blocks.Dim {
		return nil, &codebook.DimensionMismatchError{Expected: cb.Dim(), Actual: blocks.Dim}
	}

	out := NewIndexGrid(blocks.Rows, blocks.Cols)
	if blocks.Rows == 0 {
		return out, nil
	}

	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, blocks.Rows)

	rowsPer := (blocks.Rows + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < blocks.Rows; start += rowsPer {
		end := min(start+rowsPer, blocks.Rows)
		g.Go(func() error {
			for r := start; r < end; r++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				for c := 0; c < blocks.Cols; c++ {
					out.Set(r, c, EncodeBlock(blocks.At(r, c), cb))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
