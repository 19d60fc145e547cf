package vq

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hupe1980/vqcodec/block"
	"github.com/hupe1980/vqcodec/channel"
	"github.com/hupe1980/vqcodec/codebook"
)

// GridMismatchError reports target dimensions that an index grid cannot
// cover: each block count must be the floor or the ceiling of the target
// size divided by the block size.
type GridMismatchError struct {
	Rows, Cols    int
	Width, Height int
	Geometry      block.Geometry
}

func (e *GridMismatchError) Error() string {
	return fmt.Sprintf("index grid %dx%d with %s blocks cannot reconstruct %dx%d",
		e.Cols, e.Rows, e.Geometry, e.Width, e.Height)
}

// DecodeStats summarizes one decode.
type DecodeStats struct {
	Blocks  int
	Clamped int // out-of-range indices recovered by clamping
}

// ClampFunc observes a recovered out-of-range index.
type ClampFunc func(index, clamped int)

// Decoder expands index grids into channels.
type Decoder struct {
	// Logger receives a warning for every clamped index. Nil discards.
	Logger *slog.Logger
	// OnClamp, when set, is called for every clamped index.
	OnClamp ClampFunc
}

// NewDecoder returns a decoder logging to logger.
func NewDecoder(logger *slog.Logger) *Decoder {
	return &Decoder{Logger: logger}
}

// Decode reconstructs a width x height channel from grid and cb.
//
// Indices outside [0, K) are clamped into range and reported, never fatal.
// Blocks reaching past the target write only their in-bounds components;
// samples no block covers stay zero.
func (d *Decoder) Decode(ctx context.Context, grid *IndexGrid, cb *codebook.Codebook, g block.Geometry, width, height int) (*channel.Channel, DecodeStats, error) {
	if err := g.Validate(); err != nil {
		return nil, DecodeStats{}, err
	}
	if cb.Dim() != g.Area() {
		return nil, DecodeStats{}, &codebook.DimensionMismatchError{Expected: cb.Dim(), Actual: g.Area()}
	}
	if len(grid.Indices) != grid.Rows*grid.Cols {
		return nil, DecodeStats{}, fmt.Errorf("%w: %dx%d grid with %d indices", ErrCorruptGrid, grid.Rows, grid.Cols, len(grid.Indices))
	}
	if err := CheckCoverage(grid, g, width, height); err != nil {
		return nil, DecodeStats{}, err
	}

	out, err := channel.New(width, height)
	if err != nil {
		return nil, DecodeStats{}, err
	}

	stats := DecodeStats{Blocks: grid.Len()}
	for r := 0; r < grid.Rows; r++ {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		for c := 0; c < grid.Cols; c++ {
			raw := grid.At(r, c)
			idx, clamped := cb.Clamp(raw)
			if clamped {
				stats.Clamped++
				d.logger().WarnContext(ctx, "invalid codebook index, clamping",
					"index", raw,
					"clamped", idx,
					"row", r,
					"col", c,
				)
				if d.OnClamp != nil {
					d.OnClamp(raw, idx)
				}
			}
			block.Scatter(out, r, c, g, cb.Vector(idx))
		}
	}
	return out, stats, nil
}

// DecodeChannel reconstructs the full block coverage of grid, i.e. the
// effective dimensions the encoder worked on.
func (d *Decoder) DecodeChannel(ctx context.Context, grid *IndexGrid, cb *codebook.Codebook, g block.Geometry) (*channel.Channel, DecodeStats, error) {
	return d.Decode(ctx, grid, cb, g, grid.Cols*g.Width, grid.Rows*g.Height)
}

func (d *Decoder) logger() *slog.Logger {
	if d == nil || d.Logger == nil {
		return discard
	}
	return d.Logger
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// CheckCoverage returns a *GridMismatchError unless grid tiles a
// width x height target with blocks of g. A grid without blocks covers
// nothing, so it only matches an empty target.
func CheckCoverage(grid *IndexGrid, g block.Geometry, width, height int) error {
	if !covers(grid.Rows, height, g.Height) || !covers(grid.Cols, width, g.Width) {
		return &GridMismatchError{
			Rows: grid.Rows, Cols: grid.Cols,
			Width: width, Height: height,
			Geometry: g,
		}
	}
	return nil
}

// covers reports whether n blocks of size b are the floor or ceiling tiling
// of size.
func covers(n, size, b int) bool {
	if n == 0 {
		return size == 0
	}
	return n == size/b || n == (size+b-1)/b
}
