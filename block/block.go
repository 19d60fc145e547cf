// Package block slices channels into fixed-size blocks and scatters block
// vectors back into channels.
//
// Blocks never overlap and are visited in row-major block order. Inside a
// block, samples are flattened row-major, so a 2x2 block at (x, y) becomes
// [(x,y), (x+1,y), (x,y+1), (x+1,y+1)].
package block

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/vqcodec/channel"
)

var (
	// ErrInvalidGeometry is returned for non-positive block dimensions.
	ErrInvalidGeometry = errors.New("invalid block geometry")

	// ErrEmptyInput is returned when no complete block can be formed.
	ErrEmptyInput = errors.New("channel yields no blocks")

	// ErrUnknownEdgePolicy is returned by ParseEdgePolicy.
	ErrUnknownEdgePolicy = errors.New("unknown edge policy")
)

// Geometry is the size of one block in samples.
type Geometry struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Square returns an n x n geometry.
func Square(n int) Geometry {
	return Geometry{Width: n, Height: n}
}

// DefaultGeometry is the 2x2 block used by both pipelines.
var DefaultGeometry = Square(2)

// Area returns the number of samples per block (the vector length).
func (g Geometry) Area() int {
	return g.Width * g.Height
}

// Validate checks that both dimensions are positive.
func (g Geometry) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, g.Width, g.Height)
	}
	return nil
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Width, g.Height)
}

// EdgePolicy decides what happens to channels whose dimensions are not a
// multiple of the block size.
type EdgePolicy int

const (
	// Truncate drops trailing rows and columns that do not fill a block.
	Truncate EdgePolicy = iota
	// PadZero extends the channel to the next multiple, synthesizing zeros.
	PadZero
	// PadReplicate extends the channel to the next multiple by repeating the
	// last valid row and column.
	PadReplicate
)

func (p EdgePolicy) String() string {
	switch p {
	case Truncate:
		return "truncate"
	case PadZero:
		return "pad-zero"
	case PadReplicate:
		return "pad-replicate"
	default:
		return fmt.Sprintf("EdgePolicy(%d)", int(p))
	}
}

// ParseEdgePolicy parses the String form of a policy.
func ParseEdgePolicy(s string) (EdgePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "truncate":
		return Truncate, nil
	case "pad-zero", "zero":
		return PadZero, nil
	case "pad-replicate", "replicate":
		return PadReplicate, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownEdgePolicy, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p EdgePolicy) MarshalText() ([]byte, error) {
	switch p {
	case Truncate, PadZero, PadReplicate:
		return []byte(p.String()), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownEdgePolicy, int(p))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *EdgePolicy) UnmarshalText(text []byte) error {
	v, err := ParseEdgePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Counts returns the number of block rows and columns a w x h channel yields
// under policy.
func Counts(w, h int, g Geometry, policy EdgePolicy) (rows, cols int) {
	if policy == Truncate {
		return h / g.Height, w / g.Width
	}
	return ceilDiv(h, g.Height), ceilDiv(w, g.Width)
}

// EffectiveSize returns the dimensions actually covered by blocks.
func EffectiveSize(w, h int, g Geometry, policy EdgePolicy) (ew, eh int) {
	rows, cols := Counts(w, h, g, policy)
	return cols * g.Width, rows * g.Height
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Grid holds the block vectors of one channel in a single backing slice.
type Grid struct {
	Rows int
	Cols int
	Dim  int
	Data []float32 // Rows*Cols*Dim
}

// Len returns the number of vectors.
func (g *Grid) Len() int {
	return g.Rows * g.Cols
}

// Vector returns the i-th vector in raster order. The slice aliases Data.
func (g *Grid) Vector(i int) []float32 {
	return g.Data[i*g.Dim : (i+1)*g.Dim : (i+1)*g.Dim]
}

// At returns the vector of the block at block row r, block column c.
func (g *Grid) At(r, c int) []float32 {
	return g.Vector(r*g.Cols + c)
}

// Vectors returns per-block views into Data.
func (g *Grid) Vectors() [][]float32 {
	out := make([][]float32, g.Len())
	for i := range out {
		out[i] = g.Vector(i)
	}
	return out
}

// Extract slices ch into blocks of geometry g, applying policy at the edges.
func Extract(ch *channel.Channel, g Geometry, policy EdgePolicy) (*Grid, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	switch policy {
	case Truncate, PadZero, PadReplicate:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownEdgePolicy, int(policy))
	}
	rows, cols := Counts(ch.Width, ch.Height, g, policy)
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("%w: %dx%d channel with %s blocks (%s)", ErrEmptyInput, ch.Width, ch.Height, g, policy)
	}

	dim := g.Area()
	grid := &Grid{
		Rows: rows,
		Cols: cols,
		Dim:  dim,
		Data: make([]float32, rows*cols*dim),
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			vec := grid.At(r, c)
			x0, y0 := c*g.Width, r*g.Height
			idx := 0
			for dy := 0; dy < g.Height; dy++ {
				y := y0 + dy
				for dx := 0; dx < g.Width; dx++ {
					vec[idx] = sample(ch, x0+dx, y, policy)
					idx++
				}
			}
		}
	}
	return grid, nil
}

func sample(ch *channel.Channel, x, y int, policy EdgePolicy) float32 {
	if ch.In(x, y) {
		return ch.At(x, y)
	}
	if policy == PadReplicate {
		return ch.At(min(x, ch.Width-1), min(y, ch.Height-1))
	}
	return 0
}

// Scatter writes vec into the block at block row r, block column c of dst.
// Components that fall outside dst are skipped.
func Scatter(dst *channel.Channel, r, c int, g Geometry, vec []float32) {
	x0, y0 := c*g.Width, r*g.Height
	idx := 0
	for dy := 0; dy < g.Height; dy++ {
		y := y0 + dy
		for dx := 0; dx < g.Width; dx++ {
			if x := x0 + dx; y < dst.Height && x < dst.Width {
				dst.Pix[y*dst.Width+x] = vec[idx]
			}
			idx++
		}
	}
}
