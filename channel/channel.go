// Package channel provides the 2-D sample plane shared by every stage of the codec.
//
// A Channel holds one scalar component of an image (a color channel or a
// luma/chroma plane) as float32 samples in row-major order. 8-bit pipelines
// keep samples in [0, 255]; intermediate arithmetic stays in floating point.
package channel

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrInvalidSize is returned when a channel is created with negative dimensions
// or a sample slice that does not match them.
var ErrInvalidSize = errors.New("invalid channel size")

// Channel is a rectangular grid of samples.
type Channel struct {
	Width  int
	Height int
	Pix    []float32 // len == Width*Height, row-major
}

// New allocates a zero-filled channel.
func New(width, height int) (*Channel, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	return &Channel{
		Width:  width,
		Height: height,
		Pix:    make([]float32, width*height),
	}, nil
}

// FromSlice wraps pix without copying.
func FromSlice(width, height int, pix []float32) (*Channel, error) {
	if width < 0 || height < 0 || len(pix) != width*height {
		return nil, fmt.Errorf("%w: %dx%d with %d samples", ErrInvalidSize, width, height, len(pix))
	}
	return &Channel{Width: width, Height: height, Pix: pix}, nil
}

// MustNew is New for dimensions known to be valid.
func MustNew(width, height int) *Channel {
	c, err := New(width, height)
	if err != nil {
		panic(err)
	}
	return c
}

// At returns the sample at (x, y). The caller guarantees bounds.
func (c *Channel) At(x, y int) float32 {
	return c.Pix[y*c.Width+x]
}

// Set stores v at (x, y). The caller guarantees bounds.
func (c *Channel) Set(x, y int, v float32) {
	c.Pix[y*c.Width+x] = v
}

// In reports whether (x, y) lies inside the channel.
func (c *Channel) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < c.Width && y < c.Height
}

// Empty reports whether the channel has no samples.
func (c *Channel) Empty() bool {
	return c.Width == 0 || c.Height == 0
}

// Clone returns a deep copy.
func (c *Channel) Clone() *Channel {
	pix := make([]float32, len(c.Pix))
	copy(pix, c.Pix)
	return &Channel{Width: c.Width, Height: c.Height, Pix: pix}
}

// Fill sets every sample to v.
func (c *Channel) Fill(v float32) {
	for i := range c.Pix {
		c.Pix[i] = v
	}
}

// Sample8 rounds v to the nearest integer and clamps it to [0, 255].
func Sample8(v float32) uint8 {
	r := math.Round(float64(v))
	if r < 0 {
		return 0
	}
	if r > 255 {
		return 255
	}
	return uint8(r)
}

// Component selects one 8-bit color component of an image.
type Component int

const (
	Red Component = iota
	Green
	Blue
)

func (c Component) String() string {
	switch c {
	case Red:
		return "R"
	case Green:
		return "G"
	case Blue:
		return "B"
	default:
		return fmt.Sprintf("Component(%d)", int(c))
	}
}

// RGB8 returns the 8-bit red, green and blue values at (x, y) of img.
func RGB8(img image.Image, x, y int) (r, g, b uint8) {
	cr, cg, cb, _ := img.At(x, y).RGBA()
	return uint8(cr >> 8), uint8(cg >> 8), uint8(cb >> 8)
}

// FromImage extracts one color component of img into a channel with the
// image's dimensions. Samples are taken relative to img.Bounds().Min.
func FromImage(img image.Image, comp Component) (*Channel, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidSize)
	}
	if comp < Red || comp > Blue {
		return nil, fmt.Errorf("unknown component %v", comp)
	}
	b := img.Bounds()
	c := MustNew(b.Dx(), b.Dy())
	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			r, g, bl := RGB8(img, b.Min.X+x, b.Min.Y+y)
			var v uint8
			switch comp {
			case Red:
				v = r
			case Green:
				v = g
			default:
				v = bl
			}
			c.Pix[y*c.Width+x] = float32(v)
		}
	}
	return c, nil
}
